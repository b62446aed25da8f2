package repository

import (
	"context"
	"io"

	"storefront/internal/domain/model"
)

// 商品画像のオブジェクトストレージ。
// nameはprefix配下のファイル名（"arduino-uno.jpg"）。
type BlobStore interface {
	List(ctx context.Context) ([]model.ImageObject, error)
	PublicURL(name string) string
	Upload(ctx context.Context, name string, body io.Reader, contentType string) (string, error)
}
