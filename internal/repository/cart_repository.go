package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// セッションごとのカート状態の保存先。
// 保存されていないキーはErrNotFound。
type CartStateRepository interface {
	Load(ctx context.Context, sessionKey string) (model.CartState, error)
	Save(ctx context.Context, sessionKey string, st model.CartState) error
	Delete(ctx context.Context, sessionKey string) error
}
