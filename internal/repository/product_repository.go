package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 一覧検索。Limit=0は全件。
type ProductFilter struct {
	Q        string
	Category string
	InStock  *bool
	Featured *bool
	Limit    int
	Offset   int
}

// カタログ（商品）の保存・取得の約束。
// DBでもSupabaseでも同じ振る舞いにする。
type ProductRepository interface {
	List(ctx context.Context, f ProductFilter) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error)
	Delete(ctx context.Context, id int64) error
}
