package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// まとめ買い割引ルールの保存先
type DiscountRepository interface {
	List(ctx context.Context) ([]model.DiscountRule, error)
	Create(ctx context.Context, r model.DiscountRule) (model.DiscountRule, error)
	Delete(ctx context.Context, id int64) error
}
