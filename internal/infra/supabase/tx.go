package supabase

import (
	"context"
	"errors"

	repo "storefront/internal/repository"
)

var errEmptyResponse = errors.New("empty response")

// 商品だけSupabaseに差し替えたTxRepos
type txRepos struct {
	repo.TxRepos
	products repo.ProductRepository
}

func (r *txRepos) Products() repo.ProductRepository { return r.products }

// PostgRESTにはTxが無いので、商品はそのまま順に書く。
// 監査ログ・注文・支払いはDB側のTxに乗せる（商品の更新が先、監査ログが後）。
type PassThroughTx struct {
	products repo.ProductRepository
	db       repo.TransactionManager
}

func NewPassThroughTx(products repo.ProductRepository, db repo.TransactionManager) *PassThroughTx {
	return &PassThroughTx{products: products, db: db}
}

func (t *PassThroughTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(&txRepos{TxRepos: r, products: t.products})
	})
}
