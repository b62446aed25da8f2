package repository

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 検索/カテゴリ/在庫/ページング付きで返す。ID昇順。
func (r *ProductGormRepository) List(ctx context.Context, f repo.ProductFilter) ([]model.Product, error) {
	var products []model.Product

	tx := r.db.WithContext(ctx).Model(&model.Product{})

	// q nameを対象（大文字小文字は無視）
	if q := strings.TrimSpace(f.Q); q != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		tx = tx.Where("LOWER(category) = ?", strings.ToLower(c))
	}
	if f.InStock != nil {
		tx = tx.Where("in_stock = ?", *f.InStock)
	}
	if f.Featured != nil {
		tx = tx.Where("featured = ?", *f.Featured)
	}

	tx = tx.Order("id asc")
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit).Offset(f.Offset)
	}
	if err := tx.Find(&products).Error; err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 商品の作成（id/時刻はDB側で振る）
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = 0
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// patchのnilでない項目だけ更新して、更新後の商品を返す
func (r *ProductGormRepository) Update(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	updates := patchColumns(patch)
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return model.Product{}, res.Error
		}
		if res.RowsAffected == 0 {
			return model.Product{}, repo.ErrNotFound
		}
	}
	return r.FindByID(ctx, id)
}

// 商品削除
func (r *ProductGormRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func patchColumns(p model.ProductPatch) map[string]interface{} {
	m := map[string]interface{}{}
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Price != nil {
		m["price"] = *p.Price
	}
	if p.Category != nil {
		m["category"] = *p.Category
	}
	if p.Image != nil {
		m["image"] = *p.Image
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.InStock != nil {
		m["in_stock"] = *p.InStock
	}
	if p.Featured != nil {
		m["featured"] = *p.Featured
	}
	if p.Badge != nil {
		m["badge"] = *p.Badge
	}
	return m
}
