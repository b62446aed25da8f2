package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type DiscountGormRepository struct {
	db *gorm.DB
}

// DI
func NewDiscountGormRepository(db *gorm.DB) *DiscountGormRepository {
	return &DiscountGormRepository{db: db}
}

func (r *DiscountGormRepository) List(ctx context.Context) ([]model.DiscountRule, error) {
	var rules []model.DiscountRule
	if err := r.db.WithContext(ctx).Order("id asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *DiscountGormRepository) Create(ctx context.Context, rule model.DiscountRule) (model.DiscountRule, error) {
	rule.ID = 0
	if err := r.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return model.DiscountRule{}, err
	}
	return rule, nil
}

func (r *DiscountGormRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.DiscountRule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
