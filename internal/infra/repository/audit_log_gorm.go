package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditPage = 50
	maxAuditPage     = 200
)

// AuditLogGormRepository は商品・割引の変更履歴を audit_logs に残す
type AuditLogGormRepository struct {
	db *gorm.DB
}

// DI
func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

func (r *AuditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = 0
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Scopes(auditTarget(f), auditCursor(f.BeforeID, f.Limit)).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// 対象（リソース種別・ID・操作）での絞り込み
func auditTarget(f repo.AuditLogFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.ResourceType != "" {
			q = q.Where("resource_type = ?", f.ResourceType)
		}
		if f.ResourceID > 0 {
			q = q.Where("resource_id = ?", f.ResourceID)
		}
		if f.Action != "" {
			q = q.Where("action = ?", f.Action)
		}
		return q
	}
}

// id降順のカーソルページング
func auditCursor(beforeID int64, limit int) func(*gorm.DB) *gorm.DB {
	if limit <= 0 || limit > maxAuditPage {
		limit = defaultAuditPage
	}
	return func(q *gorm.DB) *gorm.DB {
		if beforeID > 0 {
			q = q.Where("id < ?", beforeID)
		}
		return q.Order("id DESC").Limit(limit)
	}
}
