package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// AuditLogFilter は監査ログの絞り込み。ゼロ値の項目は条件にしない。
// 新しい順に返し、BeforeID より小さいIDだけを読む（カーソル）。
type AuditLogFilter struct {
	ResourceType model.AuditResourceType
	ResourceID   int64
	Action       model.AuditAction
	BeforeID     int64
	Limit        int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
