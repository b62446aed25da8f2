package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 決済事業者側の状態
type GatewayStatus string

const (
	GatewaySuccessful GatewayStatus = "SUCCESSFUL"
	GatewayFailed     GatewayStatus = "FAILED"
	GatewayPending    GatewayStatus = "PENDING"
)

// RequestToPay に渡す内容。ReferenceIDで後から照会する。
type PaymentRequest struct {
	ReferenceID  string
	ExternalID   string
	Amount       int64
	Currency     string
	PhoneNumber  string
	PayerMessage string
	PayeeNote    string
}

type GatewayResult struct {
	Status GatewayStatus
	Reason string
}

// モバイルマネー決済（MTN MoMo Collections）の約束。
// 失敗は TransportError で返す。
type PaymentGateway interface {
	RequestToPay(ctx context.Context, req PaymentRequest) error
	PaymentStatus(ctx context.Context, referenceID string) (GatewayResult, error)
}

// 支払い記録
type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) error
	FindByID(ctx context.Context, id string) (model.Payment, error)
	UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, reason string, verifiedAt time.Time) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error)
	List(ctx context.Context, limit int) ([]model.Payment, error)
}
