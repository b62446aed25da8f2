package model

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// 終わった支払いはもう照会しない
func (s PaymentStatus) Final() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// MTN MoMoの支払い要求1件。IDはMoMoへ渡すX-Reference-Id。
type Payment struct {
	ID             string        `gorm:"primaryKey;type:varchar(36)" json:"transaction_id"`
	OrderID        int64         `gorm:"not null;index" json:"order_id"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Currency       string        `gorm:"type:varchar(3);not null" json:"currency"`
	PhoneNumber    string        `gorm:"type:varchar(20);not null" json:"-"`
	CustomerName   string        `gorm:"type:varchar(255);not null" json:"-"`
	Status         PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Reason         string        `gorm:"type:varchar(255)" json:"reason,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	LastVerifiedAt *time.Time    `json:"last_verified,omitempty"`
}
