package model

import "time"

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusCanceled      OrderStatus = "CANCELED"
)

// カートから作った注文。金額は割引後の支払額（クワチャ）。
type Order struct {
	ID         int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionKey string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_session_idem" json:"-"`
	Status     OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Subtotal   int64       `gorm:"not null" json:"subtotal"`
	Shipping   int64       `gorm:"not null" json:"shipping"`
	Tax        int64       `gorm:"not null" json:"tax"`
	Savings    int64       `gorm:"not null" json:"savings"`
	TotalPrice int64       `gorm:"not null" json:"total_price"`

	CustomerName  string `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerPhone string `gorm:"type:varchar(20);not null" json:"customer_phone"`
	Address       string `gorm:"type:text" json:"address"`
	City          string `gorm:"type:varchar(100)" json:"city"`

	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_session_idem" json:"-"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 注文した時点の商品名・単価を残す
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
