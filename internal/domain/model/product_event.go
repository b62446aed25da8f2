package model

import "time"

type ProductEventType string

const (
	ProductAdded        ProductEventType = "product_added"
	ProductUpdated      ProductEventType = "product_updated"
	ProductDeleted      ProductEventType = "product_deleted"
	ProductImageUpdated ProductEventType = "product_image_updated"
)

// 商品変更イベント。キャッシュ無効化などに使う
type ProductEvent struct {
	ID        string            `json:"id"`
	Type      ProductEventType  `json:"type"`
	ProductID int64             `json:"productId"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
