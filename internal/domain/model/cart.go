package model

import "time"

// 保存形式のバージョン
const CartSchemaVersion = 1

// 永続化するカートの中身（JSON）
type CartState struct {
	SchemaVersion int        `json:"schemaVersion"`
	Items         []CartLine `json:"items"`
}

// セッション単位のカート保存行
type CartStateRecord struct {
	SessionKey    string    `gorm:"primaryKey;type:varchar(64)" json:"session_key"`
	SchemaVersion int       `gorm:"not null" json:"schema_version"`
	Payload       string    `gorm:"type:text;not null" json:"payload"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 集計結果
type CartTotals struct {
	Subtotal  int64 `json:"subtotal"`
	Shipping  int64 `json:"shipping"`
	Tax       int64 `json:"tax"`
	Total     int64 `json:"total"`
	ItemCount int64 `json:"itemCount"`
}
