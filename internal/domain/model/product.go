package model

import "time"

// カタログの商品。priceは表示用文字列（"K650"）のまま保存する。
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Price       string    `gorm:"type:varchar(50);not null" json:"price"`
	Category    string    `gorm:"type:varchar(100);index" json:"category"`
	Image       string    `gorm:"type:text" json:"image"`
	Description string    `gorm:"type:text" json:"description"`
	InStock     bool      `gorm:"not null;default:true" json:"inStock"`
	Featured    bool      `gorm:"not null;default:false" json:"featured"`
	Badge       string    `gorm:"type:varchar(50)" json:"badge,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

// 部分更新。nilの項目は変更しない。
type ProductPatch struct {
	Name        *string
	Price       *string
	Category    *string
	Image       *string
	Description *string
	InStock     *bool
	Featured    *bool
	Badge       *string
}

// Applyはpatchを適用した新しい値を返す（元の値は変えない）
func (p Product) Apply(patch ProductPatch) Product {
	out := p
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Price != nil {
		out.Price = *patch.Price
	}
	if patch.Category != nil {
		out.Category = *patch.Category
	}
	if patch.Image != nil {
		out.Image = *patch.Image
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.InStock != nil {
		out.InStock = *patch.InStock
	}
	if patch.Featured != nil {
		out.Featured = *patch.Featured
	}
	if patch.Badge != nil {
		out.Badge = *patch.Badge
	}
	return out
}

// 単価（Money）。カタログ境界で1回だけパースする
func (p Product) UnitPrice() Money {
	m, _ := ParsePrice(p.Price)
	return m
}
