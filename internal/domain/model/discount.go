package model

import (
	"strconv"
	"strings"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	//1個あたりの固定値引き
	DiscountFixed DiscountType = "fixed"
)

type DiscountScope string

const (
	DiscountScopeAll      DiscountScope = "all"
	DiscountScopeCategory DiscountScope = "category"
	DiscountScopeSpecific DiscountScope = "specific"
)

// まとめ買い割引ルール
type DiscountRule struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string        `gorm:"type:varchar(255);not null" json:"name"`
	Description    string        `gorm:"type:text" json:"description"`
	Type           DiscountType  `gorm:"type:varchar(20);not null" json:"type"`
	Value          float64       `gorm:"not null" json:"value"`
	Scope          DiscountScope `gorm:"type:varchar(20);not null" json:"applicableProducts"`
	CategoryFilter string        `gorm:"type:varchar(100)" json:"categoryFilter,omitempty"`
	// カンマ区切りの商品ID
	ProductIDs  string     `gorm:"type:text" json:"specificProducts,omitempty"`
	MinQuantity int64      `gorm:"not null;default:1" json:"minQuantity"`
	MaxQuantity int64      `gorm:"not null;default:0" json:"maxQuantity"`
	StartsAt    time.Time  `gorm:"not null" json:"startDate"`
	EndsAt      *time.Time `json:"endDate,omitempty"`
	Active      bool       `gorm:"not null;default:true" json:"isActive"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"createdAt"`
}

// 期間内かつ有効か
func (r DiscountRule) ActiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if now.Before(r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// 商品が対象か
func (r DiscountRule) Covers(productID int64, category string) bool {
	switch r.Scope {
	case DiscountScopeAll:
		return true
	case DiscountScopeCategory:
		return strings.EqualFold(strings.TrimSpace(r.CategoryFilter), strings.TrimSpace(category))
	case DiscountScopeSpecific:
		for _, id := range r.SpecificProductIDs() {
			if id == productID {
				return true
			}
		}
	}
	return false
}

// 数量条件を満たすか（Max=0は上限なし）
func (r DiscountRule) QuantityWithin(qty int64) bool {
	if qty < r.MinQuantity {
		return false
	}
	return r.MaxQuantity == 0 || qty <= r.MaxQuantity
}

func (r DiscountRule) SpecificProductIDs() []int64 {
	var ids []int64
	for _, s := range strings.Split(r.ProductIDs, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// 明細ごとの割引結果
type LineDiscount struct {
	ProductID int64  `json:"productId"`
	RuleID    int64  `json:"ruleId"`
	RuleName  string `json:"ruleName"`
	Savings   int64  `json:"savings"`
}
