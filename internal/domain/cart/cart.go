// Package cart はカートの状態と価格計算（小計・送料・VAT・合計）を持つ。
// I/Oは持たない。保存はusecase側で行う。
package cart

import (
	"errors"
	"fmt"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	// 数量が1未満
	ErrInvalidQuantity = errors.New("quantity must be >= 1")
	// 対象の明細が無い
	ErrLineNotFound = errors.New("cart line not found")
	// 保存形式のバージョンが読めない
	ErrUnsupportedSchema = errors.New("unsupported cart schema version")
)

// 送料・税の規則
type PricingRules struct {
	FreeShippingThreshold int64
	StandardShipping      int64
	VATRate               decimal.Decimal
}

func DefaultPricingRules() PricingRules {
	return PricingRules{
		FreeShippingThreshold: 100000,
		StandardShipping:      2500,
		VATRate:               decimal.RequireFromString("0.165"),
	}
}

// Cartは商品ID→明細のマップ（追加順を保持）。
// 並行アクセスの排他は呼び出し側の責任。
type Cart struct {
	rules PricingRules
	lines []model.CartLine
}

func New(rules PricingRules) *Cart {
	return &Cart{rules: rules}
}

// 保存済み状態から復元する
func FromState(rules PricingRules, st model.CartState) (*Cart, error) {
	if st.SchemaVersion != model.CartSchemaVersion {
		return New(rules), fmt.Errorf("%w: %d", ErrUnsupportedSchema, st.SchemaVersion)
	}
	c := New(rules)
	for _, l := range st.Items {
		if l.Quantity < 1 || c.index(l.ProductID) >= 0 {
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c, nil
}

func (c *Cart) State() model.CartState {
	return model.CartState{SchemaVersion: model.CartSchemaVersion, Items: c.Lines()}
}

func (c *Cart) index(productID int64) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Addは同じ商品なら数量を加算、無ければ明細を追加する。在庫チェックはしない。
func (c *Cart) Add(p model.Product, qty int64) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if i := c.index(p.ID); i >= 0 {
		c.lines[i].Quantity += qty
		return nil
	}
	c.lines = append(c.lines, model.NewCartLine(p, qty))
	return nil
}

// UpdateQuantityは数量を上書きする。0以下なら削除。
// 行が無いときは qty>0 の場合だけ ErrLineNotFound。
func (c *Cart) UpdateQuantity(productID, qty int64) error {
	if qty <= 0 {
		c.Remove(productID)
		return nil
	}
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines[i].Quantity = qty
	return nil
}

// 無ければ何もしない
func (c *Cart) Remove(productID int64) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) IsInCart(productID int64) bool {
	return c.index(productID) >= 0
}

func (c *Cart) ItemQuantity(productID int64) int64 {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// コピーを返す
func (c *Cart) Lines() []model.CartLine {
	out := make([]model.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, l := range c.lines {
		sum += l.LineTotal()
	}
	return sum
}

// 空のカートは送料0
func (c *Cart) Shipping() int64 {
	if c.IsEmpty() {
		return 0
	}
	if c.Subtotal() >= c.rules.FreeShippingThreshold {
		return 0
	}
	return c.rules.StandardShipping
}

// 小計×VAT率を整数に丸める（四捨五入）
func (c *Cart) Tax() int64 {
	return decimal.NewFromInt(c.Subtotal()).Mul(c.rules.VATRate).Round(0).IntPart()
}

func (c *Cart) Total() int64 {
	return c.Subtotal() + c.Shipping() + c.Tax()
}

func (c *Cart) ItemCount() int64 {
	var n int64
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Totals() model.CartTotals {
	sub := c.Subtotal()
	ship := c.Shipping()
	tax := c.Tax()
	return model.CartTotals{
		Subtotal:  sub,
		Shipping:  ship,
		Tax:       tax,
		Total:     sub + ship + tax,
		ItemCount: c.ItemCount(),
	}
}
