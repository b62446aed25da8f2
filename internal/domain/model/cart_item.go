package model

// カートの明細
// 追加時点の商品名・価格・画像をスナップショットとして持つ。
type CartLine struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	UnitPrice Money  `json:"unitPrice"`
	ImageURL  string `json:"image"`
	Category  string `json:"category"`
	Quantity  int64  `json:"quantity"`
}

// 明細小計
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice.Amount * l.Quantity
}

// 商品から明細を作る
func NewCartLine(p Product, qty int64) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice(),
		ImageURL:  p.Image,
		Category:  p.Category,
		Quantity:  qty,
	}
}
