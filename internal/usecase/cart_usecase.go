package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"storefront/internal/domain/cart"
	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// keyLocks はセッションキーごとのロック。保持中のキーだけを持つ。
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

// CartUsecase は /cart の業務ロジックです。
// カートはセッションキー（cookie）ごとに CartStateRepository から毎回復元し、変更のたびに状態全体を保存します。
type CartUsecase struct {
	productRepo repo.ProductRepository
	stateRepo   repo.CartStateRepository
	discounts   *DiscountUsecase
	rules       cart.PricingRules
	whatsapp    string
	log         *zap.Logger

	locks keyLocks
}

func NewCartUsecase(
	productRepo repo.ProductRepository,
	stateRepo repo.CartStateRepository,
	discounts *DiscountUsecase,
	rules cart.PricingRules,
	whatsappNumber string,
	log *zap.Logger,
) *CartUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartUsecase{
		productRepo: productRepo,
		stateRepo:   stateRepo,
		discounts:   discounts,
		rules:       rules,
		whatsapp:    whatsappNumber,
		log:         log,
		locks:       keyLocks{m: map[string]*keyLock{}},
	}
}

// 新しいセッションキー
func NewSessionKey() string {
	return uuid.NewString()
}

// ValidSessionKey はcookie値がセッションキーとして使えるか
func ValidSessionKey(key string) bool {
	_, err := uuid.Parse(key)
	return err == nil
}

type CartLineResponse struct {
	model.CartLine
	LineTotal          int64  `json:"lineTotal"`
	FormattedUnitPrice string `json:"formattedUnitPrice"`
	FormattedLineTotal string `json:"formattedLineTotal"`
}

type FormattedTotals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type CartResponse struct {
	Items     []CartLineResponse `json:"items"`
	Totals    model.CartTotals   `json:"totals"`
	Formatted FormattedTotals    `json:"formatted"`
}

// 割引込みの見積もり
type QuoteResponse struct {
	CartResponse
	Discounts        []model.LineDiscount `json:"discounts"`
	NextTiers        []TierHint           `json:"nextTiers"`
	Savings          int64                `json:"savings"`
	Payable          int64                `json:"payable"`
	FormattedPayable string               `json:"formattedPayable"`
}

// load は保存済み状態からカートを復元する。読めないときは空のカート。
func (u *CartUsecase) load(ctx context.Context, key string) *cart.Cart {
	st, err := u.stateRepo.Load(ctx, key)
	switch {
	case err == nil:
		restored, ferr := cart.FromState(u.rules, st)
		if ferr != nil {
			u.log.Warn("cart state discarded", zap.String("session", key), zap.Error(ferr))
		}
		return restored
	case errors.Is(err, repo.ErrNotFound):
	default:
		u.log.Warn("cart state load failed", zap.String("session", key), zap.Error(err))
	}
	return cart.New(u.rules)
}

// 保存の失敗はログだけ残して続ける
func (u *CartUsecase) persist(ctx context.Context, key string, c *cart.Cart) {
	if err := u.stateRepo.Save(ctx, key, c.State()); err != nil {
		u.log.Warn("cart state save failed", zap.String("session", key), zap.Error(err))
	}
}

func buildCartResponse(c *cart.Cart) CartResponse {
	lines := c.Lines()
	items := make([]CartLineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, CartLineResponse{
			CartLine:           l,
			LineTotal:          l.LineTotal(),
			FormattedUnitPrice: model.FormatCurrency(l.UnitPrice.Amount),
			FormattedLineTotal: model.FormatCurrency(l.LineTotal()),
		})
	}
	t := c.Totals()
	return CartResponse{
		Items:  items,
		Totals: t,
		Formatted: FormattedTotals{
			Subtotal: model.FormatCurrency(t.Subtotal),
			Shipping: model.FormatCurrency(t.Shipping),
			Tax:      model.FormatCurrency(t.Tax),
			Total:    model.FormatCurrency(t.Total),
		},
	}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return NewHTTPError(http.StatusBadRequest, "missing cart session")
	}
	if !ValidSessionKey(key) {
		return NewHTTPError(http.StatusBadRequest, "invalid cart session")
	}
	return nil
}

func (u *CartUsecase) GetCart(ctx context.Context, key string) (CartResponse, error) {
	if err := validKey(key); err != nil {
		return CartResponse{}, err
	}
	return buildCartResponse(u.load(ctx, key)), nil
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, key string, productID int64, qty int64) (CartResponse, error) {
	if err := validKey(key); err != nil {
		return CartResponse{}, err
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if qty < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return CartResponse{}, repoError(err, "product not found")
	}
	if _, perr := model.ParsePrice(p.Price); perr != nil {
		u.log.Debug("unparseable price", zap.Int64("product_id", p.ID), zap.Error(perr))
	}

	unlock := u.locks.lock(key)
	defer unlock()

	c := u.load(ctx, key)
	if err := c.Add(p, qty); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	u.persist(ctx, key, c)
	return buildCartResponse(c), nil
}

// UpdateQuantity は数量を上書き（0以下は削除）。
func (u *CartUsecase) UpdateQuantity(ctx context.Context, key string, productID int64, qty int64) (CartResponse, error) {
	if err := validKey(key); err != nil {
		return CartResponse{}, err
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	unlock := u.locks.lock(key)
	defer unlock()

	c := u.load(ctx, key)
	if err := c.UpdateQuantity(productID, qty); err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "item not in cart")
		}
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	u.persist(ctx, key, c)
	return buildCartResponse(c), nil
}

func (u *CartUsecase) RemoveFromCart(ctx context.Context, key string, productID int64) (CartResponse, error) {
	if err := validKey(key); err != nil {
		return CartResponse{}, err
	}

	unlock := u.locks.lock(key)
	defer unlock()

	c := u.load(ctx, key)
	c.Remove(productID)
	u.persist(ctx, key, c)
	return buildCartResponse(c), nil
}

func (u *CartUsecase) ClearCart(ctx context.Context, key string) (CartResponse, error) {
	if err := validKey(key); err != nil {
		return CartResponse{}, err
	}

	unlock := u.locks.lock(key)
	defer unlock()

	if err := u.stateRepo.Delete(ctx, key); err != nil && !errors.Is(err, repo.ErrNotFound) {
		u.log.Warn("cart state delete failed", zap.String("session", key), zap.Error(err))
	}
	return buildCartResponse(cart.New(u.rules)), nil
}

func (u *CartUsecase) IsInCart(ctx context.Context, key string, productID int64) bool {
	if validKey(key) != nil {
		return false
	}
	return u.load(ctx, key).IsInCart(productID)
}

func (u *CartUsecase) ItemQuantity(ctx context.Context, key string, productID int64) int64 {
	if validKey(key) != nil {
		return 0
	}
	return u.load(ctx, key).ItemQuantity(productID)
}

// Quote はカート＋まとめ買い割引。割引が読めないときは割引なしで返す。
func (u *CartUsecase) Quote(ctx context.Context, key string) (QuoteResponse, error) {
	if err := validKey(key); err != nil {
		return QuoteResponse{}, err
	}

	c := u.load(ctx, key)
	resp := buildCartResponse(c)
	lines := c.Lines()

	q := QuoteResponse{
		CartResponse: resp,
		Discounts:    []model.LineDiscount{},
		NextTiers:    []TierHint{},
	}
	if u.discounts != nil {
		ds, hints, savings, err := u.discounts.Evaluate(ctx, lines)
		if err != nil {
			u.log.Warn("discount evaluation failed", zap.Error(err))
		} else {
			q.Discounts = ds
			q.NextTiers = hints
			q.Savings = savings
		}
	}

	q.Payable = resp.Totals.Total - q.Savings
	if q.Payable < 0 {
		q.Payable = 0
	}
	q.FormattedPayable = model.FormatCurrency(q.Payable)
	return q, nil
}

// CheckoutMessage は注文用のWhatsApp本文
func CheckoutMessage(lines []model.CartLine, total int64) string {
	details := make([]string, 0, len(lines))
	for _, l := range lines {
		details = append(details, fmt.Sprintf("%s - Qty: %d - %s each", l.Name, l.Quantity, model.FormatCurrency(l.UnitPrice.Amount)))
	}
	return "Hello! I would like to order the following items:\n\n" +
		strings.Join(details, "\n") +
		"\n\nTotal: " + model.FormatCurrency(total) +
		"\n\nPlease let me know about payment and delivery options."
}

// CheckoutLink はwa.meのリンクを返す（空カートは400）
func (u *CartUsecase) CheckoutLink(ctx context.Context, key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}

	c := u.load(ctx, key)
	lines := c.Lines()
	total := c.Total()

	if len(lines) == 0 {
		return "", NewHTTPError(http.StatusBadRequest, "cart is empty")
	}

	//encodeURIComponentと同じく空白は%20
	text := strings.ReplaceAll(url.QueryEscape(CheckoutMessage(lines, total)), "+", "%20")
	return "https://wa.me/" + u.whatsapp + "?text=" + text, nil
}
