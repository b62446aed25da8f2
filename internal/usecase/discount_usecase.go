package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type DiscountUsecase struct {
	discountRepo repo.DiscountRepository
	auditRepo    repo.AuditLogRepository
	now          func() time.Time
}

// DI
func NewDiscountUsecase(discountRepo repo.DiscountRepository, auditRepo repo.AuditLogRepository) *DiscountUsecase {
	return &DiscountUsecase{
		discountRepo: discountRepo,
		auditRepo:    auditRepo,
		now:          time.Now,
	}
}

// 次の段階までの案内
type TierHint struct {
	ProductID        int64  `json:"productId"`
	RuleName         string `json:"ruleName"`
	QuantityNeeded   int64  `json:"quantityNeeded"`
	PotentialSavings int64  `json:"potentialSavings"`
}

// ルール1件での明細の割引額（明細合計が上限）
func lineSavings(r model.DiscountRule, line model.CartLine) int64 {
	total := line.LineTotal()
	var d decimal.Decimal
	switch r.Type {
	case model.DiscountPercentage:
		d = decimal.NewFromInt(total).Mul(decimal.NewFromFloat(r.Value)).Div(hundred)
	case model.DiscountFixed:
		d = decimal.NewFromFloat(r.Value).Mul(decimal.NewFromInt(line.Quantity))
	default:
		return 0
	}
	s := d.Round(0).IntPart()
	if s < 0 {
		return 0
	}
	if s > total {
		return total
	}
	return s
}

// BestDiscount は明細に効く最大の割引を返す。同額ならIDの小さいルール。
func BestDiscount(rules []model.DiscountRule, line model.CartLine, now time.Time) (model.LineDiscount, bool) {
	var best model.LineDiscount
	found := false
	for _, r := range rules {
		if !r.ActiveAt(now) || !r.Covers(line.ProductID, line.Category) || !r.QuantityWithin(line.Quantity) {
			continue
		}
		s := lineSavings(r, line)
		if s <= 0 {
			continue
		}
		if !found || s > best.Savings || (s == best.Savings && r.ID < best.RuleID) {
			best = model.LineDiscount{ProductID: line.ProductID, RuleID: r.ID, RuleName: r.Name, Savings: s}
			found = true
		}
	}
	return best, found
}

// NextTier は今の数量より上の最小段階を返す。無ければnil。
func NextTier(rules []model.DiscountRule, line model.CartLine, now time.Time) *TierHint {
	var next *model.DiscountRule
	for i := range rules {
		r := rules[i]
		if !r.ActiveAt(now) || !r.Covers(line.ProductID, line.Category) || r.MinQuantity <= line.Quantity {
			continue
		}
		if next == nil || r.MinQuantity < next.MinQuantity {
			next = &rules[i]
		}
	}
	if next == nil {
		return nil
	}
	at := line
	at.Quantity = next.MinQuantity
	return &TierHint{
		ProductID:        line.ProductID,
		RuleName:         next.Name,
		QuantityNeeded:   next.MinQuantity - line.Quantity,
		PotentialSavings: lineSavings(*next, at),
	}
}

// Evaluate はカート明細ごとの割引と合計割引額を返す
func (u *DiscountUsecase) Evaluate(ctx context.Context, lines []model.CartLine) ([]model.LineDiscount, []TierHint, int64, error) {
	if len(lines) == 0 {
		return []model.LineDiscount{}, []TierHint{}, 0, nil
	}
	rules, err := u.discountRepo.List(ctx)
	if err != nil {
		return nil, nil, 0, err
	}

	now := u.now()
	discounts := []model.LineDiscount{}
	hints := []TierHint{}
	var total int64
	for _, l := range lines {
		if d, ok := BestDiscount(rules, l, now); ok {
			discounts = append(discounts, d)
			total += d.Savings
		}
		if h := NextTier(rules, l, now); h != nil {
			hints = append(hints, *h)
		}
	}
	return discounts, hints, total, nil
}

// 商品ページ用の段階一覧（最小数量の昇順）
func (u *DiscountUsecase) TiersFor(ctx context.Context, p model.Product) ([]model.DiscountRule, error) {
	rules, err := u.discountRepo.List(ctx)
	if err != nil {
		return nil, repoError(err, "not found")
	}
	now := u.now()
	out := []model.DiscountRule{}
	for _, r := range rules {
		if r.ActiveAt(now) && r.Covers(p.ID, p.Category) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	return out, nil
}

func (u *DiscountUsecase) ListRules(ctx context.Context) ([]model.DiscountRule, error) {
	rules, err := u.discountRepo.List(ctx)
	if err != nil {
		return nil, repoError(err, "not found")
	}
	return rules, nil
}

// POST /admin/discounts の入力
type CreateDiscountInput struct {
	Name           string
	Description    string
	Type           model.DiscountType
	Value          float64
	Scope          model.DiscountScope
	CategoryFilter string
	ProductIDs     []int64
	MinQuantity    int64
	MaxQuantity    int64
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         bool
}

func (u *DiscountUsecase) CreateRule(ctx context.Context, adminUserID int64, in CreateDiscountInput) (model.DiscountRule, error) {
	if adminUserID <= 0 {
		return model.DiscountRule{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "name required")
	}
	switch in.Type {
	case model.DiscountPercentage:
		if in.Value <= 0 || in.Value > 100 {
			return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "percentage must be in (0, 100]")
		}
	case model.DiscountFixed:
		if in.Value <= 0 {
			return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "value must be > 0")
		}
	default:
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "invalid type")
	}

	ids := make([]string, 0, len(in.ProductIDs))
	switch in.Scope {
	case model.DiscountScopeAll:
	case model.DiscountScopeCategory:
		if strings.TrimSpace(in.CategoryFilter) == "" {
			return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "categoryFilter required")
		}
	case model.DiscountScopeSpecific:
		for _, id := range in.ProductIDs {
			if id <= 0 {
				return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
			}
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		if len(ids) == 0 {
			return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "specificProducts required")
		}
	default:
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "invalid scope")
	}

	minQty := in.MinQuantity
	if minQty == 0 {
		minQty = 1
	}
	if minQty < 1 {
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "minQuantity must be >= 1")
	}
	if in.MaxQuantity != 0 && in.MaxQuantity < minQty {
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "maxQuantity must be >= minQuantity")
	}

	now := u.now()
	starts := now
	if in.StartsAt != nil {
		starts = *in.StartsAt
	}
	if in.EndsAt != nil && !in.EndsAt.After(starts) {
		return model.DiscountRule{}, NewHTTPError(http.StatusBadRequest, "endDate must be after startDate")
	}

	created, err := u.discountRepo.Create(ctx, model.DiscountRule{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Type:           in.Type,
		Value:          in.Value,
		Scope:          in.Scope,
		CategoryFilter: strings.TrimSpace(in.CategoryFilter),
		ProductIDs:     strings.Join(ids, ","),
		MinQuantity:    minQty,
		MaxQuantity:    in.MaxQuantity,
		StartsAt:       starts,
		EndsAt:         in.EndsAt,
		Active:         in.Active,
		CreatedAt:      now,
	})
	if err != nil {
		return model.DiscountRule{}, repoError(err, "not found")
	}

	after, _ := json.Marshal(created)
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionCreateDiscount,
		ResourceType: model.AuditResourceDiscount,
		ResourceID:   created.ID,
		AfterJSON:    string(after),
		CreatedAt:    now,
	}); err != nil {
		return model.DiscountRule{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return created, nil
}

func (u *DiscountUsecase) DeleteRule(ctx context.Context, adminUserID int64, id int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid discount id")
	}
	if err := u.discountRepo.Delete(ctx, id); err != nil {
		return repoError(err, "not found")
	}

	//監査ログ（削除）
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionDeleteDiscount,
		ResourceType: model.AuditResourceDiscount,
		ResourceID:   id,
		CreatedAt:    u.now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
