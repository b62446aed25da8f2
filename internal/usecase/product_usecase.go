package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/messaging"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	auditRepo   repo.AuditLogRepository
	txm         repo.TransactionManager
	publisher   messaging.Publisher
	topic       string
	log         *zap.Logger

	//カタログ全件のキャッシュ（商品イベントで破棄）
	//genはInvalidateのたびに進む。読み込み中に進んだら結果を捨てる
	mu       sync.RWMutex
	snapshot []model.Product
	gen      uint64
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	auditRepo repo.AuditLogRepository,
	txm repo.TransactionManager,
	publisher messaging.Publisher,
	topic string,
	log *zap.Logger,
) *ProductUsecase {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if topic == "" {
		topic = messaging.ProductEventsTopic
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductUsecase{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txm:         txm,
		publisher:   publisher,
		topic:       topic,
		log:         log,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	InStock  *bool
	Featured *bool
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// Snapshot はカタログ全件を返す。キャッシュがあればそれを使う。
// 返すスライスは呼び出し側で変更してよい（コピー）。
func (u *ProductUsecase) Snapshot(ctx context.Context) ([]model.Product, error) {
	u.mu.RLock()
	cached := u.snapshot
	gen := u.gen
	u.mu.RUnlock()
	if cached != nil {
		return append([]model.Product(nil), cached...), nil
	}

	items, err := u.productRepo.List(ctx, repo.ProductFilter{})
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	if u.gen == gen {
		u.snapshot = items
	}
	u.mu.Unlock()
	return append([]model.Product(nil), items...), nil
}

func (u *ProductUsecase) Invalidate() {
	u.mu.Lock()
	u.snapshot = nil
	u.gen++
	u.mu.Unlock()
}

// HandleEvent は商品イベントを受けてキャッシュを捨てる
func (u *ProductUsecase) HandleEvent(ctx context.Context, payload []byte) error {
	var ev model.ProductEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode product event: %w", err)
	}
	u.log.Debug("product event", zap.String("type", string(ev.Type)), zap.Int64("product_id", ev.ProductID))
	u.Invalidate()
	return nil
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}

	offset := (in.Page - 1) * in.Limit
	q := strings.TrimSpace(in.Q)
	category := strings.TrimSpace(in.Category)

	//絞り込み無しはキャッシュから
	if q == "" && category == "" && in.InStock == nil && in.Featured == nil {
		all, err := u.Snapshot(ctx)
		if err != nil {
			return ProductListOutput{}, repoError(err, "not found")
		}
		items := []model.Product{}
		if offset < len(all) {
			end := offset + in.Limit
			if end > len(all) {
				end = len(all)
			}
			items = all[offset:end]
		}
		return ProductListOutput{Items: items, Page: in.Page, Limit: in.Limit}, nil
	}

	items, err := u.productRepo.List(ctx, repo.ProductFilter{
		Q:        q,
		Category: category,
		InStock:  in.InStock,
		Featured: in.Featured,
		Limit:    in.Limit,
		Offset:   offset,
	})
	if err != nil {
		return ProductListOutput{}, repoError(err, "not found")
	}
	return ProductListOutput{Items: items, Page: in.Page, Limit: in.Limit}, nil
}

// カテゴリ（商品から集計）
type CategoryOutput struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ProductCount int    `json:"productCount"`
	InStockCount int    `json:"inStockCount"`
}

// ListCategories は商品のカテゴリを名前順で返す。カテゴリ空の商品は数えない。
func (u *ProductUsecase) ListCategories(ctx context.Context) ([]CategoryOutput, error) {
	all, err := u.Snapshot(ctx)
	if err != nil {
		return nil, repoError(err, "not found")
	}

	byName := map[string]*CategoryOutput{}
	for _, p := range all {
		name := strings.TrimSpace(p.Category)
		if name == "" {
			continue
		}
		c, ok := byName[name]
		if !ok {
			c = &CategoryOutput{Name: name, Slug: slugify(name)}
			byName[name] = c
		}
		c.ProductCount++
		if p.InStock {
			c.InStockCount++
		}
	}

	out := make([]CategoryOutput, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// "Motor Drivers & Shields" -> "motor-drivers-shields"
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return model.Product{}, repoError(err, "not found")
	}
	return p, nil
}

type AdminCreateProductInput struct {
	Name        string
	Price       string
	Category    string
	Image       string
	Description string
	InStock     bool
	Featured    bool
	Badge       string
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminCreateProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "name required")
	}
	if strings.TrimSpace(in.Price) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price required")
	}
	if _, err := model.ParsePrice(in.Price); err != nil {
		//"Call for price"などはそのまま保存する（価格0扱い）
		u.log.Debug("price not numeric", zap.String("price", in.Price), zap.Error(err))
	}

	var created model.Product
	err := u.txm.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().Create(ctx, model.Product{
			Name:        strings.TrimSpace(in.Name),
			Price:       strings.TrimSpace(in.Price),
			Category:    strings.TrimSpace(in.Category),
			Image:       strings.TrimSpace(in.Image),
			Description: in.Description,
			InStock:     in.InStock,
			Featured:    in.Featured,
			Badge:       in.Badge,
		})
		if err != nil {
			return err
		}
		created = p

		after, _ := json.Marshal(p)
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionCreateProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   p.ID,
			AfterJSON:    string(after),
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		return model.Product{}, repoError(err, "not found")
	}

	u.Invalidate()
	u.publish(ctx, model.ProductAdded, created.ID, map[string]string{"name": created.Name})
	return created, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, patch model.ProductPatch) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "name required")
	}
	if patch.Price != nil && strings.TrimSpace(*patch.Price) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price required")
	}

	updated, err := u.updateWithAudit(ctx, adminUserID, productID, patch, model.AuditActionUpdateProduct)
	if err != nil {
		return model.Product{}, err
	}

	typ := model.ProductUpdated
	if onlyImage(patch) {
		typ = model.ProductImageUpdated
	}
	u.publish(ctx, typ, updated.ID, nil)
	return updated, nil
}

// AssignImage は商品画像だけを差し替える（照合結果の適用で使う）
func (u *ProductUsecase) AssignImage(ctx context.Context, adminUserID int64, productID int64, imageURL string) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if strings.TrimSpace(imageURL) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "image url required")
	}

	updated, err := u.updateWithAudit(ctx, adminUserID, productID, model.ProductPatch{Image: &imageURL}, model.AuditActionAssignImage)
	if err != nil {
		return model.Product{}, err
	}
	u.publish(ctx, model.ProductImageUpdated, updated.ID, map[string]string{"image": imageURL})
	return updated, nil
}

// 変更前を読んで更新し、監査ログを同じTxで書く
func (u *ProductUsecase) updateWithAudit(ctx context.Context, adminUserID int64, productID int64, patch model.ProductPatch, action model.AuditAction) (model.Product, error) {
	var updated model.Product
	err := u.txm.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		p, err := r.Products().Update(ctx, productID, patch)
		if err != nil {
			return err
		}
		updated = p

		beforeJSON, _ := json.Marshal(before)
		afterJSON, _ := json.Marshal(p)
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       action,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		return model.Product{}, repoError(err, "not found")
	}

	u.Invalidate()
	return updated, nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.txm.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if err := r.Products().Delete(ctx, productID); err != nil {
			return err
		}
		beforeJSON, _ := json.Marshal(before)
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionDeleteProduct,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   string(beforeJSON),
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		return repoError(err, "not found")
	}

	u.Invalidate()
	u.publish(ctx, model.ProductDeleted, productID, nil)
	return nil
}

// GET /admin/audit-logs の入力
type AuditLogQuery struct {
	Limit        int
	ResourceType model.AuditResourceType
	ResourceID   int64
	Action       model.AuditAction
	BeforeID     int64
}

// 監査ログのページ。NextBeforeID が0なら続きは無い。
type AuditLogPage struct {
	Items        []model.AuditLog `json:"items"`
	NextBeforeID int64            `json:"nextBeforeId,omitempty"`
}

var knownAuditActions = map[model.AuditAction]bool{
	model.AuditActionCreateProduct:  true,
	model.AuditActionUpdateProduct:  true,
	model.AuditActionDeleteProduct:  true,
	model.AuditActionAssignImage:    true,
	model.AuditActionCreateDiscount: true,
	model.AuditActionDeleteDiscount: true,
}

// 監査ログ一覧（新しい順、before_idで続きを読む）
func (u *ProductUsecase) AdminListAuditLogs(ctx context.Context, adminUserID int64, in AuditLogQuery) (AuditLogPage, error) {
	if adminUserID <= 0 {
		return AuditLogPage{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Limit < 1 || in.Limit > 200 {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	switch in.ResourceType {
	case "", model.AuditResourceProduct, model.AuditResourceDiscount:
	default:
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
	}
	if in.Action != "" && !knownAuditActions[in.Action] {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid action")
	}
	if in.ResourceID < 0 || in.BeforeID < 0 {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	logs, err := u.auditRepo.List(ctx, repo.AuditLogFilter{
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Action:       in.Action,
		BeforeID:     in.BeforeID,
		Limit:        in.Limit,
	})
	if err != nil {
		return AuditLogPage{}, repoError(err, "not found")
	}

	page := AuditLogPage{Items: logs}
	if page.Items == nil {
		page.Items = []model.AuditLog{}
	}
	if len(logs) == in.Limit {
		page.NextBeforeID = logs[len(logs)-1].ID
	}
	return page, nil
}

// イベント配信の失敗は更新を失敗にしない
func (u *ProductUsecase) publish(ctx context.Context, typ model.ProductEventType, productID int64, data map[string]string) {
	ev := model.ProductEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		ProductID: productID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if err := u.publisher.PublishEvent(ctx, u.topic, strconv.FormatInt(productID, 10), ev); err != nil {
		u.log.Warn("publish product event failed",
			zap.String("type", string(typ)),
			zap.Int64("product_id", productID),
			zap.Error(err),
		)
	}
}

func onlyImage(p model.ProductPatch) bool {
	return p.Image != nil &&
		p.Name == nil && p.Price == nil && p.Category == nil &&
		p.Description == nil && p.InStock == nil && p.Featured == nil && p.Badge == nil
}
