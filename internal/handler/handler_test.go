package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/cart"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/messaging"
	"storefront/internal/middleware"
	repo "storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "handler-test-secret"
	cdnBase    = "https://cdn.test/products"
)

// =====================
// fake blob store
// =====================

type fakeBlobs struct {
	mu         sync.Mutex
	objects    []model.ImageObject
	failUpload bool
}

func (f *fakeBlobs) List(ctx context.Context) ([]model.ImageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ImageObject, len(f.objects))
	copy(out, f.objects)
	return out, nil
}

func (f *fakeBlobs) PublicURL(name string) string {
	return cdnBase + "/" + name
}

func (f *fakeBlobs) Upload(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	if f.failUpload {
		return "", errors.New("bucket unavailable")
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, model.ImageObject{Name: name, CreatedAt: time.Now()})
	return f.PublicURL(name), nil
}

// =====================
// fake MoMo gateway
// =====================

type fakeGateway struct {
	mu       sync.Mutex
	requests []repo.PaymentRequest
	statuses map[string]repo.GatewayStatus
}

func (f *fakeGateway) RequestToPay(ctx context.Context, req repo.PaymentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.PhoneNumber == "0000000000" {
		return repo.NewTransportError("momo request to pay", errors.New("status 400"))
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeGateway) PaymentStatus(ctx context.Context, referenceID string) (repo.GatewayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[referenceID]
	if !ok {
		st = repo.GatewayPending
	}
	return repo.GatewayResult{Status: st}, nil
}

func (f *fakeGateway) set(ref string, st repo.GatewayStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[ref] = st
}

// =====================
// helper
// =====================

type testApp struct {
	handler  http.Handler
	products *infraRepo.ProductGormRepository
	blobs    *fakeBlobs
	gateway  *fakeGateway
	token    string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := db.Connect(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name), false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	productRepo := infraRepo.NewProductGormRepository(gdb)
	auditRepo := infraRepo.NewAuditLogGormRepository(gdb)
	blobs := &fakeBlobs{}

	discountUC := usecase.NewDiscountUsecase(infraRepo.NewDiscountGormRepository(gdb), auditRepo)
	productUC := usecase.NewProductUsecase(productRepo, auditRepo, infraRepo.NewTxManagerGorm(gdb), messaging.NopPublisher{}, "", zap.NewNop())
	cartUC := usecase.NewCartUsecase(productRepo, infraRepo.NewCartStateGormRepository(gdb), discountUC, cart.DefaultPricingRules(), "260977000000", zap.NewNop())
	reconcileUC := usecase.NewReconcileUsecase(blobs, productUC, productUC, 0, zap.NewNop())
	gateway := &fakeGateway{statuses: map[string]repo.GatewayStatus{}}
	orderUC := usecase.NewOrderUsecase(infraRepo.NewTxManagerGorm(gdb), cartUC, gateway, "EUR", zap.NewNop())

	cfg := &config.Config{Port: "0", JWTSecret: testSecret, CORSOrigins: []string{"http://localhost:5173"}}
	srv := server.New(cfg, zap.NewNop(), server.Handlers{
		Health:       handler.NewHealthHandler(),
		Product:      handler.NewProductHandler(productUC, discountUC),
		Cart:         handler.NewCartHandler(cartUC, false),
		Order:        handler.NewOrderHandler(orderUC, false),
		AdminProduct: handler.NewAdminProductHandler(productUC, discountUC),
		AdminImage:   handler.NewAdminImageHandler(reconcileUC),
	})

	tok := mustMakeJWT(t, 1, middleware.RoleAdmin)
	return &testApp{handler: srv.Handler(), products: productRepo, blobs: blobs, gateway: gateway, token: tok}
}

func mustMakeJWT(t *testing.T, sub int64, role string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func (a *testApp) seed(t *testing.T, ps ...model.Product) []model.Product {
	t.Helper()
	out := make([]model.Product, 0, len(ps))
	for _, p := range ps {
		created, err := a.products.Create(context.Background(), p)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func seedCatalog(t *testing.T, a *testApp) []model.Product {
	return a.seed(t,
		model.Product{Name: "Arduino Uno R3", Price: "K650", Category: "Microcontrollers", Image: cdnBase + "/arduino-uno.jpg", InStock: true, Featured: true},
		model.Product{Name: "Arduino Nano", Price: "K350", Category: "Microcontrollers", InStock: true},
		model.Product{Name: "ESP32 DevKit", Price: "K480", Category: "Microcontrollers", InStock: false},
		model.Product{Name: "HC-SR04 Ultrasonic Sensor", Price: "K95", Category: "Sensors", InStock: true},
	)
}

type request struct {
	method  string
	path    string
	body    interface{}
	token   string
	cookies []*http.Cookie
	header  map[string]string
}

func (a *testApp) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cartCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == handler.CartCookieName {
			return c
		}
	}
	t.Fatalf("cookie %s not set", handler.CartCookieName)
	return nil
}

// =====================
// public
// =====================

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	rec := a.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProducts_ListAndDetail(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)

	rec := a.do(t, request{method: http.MethodGet, path: "/products?limit=2"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[usecase.ProductListOutput](t, rec)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, 1, out.Page)

	rec = a.do(t, request{method: http.MethodGet, path: "/products?q=arduino&in_stock=true"})
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode[usecase.ProductListOutput](t, rec)
	assert.Len(t, out.Items, 2)

	rec = a.do(t, request{method: http.MethodGet, path: "/products?category=sensors"})
	out = decode[usecase.ProductListOutput](t, rec)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "HC-SR04 Ultrasonic Sensor", out.Items[0].Name)

	rec = a.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/products/%d", ps[0].ID)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "K650", decode[model.Product](t, rec).Price)
}

func TestProducts_Errors(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		path string
		code int
		msg  string
	}{
		{"/products?page=x", http.StatusBadRequest, "invalid page"},
		{"/products?limit=500", http.StatusBadRequest, "invalid limit"},
		{"/products?in_stock=maybe", http.StatusBadRequest, "invalid in_stock"},
		{"/products/abc", http.StatusBadRequest, "invalid id"},
		{"/products/999", http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := a.do(t, request{method: http.MethodGet, path: tt.path})
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decode[handler.ErrorResponse](t, rec).Error, tt.msg)
		})
	}
}

// =====================
// cart
// =====================

func TestCart_Flow(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	uno := ps[0]

	//初回アクセスでcookieが発行される
	rec := a.do(t, request{method: http.MethodGet, path: "/cart"})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := cartCookie(t, rec)
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)

	rec = a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: uno.ID, Quantity: 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[usecase.CartResponse](t, rec)
	require.Len(t, out.Items, 1)
	// 1300 + 送料2500 + VAT 214.5→215
	assert.Equal(t, int64(1300), out.Totals.Subtotal)
	assert.Equal(t, int64(2500), out.Totals.Shipping)
	assert.Equal(t, int64(215), out.Totals.Tax)
	assert.Equal(t, int64(4015), out.Totals.Total)
	assert.Equal(t, "K4,015", out.Formatted.Total)

	rec = a.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/cart/items/%d", uno.ID), cookies: []*http.Cookie{ck}})
	status := decode[handler.CartItemStatusResponse](t, rec)
	assert.True(t, status.InCart)
	assert.Equal(t, int64(2), status.Quantity)

	rec = a.do(t, request{method: http.MethodPatch, path: fmt.Sprintf("/cart/items/%d", uno.ID), cookies: []*http.Cookie{ck},
		body: handler.UpdateCartItemRequest{Quantity: 5}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), decode[usecase.CartResponse](t, rec).Items[0].Quantity)

	rec = a.do(t, request{method: http.MethodGet, path: "/cart/checkout", cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusOK, rec.Code)
	link := decode[handler.CheckoutResponse](t, rec).URL
	assert.True(t, strings.HasPrefix(link, "https://wa.me/260977000000?text="))
	assert.Contains(t, link, "Arduino%20Uno%20R3")

	rec = a.do(t, request{method: http.MethodDelete, path: fmt.Sprintf("/cart/items/%d", uno.ID), cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)

	rec = a.do(t, request{method: http.MethodGet, path: "/cart/checkout", cookies: []*http.Cookie{ck}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart is empty", decode[handler.ErrorResponse](t, rec).Error)
}

func TestCart_Errors(t *testing.T) {
	a := newTestApp(t)
	seedCatalog(t, a)
	ck := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e01"}

	rec := a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: 999, Quantity: 1}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", decode[handler.ErrorResponse](t, rec).Error)

	rec = a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: 1, Quantity: -1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, request{method: http.MethodPatch, path: "/cart/items/2", cookies: []*http.Cookie{ck},
		body: handler.UpdateCartItemRequest{Quantity: 3}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "item not in cart", decode[handler.ErrorResponse](t, rec).Error)

	//0は削除扱い。カートに無くても200
	rec = a.do(t, request{method: http.MethodPatch, path: "/cart/items/2", cookies: []*http.Cookie{ck},
		body: handler.UpdateCartItemRequest{Quantity: 0}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)
}

// 不正なcookieは捨てて新しいセッションを発行する
func TestCart_InvalidCookieGetsFreshSession(t *testing.T) {
	a := newTestApp(t)
	bad := &http.Cookie{Name: handler.CartCookieName, Value: strings.Repeat("x", 4096)}

	rec := a.do(t, request{method: http.MethodGet, path: "/cart", cookies: []*http.Cookie{bad}})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := cartCookie(t, rec)
	assert.NotEqual(t, bad.Value, ck.Value)
	assert.True(t, usecase.ValidSessionKey(ck.Value))
}

// quantity省略は1、DELETE /cartで空になる
func TestCart_ClearRemovesState(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	ck := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e02"}

	a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: ps[3].ID}})

	rec := a.do(t, request{method: http.MethodGet, path: "/cart", cookies: []*http.Cookie{ck}})
	out := decode[usecase.CartResponse](t, rec)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(1), out.Items[0].Quantity)

	rec = a.do(t, request{method: http.MethodDelete, path: "/cart", cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[usecase.CartResponse](t, rec).Totals.Total)
}

// =====================
// admin
// =====================

func TestAdmin_RequiresAdminToken(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(t, request{method: http.MethodGet, path: "/admin/images"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/images", token: mustMakeJWT(t, 2, "USER")})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_ProductCRUDAndAuditLogs(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(t, request{method: http.MethodPost, path: "/admin/products", token: a.token,
		body: handler.ProductCreateRequest{Name: "Servo SG90", Price: "K120", Category: "Motors"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.Product](t, rec)
	assert.True(t, created.InStock)

	badge := "New"
	rec = a.do(t, request{method: http.MethodPatch, path: fmt.Sprintf("/admin/products/%d", created.ID), token: a.token,
		body: handler.ProductPatchRequest{Badge: &badge}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New", decode[model.Product](t, rec).Badge)

	//公開APIにも反映される（キャッシュは更新で破棄）
	rec = a.do(t, request{method: http.MethodGet, path: "/products"})
	items := decode[usecase.ProductListOutput](t, rec).Items
	require.Len(t, items, 1)
	assert.Equal(t, "New", items[0].Badge)

	rec = a.do(t, request{method: http.MethodDelete, path: fmt.Sprintf("/admin/products/%d", created.ID), token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/audit-logs?limit=10", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[usecase.AuditLogPage](t, rec).Items
	assert.Len(t, logs, 3)

	//商品ごと・操作ごとの絞り込み
	rec = a.do(t, request{method: http.MethodGet, token: a.token,
		path: fmt.Sprintf("/admin/audit-logs?resource_type=product&resource_id=%d&action=DELETE_PRODUCT", created.ID)})
	require.Equal(t, http.StatusOK, rec.Code)
	logs = decode[usecase.AuditLogPage](t, rec).Items
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionDeleteProduct, logs[0].Action)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/audit-logs?limit=2", token: a.token})
	page := decode[usecase.AuditLogPage](t, rec)
	require.Len(t, page.Items, 2)
	rec = a.do(t, request{method: http.MethodGet, token: a.token,
		path: fmt.Sprintf("/admin/audit-logs?limit=2&before_id=%d", page.NextBeforeID)})
	assert.Len(t, decode[usecase.AuditLogPage](t, rec).Items, 1)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/audit-logs?resource_id=x", token: a.token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, request{method: http.MethodPost, path: "/admin/products", token: a.token,
		body: handler.ProductCreateRequest{Price: "K1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name required", decode[handler.ErrorResponse](t, rec).Error)
}

func TestAdmin_DiscountsAndQuote(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	sensor := ps[3]

	start := time.Now().Add(-time.Hour)
	rec := a.do(t, request{method: http.MethodPost, path: "/admin/discounts", token: a.token,
		body: handler.DiscountCreateRequest{
			Name: "Sensors 3+", Type: model.DiscountPercentage, Value: 10,
			Scope: model.DiscountScopeCategory, CategoryFilter: "Sensors",
			MinQuantity: 3, StartDate: &start,
		}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[model.DiscountRule](t, rec)

	rec = a.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/products/%d/discount-tiers", sensor.ID)})
	require.Equal(t, http.StatusOK, rec.Code)
	tiers := decode[struct {
		Items []model.DiscountRule `json:"items"`
	}](t, rec).Items
	require.Len(t, tiers, 1)

	ck := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e03"}
	a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: sensor.ID, Quantity: 2}})

	//2個ではまだ割引なし、次の段階の案内が出る
	rec = a.do(t, request{method: http.MethodGet, path: "/cart/quote", cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[usecase.QuoteResponse](t, rec)
	assert.Empty(t, q.Discounts)
	require.Len(t, q.NextTiers, 1)
	assert.Equal(t, int64(1), q.NextTiers[0].QuantityNeeded)

	a.do(t, request{method: http.MethodPatch, path: fmt.Sprintf("/cart/items/%d", sensor.ID), cookies: []*http.Cookie{ck},
		body: handler.UpdateCartItemRequest{Quantity: 4}})
	rec = a.do(t, request{method: http.MethodGet, path: "/cart/quote", cookies: []*http.Cookie{ck}})
	q = decode[usecase.QuoteResponse](t, rec)
	require.Len(t, q.Discounts, 1)
	// 380 * 10% = 38
	assert.Equal(t, int64(38), q.Savings)
	assert.Equal(t, q.Totals.Total-38, q.Payable)

	rec = a.do(t, request{method: http.MethodDelete, path: fmt.Sprintf("/admin/discounts/%d", rule.ID), token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, request{method: http.MethodDelete, path: fmt.Sprintf("/admin/discounts/%d", rule.ID), token: a.token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =====================
// images
// =====================

func TestAdminImages_StatsAndSuggestions(t *testing.T) {
	a := newTestApp(t)
	seedCatalog(t, a)
	a.blobs.objects = []model.ImageObject{
		{Name: "arduino-uno.jpg"},
		{Name: "arduino-nano-v3.png"},
		{Name: "random-photo.jpg"},
	}

	rec := a.do(t, request{method: http.MethodGet, path: "/admin/images/stats", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[usecase.AssignmentStats](t, rec)
	assert.Equal(t, 3, st.TotalImages)
	assert.Equal(t, 1, st.AssignedCount)
	assert.Equal(t, 2, st.UnassignedCount)
	assert.Equal(t, 33, st.Percentage)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/images/matches?name=arduino-nano-v3.png", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[struct {
		Items []model.Product `json:"items"`
	}](t, rec).Items
	require.NotEmpty(t, matches)
	assert.Equal(t, "Arduino Nano", matches[0].Name)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/images/matches", token: a.token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/images/suggestions", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[usecase.SuggestionsOutput](t, rec).Suggestions, 2)
}

func uploadRequest(t *testing.T, token, productName, fileName string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("productName", productName))
	fw, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, _ = fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/images", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAdminImages_Upload(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, uploadRequest(t, a.token, "Arduino Uno R3", "photo.PNG"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[usecase.UploadResult](t, rec)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.PublicURL, cdnBase+"/arduino-uno-r3-"))
	assert.True(t, strings.HasSuffix(res.PublicURL, ".png"))

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, uploadRequest(t, a.token, "Arduino Uno R3", "notes.txt"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.blobs.failUpload = true
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, uploadRequest(t, a.token, "Arduino Uno R3", "photo.jpg"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	res = decode[usecase.UploadResult](t, rec)
	assert.False(t, res.Success)
	assert.Equal(t, "bucket unavailable", res.Error)
}

func TestAdminImages_ApplyLiveAndArtifact(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	nano := ps[1]
	newURL := cdnBase + "/arduino-nano-v3.png"

	//artifactはカタログを書き換えない
	rec := a.do(t, request{method: http.MethodPost, path: "/admin/images/assignments?download=1", token: a.token,
		body: handler.AssignmentsRequest{Mode: model.ApplyArtifact, Assignments: []model.Assignment{{ProductID: nano.ID, ImageURL: newURL}}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "products.js")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "export const products = ["))
	assert.Contains(t, rec.Body.String(), newURL)

	got, err := a.products.FindByID(context.Background(), nano.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Image)

	rec = a.do(t, request{method: http.MethodPost, path: "/admin/images/assignments", token: a.token,
		body: handler.AssignmentsRequest{Mode: model.ApplyLive, Assignments: []model.Assignment{
			{ProductID: nano.ID, ImageURL: newURL},
			{ProductID: 999, ImageURL: newURL},
		}}})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[model.ApplyResult](t, rec)
	assert.Equal(t, model.ApplySummary{Total: 2, Success: 1, Failed: 1}, res.Summary)

	got, err = a.products.FindByID(context.Background(), nano.ID)
	require.NoError(t, err)
	assert.Equal(t, newURL, got.Image)

	rec = a.do(t, request{method: http.MethodPost, path: "/admin/images/assignments", token: a.token,
		body: handler.AssignmentsRequest{Mode: "dry"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReconcileSession(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	a.blobs.objects = []model.ImageObject{{Name: "esp32-devkit.jpg"}}

	rec := a.do(t, request{method: http.MethodPost, path: "/admin/reconcile/sessions", token: a.token})
	require.Equal(t, http.StatusCreated, rec.Code)
	s := decode[usecase.ReconcileSession](t, rec)
	assert.Equal(t, usecase.SessionReady, s.State)
	require.Len(t, s.Suggestions, 1)

	rec = a.do(t, request{method: http.MethodPost, path: "/admin/reconcile/sessions/" + s.ID + "/apply", token: a.token,
		body: handler.AssignmentsRequest{Mode: model.ApplyLive, Assignments: []model.Assignment{{ProductID: ps[2].ID, ImageURL: cdnBase + "/esp32-devkit.jpg"}}}})
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[usecase.ReconcileSession](t, rec)
	assert.Equal(t, usecase.SessionApplied, s.State)

	//applied からもう一度 apply はできない
	rec = a.do(t, request{method: http.MethodPost, path: "/admin/reconcile/sessions/" + s.ID + "/apply", token: a.token,
		body: handler.AssignmentsRequest{Mode: model.ApplyLive, Assignments: []model.Assignment{{ProductID: ps[2].ID, ImageURL: "x"}}}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, request{method: http.MethodPost, path: "/admin/reconcile/sessions/" + s.ID + "/restart", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[usecase.ReconcileSession](t, rec)
	assert.Equal(t, usecase.SessionReady, s.State)
	assert.Empty(t, s.Suggestions)
	require.NotNil(t, s.Classification)
	assert.Len(t, s.Classification.Assigned, 1)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/reconcile/sessions/nope", token: a.token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =====================
// categories
// =====================

func TestCategories(t *testing.T) {
	a := newTestApp(t)
	seedCatalog(t, a)

	rec := a.do(t, request{method: http.MethodGet, path: "/categories"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Items []usecase.CategoryOutput `json:"items"`
	}](t, rec)
	require.Len(t, out.Items, 2)
	assert.Equal(t, usecase.CategoryOutput{Name: "Microcontrollers", Slug: "microcontrollers", ProductCount: 3, InStockCount: 2}, out.Items[0])
	assert.Equal(t, "Sensors", out.Items[1].Name)
}

// =====================
// orders / MoMo payment
// =====================

func orderBody(phone string) handler.OrderCreateRequest {
	return handler.OrderCreateRequest{
		Name:    "Mwila Banda",
		Email:   "mwila@example.com",
		Phone:   phone,
		Address: "Plot 12, Cairo Rd",
		City:    "Lusaka",
	}
}

func TestOrders_MomoCheckout(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	ck := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e04"}
	idem := map[string]string{"X-Idempotency-Key": "checkout-1"}

	rec := a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: ps[0].ID, Quantity: 2}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, header: idem, body: orderBody("0977 123 456")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[usecase.OrderOutput](t, rec)
	assert.Equal(t, "PENDING", order.Status)
	assert.Equal(t, int64(4015), order.TotalPrice)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Arduino Uno R3", order.Items[0].Name)

	//同じキーの再送は同じ注文
	rec = a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, header: idem, body: orderBody("0977 123 456")})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, order.ID, decode[usecase.OrderOutput](t, rec).ID)

	rec = a.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/orders/%d/payment", order.ID), cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	pay := decode[usecase.PaymentOutput](t, rec)
	assert.Equal(t, "initiated", pay.Status)
	require.Len(t, a.gateway.requests, 1)
	assert.Equal(t, int64(4015), a.gateway.requests[0].Amount)
	assert.Equal(t, "0977123456", a.gateway.requests[0].PhoneNumber)

	rec = a.do(t, request{method: http.MethodPost, path: "/payments/" + pay.TransactionID + "/verify"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode[usecase.PaymentOutput](t, rec).Status)

	a.gateway.set(pay.TransactionID, repo.GatewaySuccessful)
	rec = a.do(t, request{method: http.MethodPost, path: "/payments/" + pay.TransactionID + "/verify"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[usecase.PaymentOutput](t, rec)
	assert.Equal(t, "completed", v.Status)
	assert.Equal(t, "Payment completed successfully!", v.Message)

	rec = a.do(t, request{method: http.MethodGet, path: "/payments/" + pay.TransactionID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[usecase.PaymentOutput](t, rec).Status)

	rec = a.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/orders/%d", order.ID), cookies: []*http.Cookie{ck}})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[usecase.OrderOutput](t, rec)
	assert.Equal(t, "PAID", got.Status)
	require.Len(t, got.Payments, 1)

	//支払い完了でカートは空
	rec = a.do(t, request{method: http.MethodGet, path: "/cart", cookies: []*http.Cookie{ck}})
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)

	rec = a.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/orders/%d/payment", order.ID), cookies: []*http.Cookie{ck}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	//管理者の一覧
	rec = a.do(t, request{method: http.MethodGet, path: "/admin/orders?status=PAID", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[usecase.AdminOrderList](t, rec)
	assert.Equal(t, int64(1), list.Total)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/payments", token: a.token})
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decode[struct {
		Items []usecase.PaymentOutput `json:"items"`
		Total int                     `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, payments.Total)
	assert.Equal(t, pay.TransactionID, payments.Items[0].TransactionID)

	rec = a.do(t, request{method: http.MethodGet, path: "/admin/payments"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrders_Errors(t *testing.T) {
	a := newTestApp(t)
	ps := seedCatalog(t, a)
	ck := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e05"}
	other := &http.Cookie{Name: handler.CartCookieName, Value: "0b7e6f1e-5a0d-4c55-8f3e-1d2c3b4a5e06"}
	idem := map[string]string{"X-Idempotency-Key": "checkout-1"}

	//空カート
	rec := a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, header: idem, body: orderBody("0977123456")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart empty", decode[handler.ErrorResponse](t, rec).Error)

	a.do(t, request{method: http.MethodPost, path: "/cart/items", cookies: []*http.Cookie{ck},
		body: handler.AddCartRequest{ProductID: ps[3].ID, Quantity: 1}})

	//キー無し・電話番号不正
	rec = a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, body: orderBody("0977123456")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid idempotency_key", decode[handler.ErrorResponse](t, rec).Error)
	rec = a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, header: idem, body: orderBody("12-34")})
	assert.Equal(t, "invalid phone", decode[handler.ErrorResponse](t, rec).Error)

	//MoMoが拒否した番号
	rec = a.do(t, request{method: http.MethodPost, path: "/orders", cookies: []*http.Cookie{ck}, header: idem, body: orderBody("0000000000")})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[usecase.OrderOutput](t, rec)

	rec = a.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/orders/%d/payment", order.ID), cookies: []*http.Cookie{ck}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	//他のセッションからは見えない
	rec = a.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/orders/%d", order.ID), cookies: []*http.Cookie{other}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/orders/%d/payment", order.ID), cookies: []*http.Cookie{other}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, request{method: http.MethodGet, path: "/orders/abc", cookies: []*http.Cookie{ck}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, request{method: http.MethodPost, path: "/payments/not-a-transaction/verify"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, request{method: http.MethodGet, path: "/admin/orders?status=SHIPPED", token: a.token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
