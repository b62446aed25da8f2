package usecase_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	products   repo.ProductRepository
	auditLogs  repo.AuditLogRepository
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	payments   repo.PaymentRepository
}

func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }
func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) Payments() repo.PaymentRepository     { return r.payments }

// =====================
// Repository mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) List(ctx context.Context, f repo.ProductFilter) ([]model.Product, error) {
	args := m.Called(ctx, f)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	args := m.Called(ctx, id, patch)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type CartStateRepoMock struct{ mock.Mock }

func (m *CartStateRepoMock) Load(ctx context.Context, key string) (model.CartState, error) {
	args := m.Called(ctx, key)
	st, _ := args.Get(0).(model.CartState)
	return st, args.Error(1)
}

func (m *CartStateRepoMock) Save(ctx context.Context, key string, st model.CartState) error {
	args := m.Called(ctx, key, st)
	return args.Error(0)
}

func (m *CartStateRepoMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// CartStateStoreFake は保存した状態をそのまま返すメモリ実装
type CartStateStoreFake struct {
	mu      sync.Mutex
	states  map[string]model.CartState
	SaveErr error
	Loads   int
}

func newCartStateStore() *CartStateStoreFake {
	return &CartStateStoreFake{states: map[string]model.CartState{}}
}

func (f *CartStateStoreFake) Load(ctx context.Context, key string) (model.CartState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Loads++
	st, ok := f.states[key]
	if !ok {
		return model.CartState{}, repo.ErrNotFound
	}
	return st, nil
}

func (f *CartStateStoreFake) Save(ctx context.Context, key string, st model.CartState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.states[key] = st
	return nil
}

func (f *CartStateStoreFake) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[key]; !ok {
		return repo.ErrNotFound
	}
	delete(f.states, key)
	return nil
}

func (f *CartStateStoreFake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

type DiscountRepoMock struct{ mock.Mock }

func (m *DiscountRepoMock) List(ctx context.Context) ([]model.DiscountRule, error) {
	args := m.Called(ctx)
	rs, _ := args.Get(0).([]model.DiscountRule)
	return rs, args.Error(1)
}

func (m *DiscountRepoMock) Create(ctx context.Context, r model.DiscountRule) (model.DiscountRule, error) {
	args := m.Called(ctx, r)
	out, _ := args.Get(0).(model.DiscountRule)
	return out, args.Error(1)
}

func (m *DiscountRepoMock) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type BlobStoreMock struct{ mock.Mock }

func (m *BlobStoreMock) List(ctx context.Context) ([]model.ImageObject, error) {
	args := m.Called(ctx)
	imgs, _ := args.Get(0).([]model.ImageObject)
	return imgs, args.Error(1)
}

func (m *BlobStoreMock) PublicURL(name string) string {
	return "https://cdn.example/products/" + name
}

func (m *BlobStoreMock) Upload(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, name, contentType)
	return args.String(0), args.Error(1)
}

// =====================
// Collaborator mocks
// =====================

// =====================
// Orders / Payments
// =====================

// OrderStoreFake は注文・明細・支払いのメモリ実装
type OrderStoreFake struct {
	mu       sync.Mutex
	orders   []model.Order
	items    []model.OrderItem
	payments []model.Payment
}

func (f *OrderStoreFake) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (f *OrderStoreFake) Create(ctx context.Context, order model.Order) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ID = int64(len(f.orders) + 1)
	f.orders = append(f.orders, order)
	return order.ID, nil
}

func (f *OrderStoreFake) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].ID == orderID {
			f.orders[i].Status = status
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *OrderStoreFake) FindByIdempotencyKey(ctx context.Context, sessionKey string, key string) (model.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.SessionKey == sessionKey && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (f *OrderStoreFake) ListAdmin(ctx context.Context, filter repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Order{}
	for i := len(f.orders) - 1; i >= 0; i-- {
		if filter.Status == "" || string(f.orders[i].Status) == filter.Status {
			out = append(out, f.orders[i])
		}
	}
	return out, int64(len(out)), nil
}

func (f *OrderStoreFake) order(id int64) model.Order {
	o, _ := f.FindByID(context.Background(), id)
	return o
}

type orderItemsFake struct{ *OrderStoreFake }

func (f orderItemsFake) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		it.OrderID = orderID
		f.items = append(f.items, it)
	}
	return nil
}

func (f orderItemsFake) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.OrderItem{}
	for _, it := range f.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

type paymentsFake struct{ *OrderStoreFake }

func (f paymentsFake) Create(ctx context.Context, p model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, p)
	return nil
}

func (f paymentsFake) FindByID(ctx context.Context, id string) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (f paymentsFake) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, reason string, verifiedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.payments {
		if f.payments[i].ID == id {
			f.payments[i].Status = status
			f.payments[i].Reason = reason
			f.payments[i].LastVerifiedAt = &verifiedAt
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f paymentsFake) ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Payment{}
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f paymentsFake) List(ctx context.Context, limit int) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Payment{}
	for i := len(f.payments) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.payments[i])
	}
	return out, nil
}

type PaymentGatewayMock struct{ mock.Mock }

func (m *PaymentGatewayMock) RequestToPay(ctx context.Context, req repo.PaymentRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *PaymentGatewayMock) PaymentStatus(ctx context.Context, referenceID string) (repo.GatewayResult, error) {
	args := m.Called(ctx, referenceID)
	res, _ := args.Get(0).(repo.GatewayResult)
	return res, args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

type CatalogSourceMock struct{ mock.Mock }

func (m *CatalogSourceMock) Snapshot(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	ps, _ := args.Get(0).([]model.Product)
	//呼び出し側が書き換えてもモックの値が変わらないようにコピー
	return append([]model.Product(nil), ps...), args.Error(1)
}

type ImageAssignerMock struct{ mock.Mock }

func (m *ImageAssignerMock) AssignImage(ctx context.Context, adminUserID int64, productID int64, imageURL string) (model.Product, error) {
	args := m.Called(ctx, adminUserID, productID, imageURL)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

// =====================
// Helper: error contains（HTTPErrorの実装詳細に依存しない）
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func catalogFixture() []model.Product {
	return []model.Product{
		{ID: 1, Name: "Arduino Uno R3", Price: "K650", Category: "Microcontrollers", Image: "https://cdn.example/products/arduino-uno.jpg", InStock: true},
		{ID: 2, Name: "Arduino Nano", Price: "K450", Category: "Microcontrollers", InStock: true},
		{ID: 3, Name: "ESP32 DevKit", Price: "K480", Category: "Microcontrollers", InStock: true},
		{ID: 4, Name: "HC-SR04 Ultrasonic Sensor", Price: "K95", Category: "Sensors", InStock: true},
	}
}
