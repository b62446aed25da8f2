package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderUsecase はカートから注文を作り、MTN MoMoで支払いを受ける。
type OrderUsecase struct {
	tx       repo.TransactionManager
	cart     *CartUsecase
	gateway  repo.PaymentGateway
	currency string
	log      *zap.Logger
}

// DI
func NewOrderUsecase(tx repo.TransactionManager, cart *CartUsecase, gateway repo.PaymentGateway, currency string, log *zap.Logger) *OrderUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderUsecase{tx: tx, cart: cart, gateway: gateway, currency: currency, log: log}
}

type PlaceOrderInput struct {
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Address        string
	City           string
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type OrderOutput struct {
	ID             int64             `json:"id"`
	Status         string            `json:"status"`
	Subtotal       int64             `json:"subtotal"`
	Shipping       int64             `json:"shipping"`
	Tax            int64             `json:"tax"`
	Savings        int64             `json:"savings"`
	TotalPrice     int64             `json:"total_price"`
	FormattedTotal string            `json:"formatted_total"`
	CustomerName   string            `json:"customer_name"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []OrderItemOutput `json:"items"`
	Payments       []PaymentOutput   `json:"payments,omitempty"`
}

type PaymentOutput struct {
	TransactionID string     `json:"transaction_id"`
	OrderID       int64      `json:"order_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastVerified  *time.Time `json:"last_verified,omitempty"`
	Message       string     `json:"message,omitempty"`
}

type AdminOrderList struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// 電話番号は空白を除いた数字10〜15桁
func normalizePhone(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}

func (in PlaceOrderInput) validate() error {
	switch {
	case strings.TrimSpace(in.CustomerName) == "":
		return NewHTTPError(http.StatusBadRequest, "name is required")
	case strings.TrimSpace(in.CustomerEmail) == "":
		return NewHTTPError(http.StatusBadRequest, "email is required")
	case strings.TrimSpace(in.CustomerPhone) == "":
		return NewHTTPError(http.StatusBadRequest, "phone is required")
	case !phonePattern.MatchString(normalizePhone(in.CustomerPhone)):
		return NewHTTPError(http.StatusBadRequest, "invalid phone")
	case !emailPattern.MatchString(strings.TrimSpace(in.CustomerEmail)):
		return NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}
	return nil
}

// PlaceOrder はカートの中身（割引込み）から注文を作る。
// カートは支払い完了まで残す。同じキーの再送は同じ注文を返す。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, sessionKey string, in PlaceOrderInput) (OrderOutput, error) {
	if err := validKey(sessionKey); err != nil {
		return OrderOutput{}, err
	}
	if err := in.validate(); err != nil {
		return OrderOutput{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	q, err := u.cart.Quote(ctx, sessionKey)
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, sessionKey, key)
		if err != nil {
			return repoError(err, "not found")
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return repoError(err, "not found")
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		if len(q.Items) == 0 {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}

		//スナップショット
		orderItems := make([]model.OrderItem, 0, len(q.Items))
		for _, l := range q.Items {
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           l.ProductID,
				ProductNameSnapshot: l.Name,
				UnitPriceSnapshot:   l.UnitPrice.Amount,
				Quantity:            l.Quantity,
			})
		}

		order := model.Order{
			SessionKey:     sessionKey,
			Status:         model.OrderStatusPending,
			Subtotal:       q.Totals.Subtotal,
			Shipping:       q.Totals.Shipping,
			Tax:            q.Totals.Tax,
			Savings:        q.Savings,
			TotalPrice:     q.Payable,
			CustomerName:   strings.TrimSpace(in.CustomerName),
			CustomerEmail:  strings.TrimSpace(in.CustomerEmail),
			CustomerPhone:  normalizePhone(in.CustomerPhone),
			Address:        strings.TrimSpace(in.Address),
			City:           strings.TrimSpace(in.City),
			IdempotencyKey: key,
			CreatedAt:      time.Now().UTC(),
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//同時に同じキーが入った
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, sessionKey, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return repoError(err3, "not found")
				}
				out = toOrderOutput(ex2, items2)
				return nil
			}
			return NewHTTPError(http.StatusConflict, "idempotency conflict")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return repoError(err, "not found")
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	u.log.Info("order placed", zap.Int64("order_id", out.ID), zap.Int64("total", out.TotalPrice))
	return out, nil
}

// 他のセッションの注文は「存在しない扱い」
func ownOrder(ctx context.Context, r repo.TxRepos, sessionKey string, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if err != nil {
		return model.Order{}, repoError(err, "order not found")
	}
	if o.SessionKey != sessionKey {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	return o, nil
}

func (u *OrderUsecase) GetOrder(ctx context.Context, sessionKey string, orderID int64) (OrderOutput, error) {
	if err := validKey(sessionKey); err != nil {
		return OrderOutput{}, err
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := ownOrder(ctx, r, sessionKey, orderID)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return repoError(err, "order not found")
		}
		payments, err := r.Payments().ListByOrderID(ctx, orderID)
		if err != nil {
			return repoError(err, "order not found")
		}
		out = toOrderOutput(o, items)
		for _, p := range payments {
			out.Payments = append(out.Payments, toPaymentOutput(p))
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// InitiatePayment は注文の支払い要求をMoMoへ送る。
// 未確定の支払いがあればそれを返す（利用者の端末に二重で通知しない）。
func (u *OrderUsecase) InitiatePayment(ctx context.Context, sessionKey string, orderID int64) (PaymentOutput, error) {
	if err := validKey(sessionKey); err != nil {
		return PaymentOutput{}, err
	}
	if orderID <= 0 {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var (
		order   model.Order
		pending *model.Payment
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := ownOrder(ctx, r, sessionKey, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case model.OrderStatusPaid:
			return NewHTTPError(http.StatusConflict, "order already paid")
		case model.OrderStatusCanceled:
			return NewHTTPError(http.StatusConflict, "order canceled")
		}
		payments, err := r.Payments().ListByOrderID(ctx, orderID)
		if err != nil {
			return repoError(err, "order not found")
		}
		for i := range payments {
			if !payments[i].Status.Final() {
				pending = &payments[i]
				break
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return PaymentOutput{}, err
	}
	if pending != nil {
		out := toPaymentOutput(*pending)
		out.Message = "Payment already in progress. Check your phone for MTN MOMO prompt."
		return out, nil
	}

	p := model.Payment{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Amount:       order.TotalPrice,
		Currency:     u.currency,
		PhoneNumber:  order.CustomerPhone,
		CustomerName: order.CustomerName,
		Status:       model.PaymentStatusInitiated,
		CreatedAt:    time.Now().UTC(),
	}

	if err := u.gateway.RequestToPay(ctx, repo.PaymentRequest{
		ReferenceID:  p.ID,
		ExternalID:   strconv.FormatInt(order.ID, 10),
		Amount:       p.Amount,
		Currency:     p.Currency,
		PhoneNumber:  p.PhoneNumber,
		PayerMessage: fmt.Sprintf("Payment for order %d by %s", order.ID, order.CustomerName),
		PayeeNote:    fmt.Sprintf("Gifted Solutions order %d", order.ID),
	}); err != nil {
		u.log.Warn("payment initiation failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return PaymentOutput{}, repoError(err, "order not found")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Payments().Create(ctx, p); err != nil {
			return repoError(err, "order not found")
		}
		//失敗後のやり直しは未払いへ戻す
		if order.Status == model.OrderStatusPaymentFailed {
			if err := r.Orders().UpdateStatus(ctx, order.ID, model.OrderStatusPending); err != nil {
				return repoError(err, "order not found")
			}
		}
		return nil
	})
	if err != nil {
		u.log.Error("payment record failed", zap.String("transaction_id", p.ID), zap.Error(err))
		return PaymentOutput{}, err
	}

	u.log.Info("payment initiated", zap.Int64("order_id", order.ID), zap.String("transaction_id", p.ID))
	out := toPaymentOutput(p)
	out.Message = "Payment initiated successfully. Check your phone for MTN MOMO prompt."
	return out, nil
}

func (u *OrderUsecase) findPayment(ctx context.Context, transactionID string) (model.Payment, error) {
	if _, err := uuid.Parse(transactionID); err != nil {
		return model.Payment{}, NewHTTPError(http.StatusNotFound, "transaction not found")
	}
	var p model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Payments().FindByID(ctx, transactionID)
		if err != nil {
			return repoError(err, "transaction not found")
		}
		p = found
		return nil
	})
	return p, err
}

// PaymentStatus は保存済みの状態（MoMoには問い合わせない）
func (u *OrderUsecase) PaymentStatus(ctx context.Context, transactionID string) (PaymentOutput, error) {
	p, err := u.findPayment(ctx, transactionID)
	if err != nil {
		return PaymentOutput{}, err
	}
	return toPaymentOutput(p), nil
}

var paymentMessages = map[model.PaymentStatus]string{
	model.PaymentStatusCompleted: "Payment completed successfully!",
	model.PaymentStatusFailed:    "Payment failed",
	model.PaymentStatusPending:   "Payment is still pending. Please complete the transaction on your phone.",
}

// VerifyPayment はMoMoに状態を問い合わせて支払いと注文を更新する。
// 完了したら注文元セッションのカートを空にする。確定済みなら問い合わせない。
func (u *OrderUsecase) VerifyPayment(ctx context.Context, transactionID string) (PaymentOutput, error) {
	p, err := u.findPayment(ctx, transactionID)
	if err != nil {
		return PaymentOutput{}, err
	}
	if p.Status.Final() {
		out := toPaymentOutput(p)
		out.Message = paymentMessages[p.Status]
		return out, nil
	}

	res, err := u.gateway.PaymentStatus(ctx, p.ID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		//MoMo側にまだ無い
		res = repo.GatewayResult{Status: repo.GatewayPending}
	case err != nil:
		u.log.Warn("payment verification failed", zap.String("transaction_id", p.ID), zap.Error(err))
		return PaymentOutput{}, repoError(err, "transaction not found")
	}

	status := model.PaymentStatusPending
	orderStatus := model.OrderStatus("")
	switch res.Status {
	case repo.GatewaySuccessful:
		status, orderStatus = model.PaymentStatusCompleted, model.OrderStatusPaid
	case repo.GatewayFailed:
		status, orderStatus = model.PaymentStatusFailed, model.OrderStatusPaymentFailed
	}

	now := time.Now().UTC()
	var sessionKey string
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Payments().UpdateStatus(ctx, p.ID, status, res.Reason, now); err != nil {
			return repoError(err, "transaction not found")
		}
		if orderStatus == "" {
			return nil
		}
		o, err := r.Orders().FindByID(ctx, p.OrderID)
		if err != nil {
			return repoError(err, "order not found")
		}
		if err := r.Orders().UpdateStatus(ctx, o.ID, orderStatus); err != nil {
			return repoError(err, "order not found")
		}
		sessionKey = o.SessionKey
		return nil
	})
	if err != nil {
		return PaymentOutput{}, err
	}

	if status == model.PaymentStatusCompleted && sessionKey != "" {
		if _, err := u.cart.ClearCart(ctx, sessionKey); err != nil {
			u.log.Warn("cart clear after payment failed", zap.Int64("order_id", p.OrderID), zap.Error(err))
		}
	}
	u.log.Info("payment verified", zap.String("transaction_id", p.ID), zap.String("status", string(status)))

	p.Status = status
	p.Reason = res.Reason
	p.LastVerifiedAt = &now
	out := toPaymentOutput(p)
	out.Message = paymentMessages[status]
	return out, nil
}

var knownOrderStatuses = map[model.OrderStatus]bool{
	model.OrderStatusPending:       true,
	model.OrderStatusPaid:          true,
	model.OrderStatusPaymentFailed: true,
	model.OrderStatusCanceled:      true,
}

// AdminListOrders は注文一覧（新しい順）
func (u *OrderUsecase) AdminListOrders(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderList, error) {
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" && !knownOrderStatuses[model.OrderStatus(f.Status)] {
		return AdminOrderList{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	out := AdminOrderList{Items: []OrderOutput{}, Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return repoError(err, "not found")
		}
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return repoError(err, "not found")
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		out.Total = total
		return nil
	})
	if err != nil {
		return AdminOrderList{}, err
	}
	return out, nil
}

// AdminListPayments は支払い一覧（新しい順、最大200件）
func (u *OrderUsecase) AdminListPayments(ctx context.Context, limit int) ([]PaymentOutput, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out := []PaymentOutput{}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.Payments().List(ctx, limit)
		if err != nil {
			return repoError(err, "not found")
		}
		for _, p := range items {
			out = append(out, toPaymentOutput(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.UnitPriceSnapshot * it.Quantity,
		})
	}

	return OrderOutput{
		ID:             o.ID,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		Shipping:       o.Shipping,
		Tax:            o.Tax,
		Savings:        o.Savings,
		TotalPrice:     o.TotalPrice,
		FormattedTotal: model.FormatCurrency(o.TotalPrice),
		CustomerName:   o.CustomerName,
		CreatedAt:      o.CreatedAt,
		Items:          outItems,
	}
}

func toPaymentOutput(p model.Payment) PaymentOutput {
	return PaymentOutput{
		TransactionID: p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		Reason:        p.Reason,
		CreatedAt:     p.CreatedAt,
		LastVerified:  p.LastVerifiedAt,
	}
}
