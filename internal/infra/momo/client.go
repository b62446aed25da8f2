// Package momo はMTN MoMo Collections APIのクライアント。
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

type Config struct {
	BaseURL           string // https://sandbox.momodeveloper.mtn.com
	SubscriptionKey   string // Ocp-Apim-Subscription-Key（collection）
	APIUser           string
	APIKey            string
	TargetEnvironment string // sandbox / mtnzambia など
	CallbackURL       string
}

func (c Config) Configured() bool {
	return c.BaseURL != "" && c.SubscriptionKey != "" && c.APIUser != "" && c.APIKey != ""
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// 期限の少し前までトークンを使い回す
const tokenSkew = 30 * time.Second

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("token: status %d, body: %s", status, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token: empty access_token")
	}
	c.token = tr.AccessToken
	c.expires = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) authorized(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	return req, nil
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPay struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// RequestToPay は支払い要求を送る。受け付けられると202。
func (c *Client) RequestToPay(ctx context.Context, in repo.PaymentRequest) error {
	payload, err := json.Marshal(requestToPay{
		Amount:       strconv.FormatInt(in.Amount, 10),
		Currency:     in.Currency,
		ExternalID:   in.ExternalID,
		Payer:        party{PartyIDType: "MSISDN", PartyID: in.PhoneNumber},
		PayerMessage: in.PayerMessage,
		PayeeNote:    in.PayeeNote,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.authorized(ctx, http.MethodPost, "/collection/v1_0/requesttopay", payload)
	if err != nil {
		return repo.NewTransportError("momo request to pay", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reference-Id", in.ReferenceID)
	if c.cfg.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", c.cfg.CallbackURL)
	}

	body, status, err := c.do(req)
	if err != nil {
		return repo.NewTransportError("momo request to pay", err)
	}
	if status != http.StatusAccepted {
		c.log.Warn("momo request rejected", zap.Int("status", status), zap.String("reference", in.ReferenceID))
		return repo.NewTransportError("momo request to pay", fmt.Errorf("status %d, body: %s", status, string(body)))
	}
	return nil
}

type requestToPayStatus struct {
	Status                 string `json:"status"`
	Reason                 string `json:"reason"`
	FinancialTransactionID string `json:"financialTransactionId"`
}

// PaymentStatus は支払い要求の状態。知らない状態はPENDING扱い。
func (c *Client) PaymentStatus(ctx context.Context, referenceID string) (repo.GatewayResult, error) {
	req, err := c.authorized(ctx, http.MethodGet, "/collection/v1_0/requesttopay/"+referenceID, nil)
	if err != nil {
		return repo.GatewayResult{}, repo.NewTransportError("momo payment status", err)
	}

	body, status, err := c.do(req)
	if err != nil {
		return repo.GatewayResult{}, repo.NewTransportError("momo payment status", err)
	}
	if status == http.StatusNotFound {
		return repo.GatewayResult{}, repo.ErrNotFound
	}
	if status != http.StatusOK {
		return repo.GatewayResult{}, repo.NewTransportError("momo payment status", fmt.Errorf("status %d, body: %s", status, string(body)))
	}

	var st requestToPayStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return repo.GatewayResult{}, repo.NewTransportError("momo payment status", err)
	}

	out := repo.GatewayResult{Status: repo.GatewayPending, Reason: st.Reason}
	switch repo.GatewayStatus(strings.ToUpper(st.Status)) {
	case repo.GatewaySuccessful:
		out.Status = repo.GatewaySuccessful
	case repo.GatewayFailed:
		out.Status = repo.GatewayFailed
	}
	return out, nil
}

var errNotConfigured = errors.New("momo not configured (set MOMO_SUBSCRIPTION_KEY, MOMO_API_USER and MOMO_API_KEY)")

// Unconfigured は資格情報が無いときのゲートウェイ。常にTransportError。
type Unconfigured struct{}

func (Unconfigured) RequestToPay(ctx context.Context, in repo.PaymentRequest) error {
	return repo.NewTransportError("momo request to pay", errNotConfigured)
}

func (Unconfigured) PaymentStatus(ctx context.Context, referenceID string) (repo.GatewayResult, error) {
	return repo.GatewayResult{}, repo.NewTransportError("momo payment status", errNotConfigured)
}
