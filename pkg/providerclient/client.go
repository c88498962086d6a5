/**
 * @description
 * This package provides the client for the crypto exchange provider used to
 * convert donations into USDT and move them on-chain. It exposes a Gateway
 * interface so services depend on the operations, not on a concrete
 * exchange, and a factory that picks the implementation from configuration.
 *
 * The Mercado Bitcoin implementation signs every request with
 * HMAC-SHA256(timestamp + METHOD + path + body) and sends the signature in
 * the X-MB-ACCESS-* headers. Provider statuses are translated to the
 * service's own vocabulary through fixed mapping tables; unknown provider
 * statuses fall back to the non-terminal initial state so a new provider
 * status can never terminate an order or withdrawal by accident.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact monetary amounts on the wire.
 * - bytes, context, crypto/hmac, encoding/json, net/http: Standard libraries.
 */
package providerclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the provider-neutral status of an exchange order.
type OrderStatus string

// WithdrawalStatus is the provider-neutral status of an on-chain withdrawal.
type WithdrawalStatus string

const (
	OrderPlaced    OrderStatus = "PLACED"
	OrderFilled    OrderStatus = "FILLED"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderCancelled OrderStatus = "CANCELLED"

	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalSent       WithdrawalStatus = "SENT"
	WithdrawalConfirmed  WithdrawalStatus = "CONFIRMED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// OrderRequest describes a market order converting BRL into an asset.
type OrderRequest struct {
	Pair      string
	Side      string
	Type      string
	AmountBRL decimal.Decimal
}

// OrderResult is the provider's view of an order.
type OrderResult struct {
	ID             string
	Status         OrderStatus
	ExecutedAmount *decimal.Decimal
	ExecutedPrice  *decimal.Decimal
}

// WithdrawalRequest describes an on-chain asset withdrawal.
type WithdrawalRequest struct {
	Asset   string
	Network string
	Amount  decimal.Decimal
	Address string
}

// WithdrawalResult is the provider's view of a withdrawal.
type WithdrawalResult struct {
	ID     string
	Status WithdrawalStatus
	TxHash *string
	Fee    *decimal.Decimal
}

// Balance is the provider's balance for a single asset.
type Balance struct {
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
	Total     decimal.Decimal
}

// Gateway is the operation surface every supported provider implements.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*OrderResult, error)
	CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)
	GetWithdrawal(ctx context.Context, withdrawalID string) (*WithdrawalResult, error)
	GetBalance(ctx context.Context, asset string) (*Balance, error)
}

// APIError represents a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider api error (status %d)", e.StatusCode)
}

// New builds the Gateway named by provider. The name is matched loosely so
// both "mercadobitcoin" and "mercado_bitcoin" select the same client.
func New(provider, baseURL, apiKey, apiSecret string) (Gateway, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(provider)), "_", "") {
	case "mercadobitcoin":
		return NewMercadoBitcoin(baseURL, apiKey, apiSecret), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// MercadoBitcoin is the Gateway implementation for the Mercado Bitcoin v4
// trading API.
type MercadoBitcoin struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client

	now func() time.Time
}

// NewMercadoBitcoin creates a Mercado Bitcoin API client.
func NewMercadoBitcoin(baseURL, apiKey, apiSecret string) *MercadoBitcoin {
	return &MercadoBitcoin{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

var mbOrderStatuses = map[string]OrderStatus{
	"new":              OrderPlaced,
	"working":          OrderPlaced,
	"filled":           OrderFilled,
	"partially_filled": OrderPartial,
	"cancelled":        OrderCancelled,
}

var mbWithdrawalStatuses = map[string]WithdrawalStatus{
	"pending":    WithdrawalPending,
	"processing": WithdrawalProcessing,
	"sent":       WithdrawalSent,
	"confirmed":  WithdrawalConfirmed,
	"failed":     WithdrawalFailed,
}

func mapOrderStatus(status string) OrderStatus {
	if mapped, ok := mbOrderStatuses[status]; ok {
		return mapped
	}
	return OrderPlaced
}

func mapWithdrawalStatus(status string) WithdrawalStatus {
	if mapped, ok := mbWithdrawalStatuses[status]; ok {
		return mapped
	}
	return WithdrawalPending
}

type mbOrderResponse struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
}

type mbWithdrawalResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	TxHash *string `json:"txHash"`
	Fee    string  `json:"fee"`
}

type mbBalanceResponse struct {
	Balances []struct {
		Asset     string `json:"asset"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	} `json:"balances"`
}

type mbErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sign produces the request signature over timestamp + METHOD + path + body.
func (c *MercadoBitcoin) sign(timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *MercadoBitcoin) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-MB-ACCESS-KEY", c.APIKey)
	req.Header.Set("X-MB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("X-MB-ACCESS-SIGNATURE", c.sign(timestamp, method, path, body))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed mbErrorResponse
		if json.Unmarshal(respBody, &parsed) == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func parseOptionalDecimal(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", raw, err)
	}
	return &d, nil
}

func orderResultFromResponse(resp mbOrderResponse) (*OrderResult, error) {
	executed, err := parseOptionalDecimal(resp.ExecutedQty)
	if err != nil {
		return nil, err
	}
	price, err := parseOptionalDecimal(resp.AvgPrice)
	if err != nil {
		return nil, err
	}
	return &OrderResult{
		ID:             resp.OrderID,
		Status:         mapOrderStatus(resp.Status),
		ExecutedAmount: executed,
		ExecutedPrice:  price,
	}, nil
}

// PlaceOrder submits a market order for the given pair.
func (c *MercadoBitcoin) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	payload := map[string]string{
		"symbol":   strings.ReplaceAll(req.Pair, "-", ""),
		"side":     strings.ToLower(req.Side),
		"type":     strings.ToLower(req.Type),
		"quantity": req.AmountBRL.String(),
	}
	var resp mbOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v4/orders", payload, &resp); err != nil {
		return nil, err
	}
	return orderResultFromResponse(resp)
}

// GetOrder fetches the current provider state of an order.
func (c *MercadoBitcoin) GetOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	var resp mbOrderResponse
	if err := c.do(ctx, http.MethodGet, "/v4/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	return orderResultFromResponse(resp)
}

// CreateWithdrawal requests an on-chain withdrawal. The provider does not
// report a status on creation, so the result always starts PENDING.
func (c *MercadoBitcoin) CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	payload := map[string]string{
		"coin":    req.Asset,
		"network": req.Network,
		"address": req.Address,
		"amount":  req.Amount.String(),
	}
	var resp mbWithdrawalResponse
	if err := c.do(ctx, http.MethodPost, "/v4/withdraw", payload, &resp); err != nil {
		return nil, err
	}
	fee, err := parseOptionalDecimal(resp.Fee)
	if err != nil {
		return nil, err
	}
	return &WithdrawalResult{ID: resp.ID, Status: WithdrawalPending, Fee: fee}, nil
}

// GetWithdrawal fetches the current provider state of a withdrawal.
func (c *MercadoBitcoin) GetWithdrawal(ctx context.Context, withdrawalID string) (*WithdrawalResult, error) {
	var resp mbWithdrawalResponse
	if err := c.do(ctx, http.MethodGet, "/v4/withdraw/"+withdrawalID, nil, &resp); err != nil {
		return nil, err
	}
	fee, err := parseOptionalDecimal(resp.Fee)
	if err != nil {
		return nil, err
	}
	return &WithdrawalResult{
		ID:     resp.ID,
		Status: mapWithdrawalStatus(resp.Status),
		TxHash: resp.TxHash,
		Fee:    fee,
	}, nil
}

// GetBalance returns the provider balance for a single asset.
func (c *MercadoBitcoin) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	var resp mbBalanceResponse
	if err := c.do(ctx, http.MethodGet, "/v4/accounts/balance", nil, &resp); err != nil {
		return nil, err
	}
	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		available, err := decimal.NewFromString(b.Available)
		if err != nil {
			return nil, fmt.Errorf("invalid available balance %q: %w", b.Available, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("invalid locked balance %q: %w", b.Locked, err)
		}
		return &Balance{
			Asset:     b.Asset,
			Available: available,
			Locked:    locked,
			Total:     available.Add(locked),
		}, nil
	}
	return nil, fmt.Errorf("asset %s not found in provider balances", asset)
}
