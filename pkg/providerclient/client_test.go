package providerclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*MercadoBitcoin, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewMercadoBitcoin(srv.URL, "test-key", "test-secret")
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return client, srv
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"orderId":"ord-1","status":"new"}`))
	})

	result, err := client.PlaceOrder(context.Background(), OrderRequest{
		Pair:      "USDT-BRL",
		Side:      "BUY",
		Type:      "MARKET",
		AmountBRL: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.ID != "ord-1" || result.Status != OrderPlaced {
		t.Errorf("result = %+v", result)
	}

	if gotHeaders.Get("X-MB-ACCESS-KEY") != "test-key" {
		t.Errorf("access key header = %q", gotHeaders.Get("X-MB-ACCESS-KEY"))
	}
	timestamp := gotHeaders.Get("X-MB-ACCESS-TIMESTAMP")
	if timestamp != "1700000000000" {
		t.Errorf("timestamp header = %q", timestamp)
	}

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(timestamp + "POST" + "/v4/orders"))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if got := gotHeaders.Get("X-MB-ACCESS-SIGNATURE"); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestGetOrderMapsProviderStatuses(t *testing.T) {
	cases := []struct {
		provider string
		want     OrderStatus
	}{
		{"new", OrderPlaced},
		{"filled", OrderFilled},
		{"partially_filled", OrderPartial},
		{"cancelled", OrderCancelled},
		{"something_unexpected", OrderPlaced},
	}
	for _, tc := range cases {
		body := `{"orderId":"ord-1","status":"` + tc.provider + `","executedQty":"95.5","avgPrice":"5.12"}`
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		result, err := client.GetOrder(context.Background(), "ord-1")
		if err != nil {
			t.Fatalf("GetOrder(%s): %v", tc.provider, err)
		}
		if result.Status != tc.want {
			t.Errorf("status %q mapped to %q, want %q", tc.provider, result.Status, tc.want)
		}
		if result.ExecutedAmount == nil || !result.ExecutedAmount.Equal(decimal.RequireFromString("95.5")) {
			t.Errorf("executed amount = %v", result.ExecutedAmount)
		}
	}
}

func TestGetWithdrawalMapsProviderStatuses(t *testing.T) {
	cases := []struct {
		provider string
		want     WithdrawalStatus
	}{
		{"pending", WithdrawalPending},
		{"processing", WithdrawalProcessing},
		{"sent", WithdrawalSent},
		{"confirmed", WithdrawalConfirmed},
		{"failed", WithdrawalFailed},
		{"???", WithdrawalPending},
	}
	for _, tc := range cases {
		body := `{"id":"wd-1","status":"` + tc.provider + `","txHash":"0xabc","fee":"1.25"}`
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		result, err := client.GetWithdrawal(context.Background(), "wd-1")
		if err != nil {
			t.Fatalf("GetWithdrawal(%s): %v", tc.provider, err)
		}
		if result.Status != tc.want {
			t.Errorf("status %q mapped to %q, want %q", tc.provider, result.Status, tc.want)
		}
		if result.TxHash == nil || *result.TxHash != "0xabc" {
			t.Errorf("txHash = %v", result.TxHash)
		}
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":"RATE_LIMIT","message":"slow down"}`))
	})

	_, err := client.GetOrder(context.Background(), "ord-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != "RATE_LIMIT" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestGetBalanceFindsAsset(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances":[{"asset":"BRL","available":"10.00","locked":"0"},{"asset":"USDT","available":"95.5","locked":"4.5"}]}`))
	})

	balance, err := client.GetBalance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !balance.Total.Equal(decimal.RequireFromString("100")) {
		t.Errorf("total = %s, want 100", balance.Total)
	}

	if _, err := client.GetBalance(context.Background(), "BTC"); err == nil {
		t.Error("expected error for missing asset")
	}
}

func TestFactorySelectsProvider(t *testing.T) {
	if _, err := New("mercadobitcoin", "https://api", "k", "s"); err != nil {
		t.Errorf("mercadobitcoin: %v", err)
	}
	if _, err := New("mercado_bitcoin", "https://api", "k", "s"); err != nil {
		t.Errorf("mercado_bitcoin alias: %v", err)
	}
	if _, err := New("parfin", "https://api", "k", "s"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}
