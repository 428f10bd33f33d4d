package server

import (
	"encoding/json"
	"fmt"
	"io"
	"leadwallet/internal/client"
	"leadwallet/internal/config"
	"leadwallet/internal/events"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/session"
	"leadwallet/pkg/logger"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	orderBodies  []string
	verifyBodies []string
	balance      int64
	coins        int64
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer tok-1" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
		return
	}

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/users/wallet/transactions":
		fmt.Fprintf(w, `{"balance":%d,"leadsCoins":%d,"transactions":[]}`, f.balance, f.coins)
	case "/users/wallet/recharge/order":
		f.orderBodies = append(f.orderBodies, string(body))
		_, _ = w.Write([]byte(`{"order":{"id":"order_1","amount":25000,"currency":"INR"}}`))
	case "/users/wallet/recharge/verify":
		f.verifyBodies = append(f.verifyBodies, string(body))
		f.balance += 250
		f.coins += 500
		fmt.Fprintf(w, `{"message":"ok","wallet":{"balance":%d,"leadsCoins":%d,"transactions":[]}}`, f.balance, f.coins)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) verifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyBodies)
}

func setupServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{balance: 100, coins: 200}
	backend := httptest.NewServer(fb)
	t.Cleanup(backend.Close)

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("window.Razorpay = function(){};"))
	}))
	t.Cleanup(cdn.Close)

	cfg := &config.Config{
		BaseURL: "http://bff.local",
		Backend: config.Backend{BaseApiURL: backend.URL, Timeout: 5 * time.Second},
		Razorpay: config.Razorpay{
			KeyID:             "rzp_test_key",
			CheckoutScriptURL: cdn.URL,
			ScriptTimeout:     5 * time.Second,
			DisplayName:       "Leads Generator",
			ThemeColor:        "#3B82F6",
		},
		Wallet: config.Wallet{
			RefreshInterval:              5 * time.Second,
			RedirectDelay:                time.Hour,
			CloseDelay:                   time.Hour,
			SessionTTL:                   time.Minute,
			RechargeRequiresSubscription: true,
		},
		Plans: config.Plans{MonthlyINR: decimal.NewFromInt(399), MonthlyUSD: decimal.NewFromInt(5)},
	}

	db, err := client.InitDBClient("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	attempts := repository.NewAttemptRepository(db)

	log := logger.NewNop()
	bridge := client.NewRazorpayBridge(&cfg.Razorpay, log)
	prices := pricing.NewTable(cfg.Plans)
	sessions := session.NewManager(cfg, client.NewBackendFactory(&cfg.Backend), bridge, prices, attempts,
		events.NewPublisher(events.NewNopBus(), log), log)
	t.Cleanup(sessions.Shutdown)

	return NewServer(cfg, sessions, bridge, prices, attempts, log), fb
}

func do(t *testing.T, s *Server, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

// checkoutPath turns the checkout URL of a state into a request path, with
// suffix appended to the path.
func checkoutPath(t *testing.T, state map[string]interface{}, suffix string) string {
	t.Helper()
	u, err := url.Parse(state["checkoutUrl"].(string))
	require.NoError(t, err)
	return u.Path + suffix + "?" + u.RawQuery
}

func identityBody() string {
	start := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(29 * 24 * time.Hour).UTC().Format(time.RFC3339)
	return fmt.Sprintf(`{"user":{"id":"user-1","name":"Asha","email":"asha@example.com",
		"wallet":{"balance":100,"leadsCoins":200,"transactions":[]},
		"subscription":{"isActive":true,"plan":"MONTHLY","startDate":%q,"endDate":%q}}}`, start, end)
}

func TestRechargeFlow(t *testing.T) {
	s, fb := setupServer(t)

	rec, body := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "user-1", body["userId"])

	rec, body = do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"amount":250,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := body["checkout"].(map[string]interface{})
	assert.Equal(t, "AWAITING_GATEWAY", state["step"])
	assert.Equal(t, true, state["loading"])
	assert.Equal(t, "http://bff.local/api/checkout/order_1?attempt="+state["attemptId"].(string), state["checkoutUrl"])
	opts := state["checkout"].(map[string]interface{})
	assert.Equal(t, "order_1", opts["order_id"])
	assert.Equal(t, float64(25000), opts["amount"])
	assert.Equal(t, []string{`{"amount":250,"currency":"INR"}`}, fb.orderBodies)

	rec, _ = do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"amount":250,"currency":"INR"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/checkout/order_1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, checkoutPath(t, state, ""), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_1")
	assert.Contains(t, rec.Body.String(), "new Razorpay(options)")

	proof := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig_1"}`
	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUCCESS", body["step"])
	assert.Equal(t, "Payment successful! Added ₹250 to your wallet (500 LeadsCoins)", body["message"])

	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUCCESS", body["step"])
	assert.Equal(t, 1, fb.verifyCount())
	assert.Contains(t, fb.verifyBodies[0], `"currency":"INR"`)

	rec, body = do(t, s, http.MethodGet, "/api/wallet", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := body["wallet"].(map[string]interface{})
	assert.Equal(t, "350", wallet["balance"])
	assert.Equal(t, float64(700), wallet["leadsCoins"])

	assert.Eventually(t, func() bool {
		rec, _ := do(t, s, http.MethodGet, "/api/checkout/attempts", "tok-1", "")
		var attempts []map[string]interface{}
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &attempts) != nil {
			return false
		}
		return len(attempts) == 1 && attempts[0]["status"] == "SUCCEEDED"
	}, time.Second, 10*time.Millisecond)
}

func TestDismissCallback(t *testing.T) {
	s, fb := setupServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	started := body["checkout"].(map[string]interface{})

	rec, body = do(t, s, http.MethodPost, checkoutPath(t, started, "/dismiss"), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", body["step"])
	assert.Equal(t, "CANCELLED", body["outcome"])

	rec, body = do(t, s, http.MethodGet, "/api/wallet/recharge", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := body["checkout"].(map[string]interface{})
	assert.Equal(t, false, state["loading"])
	assert.Equal(t, 0, fb.verifyCount())

	rec, _ = do(t, s, http.MethodGet, checkoutPath(t, started, ""), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptAutoStart(t *testing.T) {
	s, _ := setupServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/wallet/recharge/prompt", "tok-1", `{"message":"Insufficient coins to unlock this lead","currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := body["checkout"].(map[string]interface{})
	assert.Equal(t, "AWAITING_GATEWAY", state["step"])
	assert.Equal(t, true, state["auto"])
	assert.Equal(t, "250", state["amount"])

	rec, _ = do(t, s, http.MethodPost, checkoutPath(t, state, "/dismiss"), "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, s, http.MethodPost, "/api/wallet/recharge/prompt", "tok-1", `{"message":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	prompt := body["prompt"].(map[string]interface{})
	assert.Equal(t, false, prompt["autoStart"])
	state = body["checkout"].(map[string]interface{})
	assert.Equal(t, "IDLE", state["step"])
}

func TestAuthAndErrors(t *testing.T) {
	s, _ := setupServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/wallet", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_EXPIRED", body["category"])
	assert.Equal(t, true, body["redirectToLogin"])

	rec, body = do(t, s, http.MethodGet, "/api/wallet", "stale-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_EXPIRED", body["category"])

	rec, body = do(t, s, http.MethodGet, "/api/pricing?currency=EUR", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", body["category"])

	rec, body = do(t, s, http.MethodGet, "/api/pricing?currency=usd", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "USD", body["currency"])
	assert.Len(t, body["tiers"], 4)

	rec, _ = do(t, s, http.MethodPost, "/api/checkout/order_unknown/success", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/checkout.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Razorpay")
}

func TestSessionReopenKeepsCheckout(t *testing.T) {
	s, fb := setupServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"amount":250,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := body["checkout"].(map[string]interface{})

	// dashboard reload posts the session again mid-checkout
	rec, _ = do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/wallet/recharge", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AWAITING_GATEWAY", body["checkout"].(map[string]interface{})["step"])

	proof := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig_1"}`
	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUCCESS", body["step"])
	assert.Equal(t, 1, fb.verifyCount())
}

func TestPaymentAfterLogoutIsVerified(t *testing.T) {
	s, fb := setupServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"amount":250,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := body["checkout"].(map[string]interface{})

	rec, _ = do(t, s, http.MethodDelete, "/api/session", "tok-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	proof := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig_1"}`
	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUCCESS", body["step"])
	assert.Equal(t, 1, fb.verifyCount())

	rec, _ = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fb.verifyCount())
}

func TestCallbacksRequireAttempt(t *testing.T) {
	s, fb := setupServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/session", "tok-1", identityBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/wallet/recharge", "tok-1", `{"amount":250,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := body["checkout"].(map[string]interface{})

	rec, _ = do(t, s, http.MethodPost, "/api/checkout/order_1/dismiss", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodPost, "/api/checkout/order_1/failure?attempt=guess", "", `{"error":{"code":"X"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/api/checkout/order_1?attempt=guess", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/wallet/recharge", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AWAITING_GATEWAY", body["checkout"].(map[string]interface{})["step"])

	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/failure"), "", `{"error":{"code":"BAD_REQUEST_ERROR","description":"Card declined"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "FAILED", body["step"])
	assert.Equal(t, "Card declined", body["message"])

	proof := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_2","razorpay_signature":"sig_2"}`
	rec, body = do(t, s, http.MethodPost, checkoutPath(t, state, "/success"), "", proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUCCESS", body["step"])
	assert.Equal(t, 1, fb.verifyCount())
}
