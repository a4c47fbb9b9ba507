package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chronosfinance/ledger"
	"github.com/chronosfinance/ledger/api/middleware"
	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/database/memory"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestRequest struct {
	Payload  interface{}
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(t *testing.T, s TestRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if s.Payload != nil {
		raw, err := json.Marshal(s.Payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(s.Method, s.Route, body)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(s.Response))
	}
	return resp
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Send(_ context.Context, hook webhooks.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, hook.Event)
	return nil
}

func setupRouter(t *testing.T, mutate ...func(*config.Configuration)) (*gin.Engine, *ledger.Ledger, *recordingNotifier) {
	t.Helper()
	conf := &config.Configuration{Ledger: config.LedgerConfig{Precision: 2}}
	for _, fn := range mutate {
		fn(conf)
	}
	l, err := ledger.NewLedger(memory.NewStore())
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	return NewAPI(l, notifier, conf).Router(), l, notifier
}

func seedAccount(t *testing.T, l *ledger.Ledger, id string, opening int64) {
	t.Helper()
	_, err := l.CreateAccount(context.Background(), ledger.CreateAccountRequest{AccountID: id, Name: "Banco " + id, OpeningBalance: opening})
	require.NoError(t, err)
}

func TestCreateAccount(t *testing.T) {
	router, _, notifier := setupRouter(t)

	tests := []struct {
		name         string
		payload      map[string]interface{}
		expectedCode int
	}{
		{"valid", map[string]interface{}{"account_id": "azteca", "name": "Azteca", "opening_balance": "1500.00"}, http.StatusCreated},
		{"duplicate", map[string]interface{}{"account_id": "azteca", "name": "Azteca"}, http.StatusConflict},
		{"missing name", map[string]interface{}{"currency": "MXN"}, http.StatusBadRequest},
		{"too many decimals", map[string]interface{}{"name": "X", "opening_balance": "1.234"}, http.StatusBadRequest},
		{"negative opening", map[string]interface{}{"name": "X", "opening_balance": "-1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response map[string]interface{}
			resp := SetUpTestRequest(t, TestRequest{Payload: tt.payload, Response: &response, Method: http.MethodPost, Route: "/accounts", Router: router})
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}

	var account map[string]interface{}
	resp := SetUpTestRequest(t, TestRequest{Response: &account, Method: http.MethodGet, Route: "/accounts/azteca", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(150000), account["balance"])
	assert.Equal(t, "1500.00", account["balance_decimal"])
	assert.Equal(t, []string{webhooks.EventAccountCreated}, notifier.events)
}

func TestTransferEndpoints(t *testing.T) {
	router, l, notifier := setupRouter(t)
	seedAccount(t, l, "boveda_monte", 150000)
	seedAccount(t, l, "fletes", 0)

	var result map[string]interface{}
	resp := SetUpTestRequest(t, TestRequest{
		Payload:  map[string]string{"origin_id": "boveda_monte", "destination_id": "fletes", "amount": "100.00", "correlation_key": "t-1"},
		Response: &result,
		Method:   http.MethodPost,
		Route:    "/transfers",
		Router:   router,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "t-1", result["correlation_key"])
	assert.NotEmpty(t, result["out_movement_id"])
	assert.NotEmpty(t, result["in_movement_id"])

	t.Run("replay answers 200 without a second webhook", func(t *testing.T) {
		var replay map[string]interface{}
		resp := SetUpTestRequest(t, TestRequest{
			Payload:  map[string]string{"origin_id": "boveda_monte", "destination_id": "fletes", "amount": "100.00", "correlation_key": "t-1"},
			Response: &replay,
			Method:   http.MethodPost,
			Route:    "/transfers",
			Router:   router,
		})
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, true, replay["replayed"])
	})

	t.Run("lookup by key", func(t *testing.T) {
		var found map[string]interface{}
		resp := SetUpTestRequest(t, TestRequest{Response: &found, Method: http.MethodGet, Route: "/transfers/t-1", Router: router})
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Len(t, found["movements"], 2)

		resp = SetUpTestRequest(t, TestRequest{Response: &found, Method: http.MethodGet, Route: "/transfers/none", Router: router})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("reverse", func(t *testing.T) {
		var reversed map[string]interface{}
		resp := SetUpTestRequest(t, TestRequest{Payload: map[string]string{"memo": "error de captura"}, Response: &reversed, Method: http.MethodPost, Route: "/transfers/t-1/reverse", Router: router})
		assert.Equal(t, http.StatusCreated, resp.Code)
		assert.Equal(t, "rev_t-1", reversed["correlation_key"])
	})

	assert.Equal(t, []string{webhooks.EventTransferCommitted, webhooks.EventTransferReversed}, notifier.events)

	errorCases := []struct {
		name    string
		payload map[string]string
		code    int
		errCode string
	}{
		{"insufficient funds", map[string]string{"origin_id": "fletes", "destination_id": "boveda_monte", "amount": "5000"}, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"unknown account", map[string]string{"origin_id": "boveda_monte", "destination_id": "ghost", "amount": "1"}, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"zero amount", map[string]string{"origin_id": "boveda_monte", "destination_id": "fletes", "amount": "0"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"negative amount", map[string]string{"origin_id": "boveda_monte", "destination_id": "fletes", "amount": "-5"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"same account", map[string]string{"origin_id": "fletes", "destination_id": "fletes", "amount": "1"}, http.StatusBadRequest, "SAME_ACCOUNT"},
		{"unparseable amount", map[string]string{"origin_id": "boveda_monte", "destination_id": "fletes", "amount": "diez"}, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]interface{}
			resp := SetUpTestRequest(t, TestRequest{Payload: tt.payload, Response: &body, Method: http.MethodPost, Route: "/transfers", Router: router})
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.errCode, body["code"])
		})
	}
}

func TestMovementEndpoints(t *testing.T) {
	router, l, notifier := setupRouter(t)
	seedAccount(t, l, "profit", 0)

	var dep map[string]interface{}
	resp := SetUpTestRequest(t, TestRequest{Payload: map[string]string{"amount": "20.50"}, Response: &dep, Method: http.MethodPost, Route: "/accounts/profit/deposits", Router: router})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, float64(2050), dep["balance"])

	var wd map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Payload: map[string]string{"amount": "50"}, Response: &wd, Method: http.MethodPost, Route: "/accounts/profit/withdrawals", Router: router})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "profit", wd["account_id"])

	var page map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Response: &page, Method: http.MethodGet, Route: "/accounts/profit/movements?kind=deposit&limit=10", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, page["movements"], 1)
	assert.Equal(t, "", page["next_cursor"])

	for _, route := range []string{"/accounts/profit/deposits", "/accounts/profit/withdrawals"} {
		var rejected map[string]interface{}
		resp = SetUpTestRequest(t, TestRequest{Payload: map[string]string{"amount": "0"}, Response: &rejected, Method: http.MethodPost, Route: route, Router: router})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "INVALID_AMOUNT", rejected["code"])
		assert.Equal(t, "profit", rejected["account_id"])
	}

	resp = SetUpTestRequest(t, TestRequest{Response: &page, Method: http.MethodGet, Route: "/accounts/profit/movements?limit=x", Router: router})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = SetUpTestRequest(t, TestRequest{Response: &page, Method: http.MethodGet, Route: "/accounts/profit/movements?cursor=bad!", Router: router})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var reversed map[string]interface{}
	key, _ := dep["correlation_key"].(string)
	require.NotEmpty(t, key)
	resp = SetUpTestRequest(t, TestRequest{Payload: map[string]string{"memo": "venta cancelada"}, Response: &reversed, Method: http.MethodPost, Route: "/movements/" + key + "/reverse", Router: router})
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "rev_"+key, reversed["correlation_key"])
	assert.Equal(t, float64(0), reversed["balance"])

	resp = SetUpTestRequest(t, TestRequest{Response: &reversed, Method: http.MethodPost, Route: "/movements/" + key + "/reverse", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, reversed["replayed"])

	var missing map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Response: &missing, Method: http.MethodPost, Route: "/movements/nada/reverse", Router: router})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", missing["code"])

	var disabled map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Response: &disabled, Method: http.MethodPost, Route: "/accounts/profit/disable", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, disabled["disabled"])

	assert.Equal(t, []string{webhooks.EventDepositCommitted, webhooks.EventMovementReversed, webhooks.EventAccountDisabled}, notifier.events)
}

func TestTotalsAndReconciliation(t *testing.T) {
	router, l, _ := setupRouter(t)
	seedAccount(t, l, "a", 1000)
	seedAccount(t, l, "b", 250)

	var total map[string]interface{}
	resp := SetUpTestRequest(t, TestRequest{Response: &total, Method: http.MethodGet, Route: "/balances/total", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1250), total["total"])
	assert.Equal(t, "12.50", total["total_decimal"])

	var recon map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Response: &recon, Method: http.MethodGet, Route: "/reconciliation", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, recon["balanced"])

	var accounts []map[string]interface{}
	resp = SetUpTestRequest(t, TestRequest{Response: &accounts, Method: http.MethodGet, Route: "/accounts", Router: router})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, accounts, 2)
}

func TestSecureMode(t *testing.T) {
	router, _, _ := setupRouter(t, func(c *config.Configuration) {
		c.Server.Secure = true
		c.Server.SecretKey = "llave"
	})

	var body interface{}
	resp := SetUpTestRequest(t, TestRequest{Response: &body, Method: http.MethodGet, Route: "/accounts", Router: router})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = SetUpTestRequest(t, TestRequest{Response: &body, Method: http.MethodGet, Route: "/accounts", Router: router, Header: map[string]string{middleware.KeyHeader: "llave"}})
	assert.Equal(t, http.StatusOK, resp.Code)
}
