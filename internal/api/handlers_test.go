package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stablepay/internal/domain"
	"stablepay/internal/ledger"
	"stablepay/internal/notify"
	"stablepay/internal/repo"
	"stablepay/internal/service"
)

type apiEnv struct {
	router  *gin.Engine
	gateway *ledger.MemoryGateway
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orders := repo.NewMemoryOrderRepo()
	products := repo.NewMemoryProductRepo()
	gateway := ledger.NewMemoryGateway()
	log := zap.NewNop()
	hub := notify.NewHub(log)
	svc := service.NewOrderService(orders, products, gateway, hub, log, false)

	require.NoError(t, products.Create(context.Background(),
		&domain.Product{Name: "Coffee", Price: decimal.RequireFromString("4.50")}))
	require.NoError(t, products.Create(context.Background(),
		&domain.Product{Name: "Sandwich", Price: decimal.RequireFromString("8.99")}))

	server := NewServer(svc, products, gateway, hub, nil, log)
	return &apiEnv{router: server.Router(), gateway: gateway}
}

func (env *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{
			{"productId": 1, "quantity": 2},
			{"productId": 2, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "17.99", body["totalAmount"])
	orderID := body["orderId"].(string)
	assert.Equal(t, "order:"+orderID, body["qrPayload"])
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"productId": 424242, "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentFlowEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{
			{"productId": 1, "quantity": 2},
			{"productId": 2, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	orderID := decodeBody(t, w)["orderId"].(string)

	// Approval with the wrong amount is rejected with both figures.
	badTx := env.gateway.Approve("0xcustomer", decimal.RequireFromString("5.00"))
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/verify-approval", orderID), gin.H{"txHash": badTx})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "5")
	assert.Contains(t, w.Body.String(), "17.99")

	goodTx := env.gateway.Approve("0xcustomer", decimal.RequireFromString("17.99"))
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/verify-approval", orderID), gin.H{"txHash": goodTx})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "0xcustomer", body["customerWallet"])

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/collect-payment", orderID), gin.H{"clientId": "till-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decodeBody(t, w)
	settlementTx := body["settlementTx"].(string)
	assert.NotEmpty(t, settlementTx)

	// Idempotent repeat returns the same settlement reference.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/collect-payment", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, settlementTx, body["settlementTx"])

	w = env.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "paid", body["status"])
	assert.Len(t, body["items"], 2)
}

func TestVerifyApprovalRequiresTxHash(t *testing.T) {
	env := newAPIEnv(t)
	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/verify-approval", uuid.New()), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderEndpointsRejectBadIDs(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/api/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/products", gin.H{
		"name":        "Muffin",
		"price":       "3.25",
		"description": "Blueberry",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decodeBody(t, w)["id"].(float64))

	w = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/products/%d", id), gin.H{
		"name":  "Muffin",
		"price": "3.75",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3.75", decodeBody(t, w)["price"])

	w = env.do(t, http.MethodPost, "/api/products", gin.H{"name": "Bad", "price": "not-a-number"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"productId": 1, "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	orderID := decodeBody(t, w)["orderId"].(string)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/cancel", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	assert.Equal(t, "cancelled", decodeBody(t, w)["status"])

	// Cancelled is terminal.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/cancel", orderID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMerchantBalancesEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	w := env.do(t, http.MethodGet, "/api/merchant/balances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "0xmerchant", body["address"])
}
