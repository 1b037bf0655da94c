package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/settlement"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptFor(req settlement.PlaceOrderRequest) *settlement.OrderReceipt {
	total := dec("30").Mul(decimal.NewFromInt(int64(req.Quantity)))
	return &settlement.OrderReceipt{
		Order: &models.Order{
			ID:         11,
			UserID:     req.UserID,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			UnitPrice:  dec("30"),
			TotalPrice: total,
		},
		Credits: settlement.CreditSnapshot{Before: dec("100"), After: dec("100").Sub(total)},
	}
}

func TestPlaceOrder(t *testing.T) {
	ts := newTestServer(t, false)
	ts.settler.placeOrder = func(req settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
		return receiptFor(req), nil
	}

	rec := ts.do(http.MethodPost, "/api/orders", `{"productId": 3, "quantity": 2}`, 42)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["ok"])

	credits := body["credits"].(map[string]any)
	assert.Equal(t, "100", credits["before"])
	assert.Equal(t, "40", credits["after"])

	order := body["order"].(map[string]any)
	assert.Equal(t, "60", order["totalPrice"])

	require.Len(t, ts.settler.orders, 1)
	assert.Equal(t, settlement.PlaceOrderRequest{UserID: 42, ProductID: 3, Quantity: 2}, ts.settler.orders[0])
}

func TestPlaceOrderTruncatesFractionalQuantity(t *testing.T) {
	ts := newTestServer(t, false)
	ts.settler.placeOrder = func(req settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
		return receiptFor(req), nil
	}

	rec := ts.do(http.MethodPost, "/api/orders", `{"productId": 3, "quantity": 2.9}`, 42)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, ts.settler.orders[0].Quantity)
}

func TestPlaceOrderRejectsBeforeSettling(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		userID     int64
		wantStatus int
		wantCode   string
	}{
		{"anonymous", `{"productId": 1, "quantity": 1}`, 0, http.StatusUnauthorized, CodeUnauthenticated},
		{"empty body", ``, 1, http.StatusBadRequest, CodeInvalidInput},
		{"malformed", `{"productId": 1,`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"missing product", `{"quantity": 1}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"missing quantity", `{"productId": 1}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"zero quantity", `{"productId": 1, "quantity": 0}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"fraction below one", `{"productId": 1, "quantity": 0.5}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"negative quantity", `{"productId": 1, "quantity": -3}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"fractional product", `{"productId": 1.5, "quantity": 1}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"string product", `{"productId": "1", "quantity": 1}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"null quantity", `{"productId": 1, "quantity": null}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"unknown field", `{"productId": 1, "quantity": 1, "price": 0}`, 1, http.StatusBadRequest, CodeInvalidInput},
		{"two objects", `{"productId": 1, "quantity": 1}{}`, 1, http.StatusBadRequest, CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)

			rec := ts.do(http.MethodPost, "/api/orders", tt.body, tt.userID)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeJSON(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["message"])
			assert.Zero(t, ts.settler.orderCalls())
		})
	}
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"user", database.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound},
		{"product", database.ErrProductNotFound, http.StatusNotFound, CodeProductNotFound},
		{"stock", database.ErrInsufficientStock, http.StatusBadRequest, CodeInsufficientStock},
		{"price", database.ErrInvalidPrice, http.StatusBadRequest, CodeInvalidPrice},
		{"conflict", database.ErrConcurrentModification, http.StatusConflict, CodeConcurrentModification},
		{"unavailable", database.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"internal", errors.New("pq: relation \"orders\" does not exist"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.settler.placeOrder = func(settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
				return nil, tt.err
			}

			rec := ts.do(http.MethodPost, "/api/orders", `{"productId": 1, "quantity": 1}`, 7)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeJSON(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotContains(t, body["message"], "pq:")
		})
	}
}

func TestPlaceOrderInsufficientBalanceDetails(t *testing.T) {
	ts := newTestServer(t, false)
	ts.settler.placeOrder = func(settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
		return nil, &database.InsufficientBalanceError{Current: dec("10"), Needed: dec("50")}
	}

	rec := ts.do(http.MethodPost, "/api/orders", `{"productId": 1, "quantity": 1}`, 7)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, CodeInsufficientBalance, body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "10", details["currentCredits"])
	assert.Equal(t, "50", details["requiredCredits"])
}

func TestPlaceOrderUnavailableSetsRetryAfter(t *testing.T) {
	ts := newTestServer(t, false)
	ts.settler.placeOrder = func(settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
		return nil, database.ErrStoreUnavailable
	}

	rec := ts.do(http.MethodPost, "/api/orders", `{"productId": 1, "quantity": 1}`, 7)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
}

func TestPlaceOrderMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(http.MethodDelete, "/api/orders", "", 7)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer(t, false)
	ts.reader.orders = &store.CursorPage[models.Order]{
		Items:      []models.Order{{ID: 3}, {ID: 2}},
		NextCursor: "abc",
		HasMore:    true,
	}

	rec := ts.do(http.MethodGet, "/api/orders?limit=2&cursor=xyz", "", 5)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeJSON(t, rec)
	assert.Len(t, body["orders"], 2)
	assert.Equal(t, "abc", body["nextCursor"])
	assert.Equal(t, true, body["hasMore"])
	assert.Equal(t, int64(5), ts.reader.lastUserID)
	assert.Equal(t, "xyz", ts.reader.lastCursor)
	assert.Equal(t, 2, ts.reader.lastLimit)

	rec = ts.do(http.MethodGet, "/api/orders?limit=500", "", 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t, false)
	ts.reader.order = &models.Order{ID: 9, UserID: 5}

	rec := ts.do(http.MethodGet, "/api/orders/9", "", 5)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), ts.reader.lastUserID)

	rec = ts.do(http.MethodGet, "/api/orders/nine", "", 5)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.reader.err = database.ErrOrderNotFound
	rec = ts.do(http.MethodGet, "/api/orders/9", "", 6)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeOrderNotFound, decodeJSON(t, rec)["code"])
}
