package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/safar/qooldab/internal/auth"
	"github.com/safar/qooldab/internal/idempotency"
	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/settlement"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	mu          sync.Mutex
	orders      []settlement.PlaceOrderRequest
	redemptions []settlement.RedeemCouponRequest

	placeOrder   func(settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error)
	redeemCoupon func(settlement.RedeemCouponRequest) (*settlement.RedemptionResult, error)
}

func (f *fakeSettler) PlaceOrder(_ context.Context, req settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error) {
	f.mu.Lock()
	f.orders = append(f.orders, req)
	f.mu.Unlock()
	return f.placeOrder(req)
}

func (f *fakeSettler) RedeemCoupon(_ context.Context, req settlement.RedeemCouponRequest) (*settlement.RedemptionResult, error) {
	f.mu.Lock()
	f.redemptions = append(f.redemptions, req)
	f.mu.Unlock()
	return f.redeemCoupon(req)
}

func (f *fakeSettler) orderCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeReader struct {
	user     *models.User
	orders   *store.CursorPage[models.Order]
	order    *models.Order
	products *store.OffsetPage[models.Product]
	product  *models.Product
	err      error
	pingErr  error

	lastFilter   store.ProductFilter
	lastPage     int
	lastPageSize int
	lastCursor   string
	lastLimit    int
	lastUserID   int64
}

func (f *fakeReader) GetUser(_ context.Context, id int64) (*models.User, error) {
	f.lastUserID = id
	return f.user, f.err
}

func (f *fakeReader) ListOrders(_ context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	f.lastUserID, f.lastCursor, f.lastLimit = userID, cursor, limit
	return f.orders, f.err
}

func (f *fakeReader) GetOrder(_ context.Context, orderID, userID int64) (*models.Order, error) {
	f.lastUserID = userID
	return f.order, f.err
}

func (f *fakeReader) ListProducts(_ context.Context, filter store.ProductFilter, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	f.lastFilter, f.lastPage, f.lastPageSize = filter, page, pageSize
	return f.products, f.err
}

func (f *fakeReader) GetProductBySlug(_ context.Context, slug string) (*models.Product, error) {
	return f.product, f.err
}

func (f *fakeReader) Ping(context.Context) error {
	return f.pingErr
}

type testServer struct {
	settler *fakeSettler
	reader  *fakeReader
	handler http.Handler
}

func newTestServer(t *testing.T, withIdempotency bool) *testServer {
	t.Helper()

	ts := &testServer{
		settler: &fakeSettler{},
		reader:  &fakeReader{},
	}

	cfg := Config{Settler: ts.settler, Reader: ts.reader}
	if withIdempotency {
		idem, err := idempotency.Open(t.TempDir()+"/idem.db", time.Hour)
		require.NoError(t, err)
		t.Cleanup(func() { idem.Close() })
		cfg.Idempotency = idem
	}

	ts.handler = NewServer(cfg).Handler()
	return ts
}

// do sends a request as userID; zero means anonymous.
func (ts *testServer) do(method, target, body string, userID int64, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, reader)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		r.Header.Set(auth.HeaderUserID, strconv.FormatInt(userID, 10))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, r)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
