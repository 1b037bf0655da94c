// Package api is the HTTP surface of the storefront core. Handlers decode and
// validate the request, take the caller's id from the auth context and hand
// off to the settlement service or the read store.
package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/safar/qooldab/internal/auth"
	"github.com/safar/qooldab/internal/idempotency"
	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/settlement"
	"github.com/safar/qooldab/internal/store"
	"go.uber.org/zap"
)

type Settler interface {
	PlaceOrder(ctx context.Context, req settlement.PlaceOrderRequest) (*settlement.OrderReceipt, error)
	RedeemCoupon(ctx context.Context, req settlement.RedeemCouponRequest) (*settlement.RedemptionResult, error)
}

type Reader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListOrders(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error)
	GetOrder(ctx context.Context, orderID, userID int64) (*models.Order, error)
	ListProducts(ctx context.Context, filter store.ProductFilter, page, pageSize int) (*store.OffsetPage[models.Product], error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Settler  Settler
	Reader   Reader
	Identity auth.Provider
	// Idempotency is optional. Without it Idempotency-Key headers are ignored.
	Idempotency *idempotency.Store
	Logger      *zap.Logger
}

type Server struct {
	settler  Settler
	reader   Reader
	identity auth.Provider
	idem     *idempotency.Store
	log      *zap.Logger
	validate *validator.Validate
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = auth.HeaderProvider{}
	}

	return &Server{
		settler:  cfg.Settler,
		reader:   cfg.Reader,
		identity: identity,
		idem:     cfg.Idempotency,
		log:      log,
		validate: newValidator(),
	}
}

// Handler returns the routed handler wrapped in request logging and panic
// recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/orders", s.authed(okEnvelope, s.idempotent("orders", okEnvelope, s.handlePlaceOrder)))
	mux.Handle("GET /api/orders", s.authed(okEnvelope, s.handleListOrders))
	mux.Handle("GET /api/orders/{id}", s.authed(okEnvelope, s.handleGetOrder))
	mux.Handle("POST /api/profile/redeem-coupon", s.authed(successEnvelope, s.idempotent("redeem-coupon", successEnvelope, s.handleRedeemCoupon)))
	mux.Handle("GET /api/profile", s.authed(okEnvelope, s.handleProfile))
	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("GET /api/products/{slug}", s.handleGetProduct)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withRequestLog(s.recoverPanics(mux))
}

func (s *Server) authed(env envelope, h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.identity, func(w http.ResponseWriter, r *http.Request) {
		respondError(w, env, auth.ErrUnauthenticated)
	})(h)
}

// userID is only called behind authed.
func userID(r *http.Request) int64 {
	id, _ := auth.FromContext(r.Context())
	return id.UserID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}
