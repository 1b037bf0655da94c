package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/qooldab/internal/auth"
	"github.com/safar/qooldab/internal/database"
	"go.uber.org/zap"
)

// envelope selects the success flag name used by a route's JSON bodies. The
// order and read routes answer with "ok", coupon redemption with "success".
type envelope int

const (
	okEnvelope envelope = iota
	successEnvelope
)

func (e envelope) flag() string {
	if e == successEnvelope {
		return "success"
	}
	return "ok"
}

// Error codes returned in the "code" field of failure bodies.
const (
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeProductNotFound        = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeInvalidPrice           = "INVALID_PRICE"
	CodeCouponInvalidOrExpired = "COUPON_INVALID_OR_EXPIRED"
	CodeCouponAlreadyUsed      = "COUPON_ALREADY_USED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeRequestInProgress      = "REQUEST_IN_PROGRESS"
	CodeIdempotencyKeyReused   = "IDEMPOTENCY_KEY_REUSED"
	CodeStoreUnavailable       = "STORE_UNAVAILABLE"
	CodeInternal               = "INTERNAL_ERROR"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "1"

type apiError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

// describe maps an error onto the status, code and message shown to the
// client. Messages never include store internals.
func describe(err error) apiError {
	var (
		balanceErr *database.InsufficientBalanceError
		validErr   *database.ValidationError
	)

	switch {
	case errors.As(err, &validErr):
		return apiError{http.StatusBadRequest, CodeInvalidInput, validErr.Error(), map[string]any{"field": validErr.Field}}
	case errors.Is(err, database.ErrInvalidInput):
		return apiError{http.StatusBadRequest, CodeInvalidInput, "Invalid request", nil}
	case errors.Is(err, auth.ErrUnauthenticated):
		return apiError{http.StatusUnauthorized, CodeUnauthenticated, "Authentication required", nil}
	case errors.Is(err, database.ErrUserNotFound):
		return apiError{http.StatusNotFound, CodeUserNotFound, "User not found", nil}
	case errors.Is(err, database.ErrProductNotFound):
		return apiError{http.StatusNotFound, CodeProductNotFound, "Product not found", nil}
	case errors.Is(err, database.ErrOrderNotFound):
		return apiError{http.StatusNotFound, CodeOrderNotFound, "Order not found", nil}
	case errors.Is(err, database.ErrInsufficientStock):
		return apiError{http.StatusBadRequest, CodeInsufficientStock, "Not enough stock available", nil}
	case errors.As(err, &balanceErr):
		return apiError{http.StatusBadRequest, CodeInsufficientBalance, "Insufficient credits", map[string]any{
			"currentCredits":  balanceErr.Current,
			"requiredCredits": balanceErr.Needed,
		}}
	case errors.Is(err, database.ErrInsufficientBalance):
		return apiError{http.StatusBadRequest, CodeInsufficientBalance, "Insufficient credits", nil}
	case errors.Is(err, database.ErrInvalidPrice):
		return apiError{http.StatusBadRequest, CodeInvalidPrice, "Product price is invalid", nil}
	case errors.Is(err, database.ErrCouponInvalidOrExpired):
		return apiError{http.StatusBadRequest, CodeCouponInvalidOrExpired, "Invalid or expired coupon code", nil}
	case errors.Is(err, database.ErrCouponAlreadyUsed):
		return apiError{http.StatusBadRequest, CodeCouponAlreadyUsed, "You have already used this coupon", nil}
	case errors.Is(err, database.ErrConcurrentModification):
		return apiError{http.StatusConflict, CodeConcurrentModification, "The request conflicted with another update, please retry", nil}
	case errors.Is(err, database.ErrStoreUnavailable):
		return apiError{http.StatusServiceUnavailable, CodeStoreUnavailable, "Service temporarily unavailable, please retry", nil}
	}
	return apiError{http.StatusInternalServerError, CodeInternal, "Internal server error", nil}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; a failed encode only means the client
	// went away.
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, env envelope, err error) {
	writeAPIError(w, env, describe(err))
}

func writeAPIError(w http.ResponseWriter, env envelope, ae apiError) {
	body := map[string]any{
		env.flag(): false,
		"code":     ae.Code,
		"message":  ae.Message,
	}
	if ae.Details != nil {
		body["details"] = ae.Details
	}
	if ae.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	respondJSON(w, ae.Status, body)
}

// fail writes err and logs it when it is not an expected outcome.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, env envelope, err error) {
	err = database.Translate(err)
	ae := describe(err)
	if ae.Status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeAPIError(w, env, ae)
}
