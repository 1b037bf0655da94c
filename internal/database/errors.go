package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	ErrorClassUnavailable
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	if errors.Is(err, ErrConcurrentModification) {
		return ErrorClassSerialization
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "57P01", "57P02", "57P03", "53300":
			return ErrorClassUnavailable
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
		if pqErr.Code.Class() == "08" {
			return ErrorClassUnavailable
		}
		return ErrorClassPermanent
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassUnavailable
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUnavailable reports whether err means the store could not be reached or
// dropped the connection. Callers may retry the whole request.
func IsUnavailable(err error) bool {
	return ClassifyError(err) == ErrorClassUnavailable
}

// IsUniqueViolation reports whether err is a unique_violation on the named
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrInvalidInput           = errors.New("invalid input")
	ErrCouponInvalidOrExpired = errors.New("coupon invalid or expired")
	ErrCouponAlreadyUsed      = errors.New("coupon already used")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// InsufficientBalanceError carries the balance that was observed and the
// amount the operation needed.
type InsufficientBalanceError struct {
	Current decimal.Decimal
	Needed  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s", e.Current.StringFixed(2), e.Needed.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsDomainError reports whether err is one of the business-rule kinds above,
// as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrUserNotFound,
		ErrProductNotFound,
		ErrOrderNotFound,
		ErrInsufficientStock,
		ErrInsufficientBalance,
		ErrInvalidPrice,
		ErrInvalidInput,
		ErrCouponInvalidOrExpired,
		ErrCouponAlreadyUsed,
		ErrConcurrentModification,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Translate maps an infrastructure failure onto ErrStoreUnavailable when the
// store could not be reached. Domain errors and other failures pass through.
func Translate(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if IsUnavailable(err) {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, strings.TrimSpace(err.Error()))
	}
	return err
}
