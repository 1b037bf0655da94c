package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/settlement"
)

const maxBodyBytes = 64 << 10

const (
	defaultOrdersLimit = 20
	maxOrdersLimit     = 100
	defaultPageSize    = 20
	maxPageSize        = 100
)

// Numbers are decoded as float64 so fractional or out-of-range values reach
// the settlement parsers instead of failing as a type mismatch.
type placeOrderBody struct {
	ProductID *float64 `json:"productId" validate:"required"`
	Quantity  *float64 `json:"quantity" validate:"required"`
}

type redeemCouponBody struct {
	Code string `json:"code" validate:"required,max=256"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads exactly one JSON object into dst and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return database.Invalid("body", "must contain a single JSON object")
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return database.Invalid("body", "failed validation")
	}
	return nil
}

func bodyError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)

	switch {
	case errors.Is(err, io.EOF):
		return database.Invalid("body", "is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return database.Invalid("body", "is not valid JSON")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return database.Invalid(field, "has the wrong type")
	case errors.As(err, &sizeErr):
		return database.Invalid("body", "must be at most %d bytes", sizeErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return database.Invalid(field, "is not a recognized field")
	}
	return database.Invalid("body", "could not be decoded")
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return database.Invalid(fe.Field(), "is required")
	case "max":
		return database.Invalid(fe.Field(), "must be at most %s characters", fe.Param())
	}
	return database.Invalid(fe.Field(), "failed %s validation", fe.Tag())
}

func (b placeOrderBody) toRequest(userID int64) (settlement.PlaceOrderRequest, error) {
	productID, err := settlement.ParseID("productId", *b.ProductID)
	if err != nil {
		return settlement.PlaceOrderRequest{}, err
	}
	quantity, err := settlement.ParseQuantity(*b.Quantity)
	if err != nil {
		return settlement.PlaceOrderRequest{}, err
	}
	return settlement.PlaceOrderRequest{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}, nil
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, database.Invalid(name, "must be a positive integer")
	}
	if max > 0 && n > max {
		return 0, database.Invalid(name, "must be at most %d", max)
	}
	return n, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, database.Invalid(name, "must be a positive integer")
	}
	return id, nil
}
