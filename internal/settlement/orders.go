package settlement

import (
	"context"
	"database/sql"
	"math"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxQuantity bounds a single order line so it fits the orders.quantity column.
const MaxQuantity = math.MaxInt32

// maxAmount is the first value that no longer fits NUMERIC(14,2).
var maxAmount = decimal.New(1, 12)

type PlaceOrderRequest struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

type CreditSnapshot struct {
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
}

type OrderReceipt struct {
	Order   *models.Order  `json:"order"`
	Credits CreditSnapshot `json:"credits"`
}

// ParseQuantity converts a client supplied quantity to a whole number of
// units. Fractions are truncated; anything that is not at least one unit
// afterwards is rejected.
func ParseQuantity(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, database.Invalid("quantity", "must be a finite number")
	}
	q := math.Floor(v)
	if q < 1 {
		return 0, database.Invalid("quantity", "must be at least 1")
	}
	if q > MaxQuantity {
		return 0, database.Invalid("quantity", "must be at most %d", MaxQuantity)
	}
	return int(q), nil
}

// ParseID accepts a positive whole number.
func ParseID(field string, v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v < 1 || v > math.MaxInt64/2 {
		return 0, database.Invalid(field, "must be a positive integer")
	}
	return int64(v), nil
}

func (r PlaceOrderRequest) validate() error {
	if r.UserID <= 0 {
		return database.Invalid("userId", "must be a positive integer")
	}
	if r.ProductID <= 0 {
		return database.Invalid("productId", "must be a positive integer")
	}
	if r.Quantity < 1 || r.Quantity > MaxQuantity {
		return database.Invalid("quantity", "must be between 1 and %d", MaxQuantity)
	}
	return nil
}

// OrderTotal prices quantity units. The result must be non-negative and
// storable.
func OrderTotal(unitPrice decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if unitPrice.IsNegative() {
		return decimal.Zero, database.ErrInvalidPrice
	}
	total := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if total.IsNegative() || total.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, database.ErrInvalidPrice
	}
	return total, nil
}

// PlaceOrder buys req.Quantity units of a product for the user. The product
// row is locked first, then the user row; the balance debit, the stock
// reservation and the order insert commit together or not at all. Free
// products never touch the balance.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderReceipt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var receipt *OrderReceipt

	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		product, err := store.LockProduct(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return database.ErrProductNotFound
		}

		if !product.HasStock(req.Quantity) {
			return database.ErrInsufficientStock
		}

		total, err := OrderTotal(product.Price, req.Quantity)
		if err != nil {
			return err
		}

		user, err := store.GetUserForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		before := user.Credits
		after := before
		if total.IsPositive() {
			if before.LessThan(total) {
				return &database.InsufficientBalanceError{Current: before, Needed: total}
			}

			after, err = store.AdjustBalance(ctx, tx, user.ID, total.Neg(), decimal.NewNullDecimal(before))
			if err != nil {
				return err
			}
		}

		if _, err := store.ReserveStock(ctx, tx, product.ID, req.Quantity); err != nil {
			return err
		}

		order, err := store.InsertOrder(ctx, tx, store.CreateOrderParams{
			UserID:     user.ID,
			ProductID:  product.ID,
			Quantity:   req.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: total,
		})
		if err != nil {
			return err
		}

		receipt = &OrderReceipt{
			Order:   order,
			Credits: CreditSnapshot{Before: before, After: after},
		}
		return nil
	})
	if err != nil {
		return nil, s.finish("place order", err,
			zap.Int64("user_id", req.UserID),
			zap.Int64("product_id", req.ProductID),
			zap.Int("quantity", req.Quantity))
	}

	s.log.Info("order placed",
		zap.Int64("order_id", receipt.Order.ID),
		zap.Int64("user_id", req.UserID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.String("total", receipt.Order.TotalPrice.StringFixed(2)),
		zap.String("credits_after", receipt.Credits.After.StringFixed(2)))

	return receipt, nil
}
