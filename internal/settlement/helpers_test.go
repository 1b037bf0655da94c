package settlement_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/database/dbtest"
	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/settlement"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
)

func newService(t *testing.T, opts ...settlement.Option) (*settlement.Service, *sql.DB) {
	t.Helper()

	db := dbtest.New(t)
	txOpts := database.DefaultTxOptions()
	txOpts.MaxRetries = 5
	opts = append([]settlement.Option{settlement.WithTxOptions(txOpts)}, opts...)
	return settlement.New(db, opts...), db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int {
	return &n
}

func createUser(t *testing.T, db *sql.DB, email, credits string) *models.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), db, store.CreateUserParams{
		Email:   email,
		Name:    "Buyer",
		Credits: dec(credits),
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func createProduct(t *testing.T, db *sql.DB, slug, price string, stock *int) *models.Product {
	t.Helper()

	product, err := store.CreateProduct(context.Background(), db, store.CreateProductParams{
		Slug:  slug,
		Name:  slug,
		Price: dec(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

func createCoupon(t *testing.T, db *sql.DB, p store.CreateCouponParams) *models.Coupon {
	t.Helper()

	coupon, err := store.CreateCoupon(context.Background(), db, p)
	if err != nil {
		t.Fatalf("Create coupon: %v", err)
	}
	return coupon
}

func balanceOf(t *testing.T, db *sql.DB, userID int64) decimal.Decimal {
	t.Helper()

	balance, err := store.GetBalance(context.Background(), db, userID)
	if err != nil {
		t.Fatalf("Get balance: %v", err)
	}
	return balance
}

func productOf(t *testing.T, db *sql.DB, productID int64) *models.Product {
	t.Helper()

	product, err := store.GetProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	return product
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("Count rows: %v", err)
	}
	return n
}

func exec(t *testing.T, db *sql.DB, query string) {
	t.Helper()

	if _, err := db.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("Exec %q: %v", query, err)
	}
}
