package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/safar/qooldab/internal/models"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
)

func createUser(t *testing.T, db *sql.DB, email, credits string) *models.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), db, store.CreateUserParams{
		Email:   email,
		Name:    "Test User",
		Credits: decimal.RequireFromString(credits),
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
		Name:  "Product " + slug,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

func intPtr(n int) *int {
	return &n
}
