package store

import (
	"context"
	"database/sql"

	"github.com/safar/qooldab/internal/models"
)

// Reader exposes the read-only queries the HTTP layer serves, bound to a
// connection pool.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

func (r *Reader) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return GetUser(ctx, r.db, id)
}

func (r *Reader) ListOrders(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	return ListOrdersCursor(ctx, r.db, userID, cursor, limit)
}

func (r *Reader) GetOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	return GetOrderForUser(ctx, r.db, orderID, userID)
}

func (r *Reader) ListProducts(ctx context.Context, filter ProductFilter, page, pageSize int) (*OffsetPage[models.Product], error) {
	return ListProducts(ctx, r.db, filter, page, pageSize)
}

func (r *Reader) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return GetProductBySlug(ctx, r.db, slug)
}

func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
