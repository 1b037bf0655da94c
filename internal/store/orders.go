package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, product_id, quantity, unit_price, total_price, created_at`

type CreateOrderParams struct {
	UserID     int64
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

func scanOrder(row scanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ProductID,
		&order.Quantity,
		&order.UnitPrice,
		&order.TotalPrice,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// InsertOrder writes the receipt row. It is only called from inside the
// order placement transaction.
func InsertOrder(ctx context.Context, q Querier, p CreateOrderParams) (*models.Order, error) {
	query := `
		INSERT INTO orders (user_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + orderColumns

	order, err := scanOrder(q.QueryRowContext(ctx, query,
		p.UserID, p.ProductID, p.Quantity, p.UnitPrice, p.TotalPrice))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

// GetOrderForUser returns the order with its fulfillment items. Orders that
// belong to another user are reported as not found.
func GetOrderForUser(ctx context.Context, q Querier, orderID, userID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListFulfillments(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Fulfillments = items

	return order, nil
}

func ListFulfillments(ctx context.Context, q Querier, orderID int64) ([]models.FulfillmentItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, kind, content, created_at
		 FROM order_fulfillments
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get fulfillments: %w", err)
	}
	defer rows.Close()

	var items []models.FulfillmentItem
	for rows.Next() {
		var item models.FulfillmentItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Kind, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fulfillment: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, q Querier, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
