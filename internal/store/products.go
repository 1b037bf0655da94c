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

const productColumns = `id, slug, name, description, image_url, price, stock, sold, category_id, is_active, created_at, updated_at`

type CreateProductParams struct {
	Slug        string
	Name        string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	Stock       *int
	CategoryID  *int64
	Inactive    bool
}

const (
	SortNewest  = "newest"
	SortPopular = "popular"
)

type ProductFilter struct {
	CategorySlug string
	Sort         string
}

func scanProduct(row scanner) (*models.Product, error) {
	var (
		product    models.Product
		stock      sql.NullInt64
		categoryID sql.NullInt64
	)

	err := row.Scan(
		&product.ID,
		&product.Slug,
		&product.Name,
		&product.Description,
		&product.ImageURL,
		&product.Price,
		&stock,
		&product.Sold,
		&categoryID,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	product.Stock = nullIntPtr(stock)
	product.CategoryID = nullInt64Ptr(categoryID)
	return &product, nil
}

func CreateProduct(ctx context.Context, q Querier, p CreateProductParams) (*models.Product, error) {
	query := `
		INSERT INTO products (slug, name, description, image_url, price, stock, category_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + productColumns

	var stock, categoryID sql.NullInt64
	if p.Stock != nil {
		stock = sql.NullInt64{Int64: int64(*p.Stock), Valid: true}
	}
	if p.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *p.CategoryID, Valid: true}
	}

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		p.Slug, p.Name, p.Description, p.ImageURL, p.Price, stock, categoryID, !p.Inactive))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductBySlug only returns active products.
func GetProductBySlug(ctx context.Context, q Querier, slug string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1 AND is_active`

	product, err := scanProduct(q.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product by slug: %w", err)
	}

	return product, nil
}

// LockProduct loads the product and holds its row lock until tx ends.
// Concurrent buyers of the same product queue here.
func LockProduct(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

// ReserveStock takes quantity units from the product in one conditional
// UPDATE. Tracked stock is decremented (NULL stays NULL) and sold is
// incremented either way. The update only applies while stock is unlimited
// or at least quantity.
func ReserveStock(ctx context.Context, q Querier, productID int64, quantity int) (*models.StockReservation, error) {
	if quantity <= 0 {
		return nil, database.Invalid("quantity", "must be a positive integer")
	}

	var stock sql.NullInt64
	reservation := &models.StockReservation{ProductID: productID}

	err := q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock - $2,
		     sold = sold + $2,
		     updated_at = NOW()
		 WHERE id = $1
		   AND (stock IS NULL OR stock >= $2)
		 RETURNING stock, sold`,
		productID, quantity).Scan(&stock, &reservation.Sold)
	if err == nil {
		reservation.Stock = nullIntPtr(stock)
		return reservation, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	var exists bool
	err = q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)",
		productID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return nil, database.ErrProductNotFound
	}

	return nil, database.ErrInsufficientStock
}

func ListProducts(ctx context.Context, q Querier, filter ProductFilter, page, pageSize int) (*OffsetPage[models.Product], error) {
	orderBy := "p.created_at DESC, p.id DESC"
	switch filter.Sort {
	case "", SortNewest:
	case SortPopular:
		orderBy = "p.sold DESC, p.id DESC"
	default:
		return nil, database.Invalid("sort", "must be %q or %q", SortNewest, SortPopular)
	}

	where := `p.is_active AND ($1 = '' OR c.slug = $1)`

	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products p LEFT JOIN categories c ON c.id = p.category_id WHERE `+where,
		filter.CategorySlug).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT p.id, p.slug, p.name, p.description, p.image_url, p.price, p.stock, p.sold,
		       p.category_id, p.is_active, p.created_at, p.updated_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ` + where + `
		ORDER BY ` + orderBy + `
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, filter.CategorySlug, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(products, total, page, pageSize), nil
}

func CreateCategory(ctx context.Context, q Querier, slug, name string) (*models.Category, error) {
	category := &models.Category{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO categories (slug, name, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, slug, name, created_at`,
		slug, name).Scan(&category.ID, &category.Slug, &category.Name, &category.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}
