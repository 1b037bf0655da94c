package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      string          `json:"role"`
	Provider  string          `json:"provider"`
	Credits   decimal.Decimal `json:"credits"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
)

type Category struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product.Stock is nil when the product has unlimited availability.
type Product struct {
	ID          int64           `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock"`
	Sold        int             `json:"sold"`
	CategoryID  *int64          `json:"categoryId,omitempty"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// HasStock reports whether quantity units can be taken from the product.
func (p *Product) HasStock(quantity int) bool {
	return p.Stock == nil || *p.Stock >= quantity
}

type StockReservation struct {
	ProductID int64 `json:"productId"`
	Stock     *int  `json:"stock"`
	Sold      int   `json:"sold"`
}

type Order struct {
	ID           int64             `json:"id"`
	UserID       int64             `json:"userId"`
	ProductID    int64             `json:"productId"`
	Quantity     int               `json:"quantity"`
	UnitPrice    decimal.Decimal   `json:"unitPrice"`
	TotalPrice   decimal.Decimal   `json:"totalPrice"`
	CreatedAt    time.Time         `json:"createdAt"`
	Fulfillments []FulfillmentItem `json:"fulfillments,omitempty"`
}

// FulfillmentItem is a delivered key or item string attached to an order by
// the fulfillment process.
type FulfillmentItem struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"orderId"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	FulfillmentKindKey  = "key"
	FulfillmentKindItem = "item"
)

type Coupon struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	CreditAmount decimal.Decimal `json:"creditAmount"`
	UsageLimit   int             `json:"usageLimit"`
	UsedCount    int             `json:"usedCount"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type CouponRedemption struct {
	ID        int64     `json:"id"`
	CouponID  int64     `json:"couponId"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
