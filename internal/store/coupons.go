package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/models"
	"github.com/shopspring/decimal"
)

const couponColumns = `id, code, credit_amount, usage_limit, used_count, expires_at, created_at`

// RedemptionConstraint is the unique constraint on (coupon_id, user_id).
const RedemptionConstraint = "coupon_redemptions_coupon_user_key"

type CreateCouponParams struct {
	Code         string
	CreditAmount decimal.Decimal
	UsageLimit   int
	UsedCount    int
	ExpiresAt    *time.Time
}

func scanCoupon(row scanner) (*models.Coupon, error) {
	var (
		coupon    models.Coupon
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.CreditAmount,
		&coupon.UsageLimit,
		&coupon.UsedCount,
		&expiresAt,
		&coupon.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		coupon.ExpiresAt = &expiresAt.Time
	}
	return &coupon, nil
}

func CreateCoupon(ctx context.Context, q Querier, p CreateCouponParams) (*models.Coupon, error) {
	var expiresAt sql.NullTime
	if p.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *p.ExpiresAt, Valid: true}
	}

	query := `
		INSERT INTO coupons (code, credit_amount, usage_limit, used_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + couponColumns

	coupon, err := scanCoupon(q.QueryRowContext(ctx, query,
		p.Code, p.CreditAmount, p.UsageLimit, p.UsedCount, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

func GetCoupon(ctx context.Context, q Querier, id int64) (*models.Coupon, error) {
	coupon, err := scanCoupon(q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponInvalidOrExpired
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

// FindRedeemableCoupon locks the coupon with the exact code if it has uses
// left and has not expired at now.
func FindRedeemableCoupon(ctx context.Context, tx *sql.Tx, code string, now time.Time) (*models.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE code = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND used_count < usage_limit
		FOR UPDATE`

	coupon, err := scanCoupon(tx.QueryRowContext(ctx, query, code, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponInvalidOrExpired
		}
		return nil, fmt.Errorf("find coupon: %w", err)
	}

	return coupon, nil
}

func HasRedemption(ctx context.Context, q Querier, couponID, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2)",
		couponID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check redemption: %w", err)
	}
	return exists, nil
}

// InsertRedemption records that userID used couponID. A duplicate pair is
// rejected by the unique constraint and reported as
// database.ErrCouponAlreadyUsed.
func InsertRedemption(ctx context.Context, q Querier, couponID, userID int64) (*models.CouponRedemption, error) {
	redemption := &models.CouponRedemption{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO coupon_redemptions (coupon_id, user_id, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, coupon_id, user_id, created_at`,
		couponID, userID).Scan(
		&redemption.ID,
		&redemption.CouponID,
		&redemption.UserID,
		&redemption.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, RedemptionConstraint) {
			return nil, database.ErrCouponAlreadyUsed
		}
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	return redemption, nil
}

// IncrementCouponUsage bumps used_count while it is below usage_limit and
// returns the new count.
func IncrementCouponUsage(ctx context.Context, q Querier, couponID int64) (int, error) {
	var usedCount int

	err := q.QueryRowContext(ctx,
		`UPDATE coupons
		 SET used_count = used_count + 1
		 WHERE id = $1
		   AND used_count < usage_limit
		 RETURNING used_count`,
		couponID).Scan(&usedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrCouponInvalidOrExpired
		}
		return 0, fmt.Errorf("increment coupon usage: %w", err)
	}

	return usedCount, nil
}
