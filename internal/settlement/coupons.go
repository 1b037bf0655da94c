package settlement

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxCodeLength = 64

type RedeemCouponRequest struct {
	UserID int64
	Code   string
}

type RedemptionResult struct {
	CreditAmount decimal.Decimal `json:"creditAmount"`
	NewBalance   decimal.Decimal `json:"newCredits"`
	Code         string          `json:"code"`
}

// NormalizeCode trims surrounding whitespace. Codes are otherwise matched
// exactly, including case.
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", database.Invalid("code", "is required")
	}
	if utf8.RuneCountInString(code) > maxCodeLength {
		return "", database.Invalid("code", "must be at most %d characters", maxCodeLength)
	}
	return code, nil
}

// RedeemCoupon credits the coupon's amount to the user once. The coupon row
// is locked for the duration of the transaction, so concurrent attempts on
// the same coupon queue; the (coupon_id, user_id) unique constraint rejects
// any duplicate that still gets through.
func (s *Service) RedeemCoupon(ctx context.Context, req RedeemCouponRequest) (*RedemptionResult, error) {
	if req.UserID <= 0 {
		return nil, database.Invalid("userId", "must be a positive integer")
	}
	code, err := NormalizeCode(req.Code)
	if err != nil {
		return nil, err
	}

	var result *RedemptionResult

	err = database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		user, err := store.GetUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		coupon, err := store.FindRedeemableCoupon(ctx, tx, code, s.now())
		if err != nil {
			return err
		}

		used, err := store.HasRedemption(ctx, tx, coupon.ID, user.ID)
		if err != nil {
			return err
		}
		if used {
			return database.ErrCouponAlreadyUsed
		}

		if _, err := store.InsertRedemption(ctx, tx, coupon.ID, user.ID); err != nil {
			return err
		}

		if _, err := store.IncrementCouponUsage(ctx, tx, coupon.ID); err != nil {
			return err
		}

		balance, err := store.AdjustBalance(ctx, tx, user.ID, coupon.CreditAmount, decimal.NullDecimal{})
		if err != nil {
			return err
		}

		result = &RedemptionResult{
			CreditAmount: coupon.CreditAmount,
			NewBalance:   balance,
			Code:         coupon.Code,
		}
		return nil
	})
	if err != nil {
		return nil, s.finish("redeem coupon", err,
			zap.Int64("user_id", req.UserID),
			zap.String("code", code))
	}

	s.log.Info("coupon redeemed",
		zap.Int64("user_id", req.UserID),
		zap.String("code", result.Code),
		zap.String("credit_amount", result.CreditAmount.StringFixed(2)),
		zap.String("credits_after", result.NewBalance.StringFixed(2)))

	return result, nil
}
