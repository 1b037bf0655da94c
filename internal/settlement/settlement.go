// Package settlement implements the two operations that move credits: order
// placement and coupon redemption. Each runs as one database transaction, so
// either every write lands or none does. Cross-request coordination happens
// through row locks and conditional updates in Postgres; the Service itself
// holds no mutable state.
package settlement

import (
	"database/sql"
	"errors"
	"time"

	"github.com/safar/qooldab/internal/database"
	"go.uber.org/zap"
)

type Service struct {
	db     *sql.DB
	txOpts database.TxOptions
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithTxOptions(opts database.TxOptions) Option {
	return func(s *Service) { s.txOpts = opts }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source used for coupon expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		txOpts: database.DefaultTxOptions(),
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// finish logs unexpected failures and maps unreachable-store errors onto
// database.ErrStoreUnavailable.
func (s *Service) finish(op string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	err = database.Translate(err)
	switch {
	case errors.Is(err, database.ErrStoreUnavailable):
		s.log.Warn(op+" failed", append(fields, zap.Error(err))...)
	case !database.IsDomainError(err):
		s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	}
	return err
}
