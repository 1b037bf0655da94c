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

const userColumns = `id, email, name, role, provider, credits, created_at, updated_at`

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Provider     string
	Credits      decimal.Decimal
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Provider,
		&user.Credits,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(ctx context.Context, q Querier, p CreateUserParams) (*models.User, error) {
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if p.Provider == "" {
		p.Provider = models.ProviderCredentials
	}

	var passwordHash sql.NullString
	if p.PasswordHash != "" {
		passwordHash = sql.NullString{String: p.PasswordHash, Valid: true}
	}

	query := `
		INSERT INTO users (email, name, password_hash, role, provider, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(q.QueryRowContext(ctx, query,
		p.Email, p.Name, passwordHash, p.Role, p.Provider, p.Credits))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q Querier, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// GetUserForUpdate loads the user and holds its row lock until tx ends, so
// the balance it returns stays current for the rest of the transaction.
func GetUserForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}

	return user, nil
}

func GetBalance(ctx context.Context, q Querier, userID int64) (decimal.Decimal, error) {
	var credits decimal.Decimal

	err := q.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, database.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	return credits, nil
}

// AdjustBalance adds delta to the user's credits in a single conditional
// UPDATE and returns the new balance. A debit that would take the balance
// below zero fails with *database.InsufficientBalanceError. When expected is
// valid the write only happens if the stored balance still equals it,
// otherwise database.ErrConcurrentModification is returned.
func AdjustBalance(ctx context.Context, q Querier, userID int64, delta decimal.Decimal, expected decimal.NullDecimal) (decimal.Decimal, error) {
	var credits decimal.Decimal

	err := q.QueryRowContext(ctx,
		`UPDATE users
		 SET credits = credits + $2::numeric,
		     updated_at = NOW()
		 WHERE id = $1
		   AND credits + $2::numeric >= 0
		   AND ($3::numeric IS NULL OR credits = $3::numeric)
		 RETURNING credits`,
		userID, delta, expected).Scan(&credits)
	if err == nil {
		return credits, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}

	current, err := GetBalance(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}

	if expected.Valid && !current.Equal(expected.Decimal) {
		return decimal.Zero, database.ErrConcurrentModification
	}
	// The balance moved between the UPDATE and the re-read.
	if !current.Add(delta).IsNegative() {
		return decimal.Zero, database.ErrConcurrentModification
	}

	return decimal.Zero, &database.InsufficientBalanceError{
		Current: current,
		Needed:  delta.Neg(),
	}
}
