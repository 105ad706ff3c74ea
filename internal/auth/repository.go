package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new customer and returns it. The loyalty account row is
// NOT created here; the ledger creates it lazily on first point activity.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string) (*Customer, error) {
	var c Customer
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, passwordHash, displayName, role)
	if err := row.Scan(&c.ID); err != nil {
		return nil, err
	}
	c.Email = email
	c.DisplayName = displayName
	c.Role = role
	return &c, nil
}

// GetByEmail returns the customer and password hash for login. Returns nil
// if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Customer, string, error) {
	var c Customer
	var passwordHash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash
		FROM customers WHERE email = $1
	`, email)
	if err := row.Scan(&c.ID, &c.Email, &c.DisplayName, &c.Role, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &c, passwordHash, nil
}
