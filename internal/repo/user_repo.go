package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

// UserRepo is the identity store consumed by the auth core. Read-only here.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Principal, error)
	GetByPhone(ctx context.Context, phone string) (model.Principal, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Principal, error) {
	query := `
		SELECT id, phone_number, role, active, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id.String())
}

// GetByPhone retrieves a user by phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.Principal, error) {
	query := `
		SELECT id, phone_number, role, active, created_at
		FROM users
		WHERE phone_number = $1
	`
	return r.scanOne(ctx, query, phone)
}

func (r *userRepo) scanOne(ctx context.Context, query string, arg string) (model.Principal, error) {
	var user model.Principal
	var idStr, role string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&user.PhoneNumber,
		&role,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, apperr.New(apperr.KindNotFound, "user not found")
		}
		return model.Principal{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Principal{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	user.Role = model.Role(role)
	return user, nil
}
