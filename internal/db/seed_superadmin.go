package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSuperadmin creates the configured superadmin when no account with
// that email exists. It never updates an existing account.
func EnsureSuperadmin(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) (bool, error) {
	if cfg.SuperadminEmail == "" || cfg.SuperadminPassword == "" {
		return false, nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.SuperadminEmail))

	var dummy string
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE LOWER(email) = $1`, email).Scan(&dummy)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.SuperadminPassword)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, name, email, phone, password_hash, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, $5, TRUE, $6, $6)
		ON CONFLICT DO NOTHING`,
		uuid.NewString(), cfg.SuperadminName, email, hash, string(role.Superadmin), now,
	)
	if err != nil {
		return false, err
	}

	return true, nil
}
