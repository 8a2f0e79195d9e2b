package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/pill-dispenser/internal/model"
)

// TokenRepo stores refresh tokens by their SHA-256 hash; the raw value
// never reaches the database.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh records a freshly issued token.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// FindRefresh loads the token row for tokenHash whatever its state.
// Callers decide what an expired or revoked token means for them.
func (r *TokenRepo) FindRefresh(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

// RevokeByHash marks one token as revoked.  Revoking an already revoked
// token is a no-op.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return r.revoke(ctx, "token_hash=?", tokenHash)
}

// RevokeAllForUser revokes every live token of userID, e.g. once the
// account has been deactivated.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return r.revoke(ctx, "user_id=?", userID)
}

func (r *TokenRepo) revoke(ctx context.Context, where string, arg any) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE "+where+" AND revoked_at IS NULL", arg)
	return err
}
