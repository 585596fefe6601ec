package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrTokenInvalid covers unknown, revoked and expired refresh tokens
// alike; callers answer all three with the same 401.
var ErrTokenInvalid = errors.New("refresh token invalid")

// TokenRepo stores refresh tokens by their SHA-256 hash.  The raw token
// only ever exists on the client.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh records a newly issued token.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return storeRefresh(ctx, r.DB, userID, tokenHash, exp)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func storeRefresh(ctx context.Context, db execer, userID uint64, tokenHash string, exp time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, tokenHash, exp.UTC(), time.Now().UTC())
	return err
}

// ValidateRefresh returns the owner of a live token or ErrTokenInvalid.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		`SELECT user_id FROM refresh_tokens
		 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, time.Now().UTC()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RevokeByHash revokes one token and reports whether it was still live.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	return revoke(ctx, r.DB, tokenHash)
}

func revoke(ctx context.Context, db execer, tokenHash string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Rotate revokes oldHash and stores newHash in one transaction.  It
// reports false, storing nothing, when oldHash was already revoked, so
// a refresh token replayed concurrently yields a single new pair.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, userID uint64, newHash string, exp time.Time) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	revoked, err := revoke(ctx, tx, oldHash)
	if err != nil || !revoked {
		return false, err
	}
	if err := storeRefresh(ctx, tx, userID, newHash, exp); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// RevokeAllForUser revokes every live token of userID.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), userID)
	return err
}

// PurgeExpired deletes tokens that expired or were revoked before
// cutoff and returns how many rows went.
func (r *TokenRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)`,
		cutoff, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
