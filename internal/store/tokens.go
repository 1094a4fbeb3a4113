package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bantamhq/cutman/internal/idtoken"
)

// CreateToken issues a new token for userID (nil for the admin-root
// token), returning the row and the plaintext secret, which is shown
// exactly once per spec §3 invariant 8 / §4.B.
func (s *SQLiteStore) CreateToken(ctx context.Context, userID *string, description string) (*Token, string, error) {
	secret, err := idtoken.GenerateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate token secret: %w", err)
	}

	hash, err := idtoken.HashSecret(secret)
	if err != nil {
		return nil, "", fmt.Errorf("hash token secret: %w", err)
	}

	id := idtoken.NewID()
	now := nowMicros()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, secret_hash, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, toNullString(userID), hash, description, now)
	if err != nil {
		return nil, "", err
	}

	return &Token{ID: id, UserID: userID, SecretHash: hash, Description: description, CreatedAt: microsToTime(now)}, secret, nil
}

func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*Token, error) {
	return scanToken(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, secret_hash, description, created_at, last_used_at, revoked_at FROM tokens WHERE id = ?`, id))
}

func scanToken(row *sql.Row) (*Token, error) {
	var t Token
	var userID sql.NullString
	var createdAt int64
	var lastUsed, revokedAt sql.NullInt64
	if err := row.Scan(&t.ID, &userID, &t.SecretHash, &t.Description, &createdAt, &lastUsed, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.UserID = fromNullString(userID)
	t.CreatedAt = microsToTime(createdAt)
	t.LastUsedAt = fromNullTime(lastUsed)
	t.RevokedAt = fromNullTime(revokedAt)
	return &t, nil
}

// AuthenticateToken looks up every non-revoked token and verifies secret
// against each hash, returning the matching row. Token lookups cannot be
// indexed by secret (only the hash is stored), so this mirrors the
// teacher's collision-checked, hash-scanning approach; deployments with
// many tokens would shard by a non-secret lookup prefix, deliberately not
// done here since the secret itself is never split into a separate lookup
// key in this design.
func (s *SQLiteStore) AuthenticateToken(ctx context.Context, secret string) (*Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, secret_hash, description, created_at, last_used_at, revoked_at FROM tokens WHERE revoked_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t Token
		var userID sql.NullString
		var createdAt int64
		var lastUsed, revokedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &userID, &t.SecretHash, &t.Description, &createdAt, &lastUsed, &revokedAt); err != nil {
			return nil, err
		}

		ok, err := idtoken.VerifySecret(secret, t.SecretHash)
		if err != nil || !ok {
			continue
		}

		t.UserID = fromNullString(userID)
		t.CreatedAt = microsToTime(createdAt)
		t.LastUsedAt = fromNullTime(lastUsed)
		t.RevokedAt = fromNullTime(revokedAt)
		return &t, nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// TouchTokenLastUsed updates last_used_at. Per spec §4.B this is
// best-effort and has no correctness dependency, so callers should invoke
// it in a background goroutine rather than blocking the auth hot path.
func (s *SQLiteStore) TouchTokenLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tokens SET last_used_at = ? WHERE id = ?`, nowMicros(), id)
	return err
}

func (s *SQLiteStore) RevokeToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, nowMicros(), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

func (s *SQLiteStore) ListTokensForUser(ctx context.Context, userID string) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, secret_hash, description, created_at, last_used_at, revoked_at FROM tokens WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var t Token
		var uid sql.NullString
		var createdAt int64
		var lastUsed, revokedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &uid, &t.SecretHash, &t.Description, &createdAt, &lastUsed, &revokedAt); err != nil {
			return nil, err
		}
		t.UserID = fromNullString(uid)
		t.CreatedAt = microsToTime(createdAt)
		t.LastUsedAt = fromNullTime(lastUsed)
		t.RevokedAt = fromNullTime(revokedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasAdminToken reports whether an admin-root token (user_id NULL) has
// already been issued, used to make `admin init` idempotent-refusing per
// spec §6.
func (s *SQLiteStore) HasAdminToken(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE user_id IS NULL`).Scan(&count)
	return count > 0, err
}
