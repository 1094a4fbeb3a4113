package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bantamhq/cutman/internal/idtoken"
)

// CreateUser creates a user together with its personal namespace in a
// single transaction, per spec §3 ("the personal namespace is created in
// the same transaction as the user").
func (s *SQLiteStore) CreateUser(ctx context.Context, username string, isAdmin bool) (*User, *Namespace, error) {
	userID := idtoken.NewID()
	nsID := idtoken.NewID()
	now := nowMicros()

	err := s.withImmediateTx(ctx, func(c *sql.Conn) error {
		if _, err := c.ExecContext(ctx,
			`INSERT INTO users (id, created_at, primary_namespace_id, is_admin) VALUES (?, ?, ?, ?)`,
			userID, now, nsID, boolToInt(isAdmin)); err != nil {
			return err
		}

		_, err := c.ExecContext(ctx,
			`INSERT INTO namespaces (id, name, kind, owner_user_id, repo_limit, created_at) VALUES (?, ?, ?, ?, NULL, ?)`,
			nsID, username, string(NamespacePersonal), userID, now)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return ErrNameConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &User{ID: userID, CreatedAt: microsToTime(now), PrimaryNamespaceID: nsID, IsAdmin: isAdmin},
		&Namespace{ID: nsID, Name: username, Kind: NamespacePersonal, OwnerUserID: &userID, CreatedAt: microsToTime(now)},
		nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, primary_namespace_id, is_admin FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.created_at, u.primary_namespace_id, u.is_admin
		FROM users u
		JOIN namespaces n ON n.id = u.primary_namespace_id
		WHERE LOWER(n.name) = LOWER(?) AND n.kind = 'personal'`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	var isAdmin int
	if err := row.Scan(&u.ID, &createdAt, &u.PrimaryNamespaceID, &isAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = microsToTime(createdAt)
	u.IsAdmin = isAdmin != 0
	return &u, nil
}

// DeleteUser deletes a user. Foreign-key cascades (ON DELETE CASCADE on
// namespaces.owner_user_id and everything chained below it) remove the
// personal namespace and everything in it per spec invariant 2.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, fmt.Errorf("delete user: %w", ErrNotFound))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowsAffected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
