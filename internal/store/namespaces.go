package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bantamhq/cutman/internal/idtoken"
)

// CreateSharedNamespace creates a shared (ownerless) namespace, per spec
// §3: "owner_user_id [nullable: null iff shared]".
func (s *SQLiteStore) CreateSharedNamespace(ctx context.Context, name string, repoLimit *int) (*Namespace, error) {
	id := idtoken.NewID()
	now := nowMicros()

	var limit sql.NullInt64
	if repoLimit != nil {
		limit = sql.NullInt64{Int64: int64(*repoLimit), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO namespaces (id, name, kind, owner_user_id, repo_limit, created_at) VALUES (?, ?, ?, NULL, ?, ?)`,
		id, name, string(NamespaceShared), limit, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrNameConflict
		}
		return nil, err
	}

	return &Namespace{ID: id, Name: name, Kind: NamespaceShared, RepoLimit: repoLimit, CreatedAt: microsToTime(now)}, nil
}

func (s *SQLiteStore) GetNamespace(ctx context.Context, id string) (*Namespace, error) {
	return scanNamespace(s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, owner_user_id, repo_limit, created_at FROM namespaces WHERE id = ?`, id))
}

func (s *SQLiteStore) GetNamespaceByName(ctx context.Context, name string) (*Namespace, error) {
	return scanNamespace(s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, owner_user_id, repo_limit, created_at FROM namespaces WHERE LOWER(name) = LOWER(?)`, name))
}

func scanNamespace(row *sql.Row) (*Namespace, error) {
	var n Namespace
	var ownerID sql.NullString
	var repoLimit sql.NullInt64
	var createdAt int64
	var kind string
	if err := row.Scan(&n.ID, &n.Name, &kind, &ownerID, &repoLimit, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.Kind = NamespaceKind(kind)
	n.OwnerUserID = fromNullString(ownerID)
	if repoLimit.Valid {
		v := int(repoLimit.Int64)
		n.RepoLimit = &v
	}
	n.CreatedAt = microsToTime(createdAt)
	return &n, nil
}

// DeleteNamespace deletes a namespace; cascades remove its repos, folders,
// tags, and grants per spec invariant 2. Deleting a personal namespace
// directly (rather than via DeleteUser) is permitted at the store layer;
// the REST dispatcher decides whether to expose that operation.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

func (s *SQLiteStore) ListNamespaces(ctx context.Context, page, perPage int) ([]Namespace, int, error) {
	total, err := s.countRows(ctx, `SELECT COUNT(*) FROM namespaces`)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, owner_user_id, repo_limit, created_at FROM namespaces ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Namespace
	for rows.Next() {
		var n Namespace
		var ownerID sql.NullString
		var repoLimit sql.NullInt64
		var createdAt int64
		var kind string
		if err := rows.Scan(&n.ID, &n.Name, &kind, &ownerID, &repoLimit, &createdAt); err != nil {
			return nil, 0, err
		}
		n.Kind = NamespaceKind(kind)
		n.OwnerUserID = fromNullString(ownerID)
		if repoLimit.Valid {
			v := int(repoLimit.Int64)
			n.RepoLimit = &v
		}
		n.CreatedAt = microsToTime(createdAt)
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) countRows(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
