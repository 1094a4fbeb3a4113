package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

func encodeScopes(ss ScopeSet) string {
	return strings.Join(ss.Strings(), ",")
}

func decodeScopes(s string) ScopeSet {
	ss := ScopeSet{}
	if s == "" {
		return ss
	}
	for _, part := range strings.Split(s, ",") {
		ss[Scope(part)] = true
	}
	return ss
}

// UpsertNamespaceGrant creates or replaces user's scope set on a namespace.
func (s *SQLiteStore) UpsertNamespaceGrant(ctx context.Context, userID, namespaceID string, scopes ScopeSet) (*NamespaceGrant, error) {
	now := nowMicros()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO namespace_grants (user_id, namespace_id, scopes, granted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, namespace_id) DO UPDATE SET scopes = excluded.scopes, granted_at = excluded.granted_at`,
		userID, namespaceID, encodeScopes(scopes), now)
	if err != nil {
		return nil, err
	}
	return &NamespaceGrant{UserID: userID, NamespaceID: namespaceID, Scopes: scopes, GrantedAt: microsToTime(now)}, nil
}

func (s *SQLiteStore) GetNamespaceGrant(ctx context.Context, userID, namespaceID string) (*NamespaceGrant, error) {
	var scopes string
	var grantedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT scopes, granted_at FROM namespace_grants WHERE user_id = ? AND namespace_id = ?`, userID, namespaceID).
		Scan(&scopes, &grantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &NamespaceGrant{UserID: userID, NamespaceID: namespaceID, Scopes: decodeScopes(scopes), GrantedAt: microsToTime(grantedAt)}, nil
}

func (s *SQLiteStore) DeleteNamespaceGrant(ctx context.Context, userID, namespaceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM namespace_grants WHERE user_id = ? AND namespace_id = ?`, userID, namespaceID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

// UpsertRepoGrant creates or replaces user's scope set on a specific repo.
func (s *SQLiteStore) UpsertRepoGrant(ctx context.Context, userID, repoID string, scopes ScopeSet) (*RepoGrant, error) {
	now := nowMicros()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_grants (user_id, repo_id, scopes, granted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, repo_id) DO UPDATE SET scopes = excluded.scopes, granted_at = excluded.granted_at`,
		userID, repoID, encodeScopes(scopes), now)
	if err != nil {
		return nil, err
	}
	return &RepoGrant{UserID: userID, RepoID: repoID, Scopes: scopes, GrantedAt: microsToTime(now)}, nil
}

func (s *SQLiteStore) GetRepoGrant(ctx context.Context, userID, repoID string) (*RepoGrant, error) {
	var scopes string
	var grantedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT scopes, granted_at FROM repo_grants WHERE user_id = ? AND repo_id = ?`, userID, repoID).
		Scan(&scopes, &grantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &RepoGrant{UserID: userID, RepoID: repoID, Scopes: decodeScopes(scopes), GrantedAt: microsToTime(grantedAt)}, nil
}

func (s *SQLiteStore) DeleteRepoGrant(ctx context.Context, userID, repoID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repo_grants WHERE user_id = ? AND repo_id = ?`, userID, repoID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}
