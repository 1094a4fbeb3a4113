package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bantamhq/cutman/internal/idtoken"
)

func (s *SQLiteStore) CreateTag(ctx context.Context, namespaceID, name, color string) (*Tag, error) {
	id := idtoken.NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, namespace_id, name, color) VALUES (?, ?, ?, ?)`, id, namespaceID, name, color)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrNameConflict
		}
		return nil, err
	}
	return &Tag{ID: id, NamespaceID: namespaceID, Name: name, Color: color}, nil
}

func (s *SQLiteStore) GetTag(ctx context.Context, id string) (*Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, namespace_id, name, color FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.NamespaceID, &t.Name, &t.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) ListTags(ctx context.Context, namespaceID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, namespace_id, name, color FROM tags WHERE namespace_id = ? ORDER BY name ASC`, namespaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.NamespaceID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

// AttachTag links a repo and a tag, requiring both to share a namespace
// per spec §3 invariant 5.
func (s *SQLiteStore) AttachTag(ctx context.Context, repoID, tagID string) error {
	return s.withImmediateTx(ctx, func(c *sql.Conn) error {
		var repoNS, tagNS string
		if err := c.QueryRowContext(ctx, `SELECT namespace_id FROM repos WHERE id = ?`, repoID).Scan(&repoNS); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := c.QueryRowContext(ctx, `SELECT namespace_id FROM tags WHERE id = ?`, tagID).Scan(&tagNS); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if repoNS != tagNS {
			return ErrCrossNamespace
		}

		_, err := c.ExecContext(ctx, `INSERT OR IGNORE INTO repo_tags (repo_id, tag_id) VALUES (?, ?)`, repoID, tagID)
		return err
	})
}

func (s *SQLiteStore) DetachTag(ctx context.Context, repoID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repo_tags WHERE repo_id = ? AND tag_id = ?`, repoID, tagID)
	return err
}

func (s *SQLiteStore) ListRepoTags(ctx context.Context, repoID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.namespace_id, t.name, t.color
		FROM tags t JOIN repo_tags rt ON rt.tag_id = t.id
		WHERE rt.repo_id = ? ORDER BY t.name ASC`, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.NamespaceID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
