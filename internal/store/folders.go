package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bantamhq/cutman/internal/idtoken"
)

// maxFolderDepth bounds the ancestry walk folder cycle checks perform, per
// spec §9 ("bound the walk by a configured max depth (e.g., 32)").
const maxFolderDepth = 32

func (s *SQLiteStore) CreateFolder(ctx context.Context, namespaceID string, parentID *string, name string) (*Folder, error) {
	id := idtoken.NewID()
	now := nowMicros()

	err := s.withImmediateTx(ctx, func(c *sql.Conn) error {
		if parentID != nil {
			var parentNS string
			if err := c.QueryRowContext(ctx, `SELECT namespace_id FROM folders WHERE id = ?`, *parentID).Scan(&parentNS); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			if parentNS != namespaceID {
				return ErrCrossNamespace
			}
		}

		_, err := c.ExecContext(ctx,
			`INSERT INTO folders (id, namespace_id, parent_id, name, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, namespaceID, toNullString(parentID), name, now)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return ErrNameConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Folder{ID: id, NamespaceID: namespaceID, ParentID: parentID, Name: name, CreatedAt: microsToTime(now)}, nil
}

func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (*Folder, error) {
	return scanFolder(s.db.QueryRowContext(ctx,
		`SELECT id, namespace_id, parent_id, name, created_at FROM folders WHERE id = ?`, id))
}

func scanFolder(row *sql.Row) (*Folder, error) {
	var f Folder
	var parentID sql.NullString
	var createdAt int64
	if err := row.Scan(&f.ID, &f.NamespaceID, &parentID, &f.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.ParentID = fromNullString(parentID)
	f.CreatedAt = microsToTime(createdAt)
	return &f, nil
}

func (s *SQLiteStore) GetFolderByPath(ctx context.Context, namespaceID string, segments []string) (*Folder, error) {
	var parentID *string
	var folder *Folder
	for _, seg := range segments {
		var row *sql.Row
		if parentID == nil {
			row = s.db.QueryRowContext(ctx,
				`SELECT id, namespace_id, parent_id, name, created_at FROM folders WHERE namespace_id = ? AND parent_id IS NULL AND LOWER(name) = LOWER(?)`,
				namespaceID, seg)
		} else {
			row = s.db.QueryRowContext(ctx,
				`SELECT id, namespace_id, parent_id, name, created_at FROM folders WHERE namespace_id = ? AND parent_id = ? AND LOWER(name) = LOWER(?)`,
				namespaceID, *parentID, seg)
		}
		f, err := scanFolder(row)
		if err != nil {
			return nil, err
		}
		folder = f
		parentID = &f.ID
	}
	return folder, nil
}

func (s *SQLiteStore) ListFolders(ctx context.Context, namespaceID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace_id, parent_id, name, created_at FROM folders WHERE namespace_id = ? ORDER BY name ASC`, namespaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		var parentID sql.NullString
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.NamespaceID, &parentID, &f.Name, &createdAt); err != nil {
			return nil, err
		}
		f.ParentID = fromNullString(parentID)
		f.CreatedAt = microsToTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFolderParent reparents folder id onto newParentID, walking the new
// parent's ancestry (bounded at maxFolderDepth) to reject a move that would
// introduce a cycle, per spec §3 invariant 3 and §9's re-architecture note.
func (s *SQLiteStore) SetFolderParent(ctx context.Context, id string, newParentID *string) error {
	return s.withImmediateTx(ctx, func(c *sql.Conn) error {
		folder, err := scanFolder(c.QueryRowContext(ctx,
			`SELECT id, namespace_id, parent_id, name, created_at FROM folders WHERE id = ?`, id))
		if err != nil {
			return err
		}

		if newParentID != nil {
			if *newParentID == id {
				return ErrFolderCycle
			}

			cursor := *newParentID
			for depth := 0; ; depth++ {
				if depth >= maxFolderDepth {
					return ErrFolderCycle
				}

				var parentNS string
				var parentParent sql.NullString
				err := c.QueryRowContext(ctx, `SELECT namespace_id, parent_id FROM folders WHERE id = ?`, cursor).Scan(&parentNS, &parentParent)
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				if err != nil {
					return err
				}
				if parentNS != folder.NamespaceID {
					return ErrCrossNamespace
				}
				if cursor == id {
					return ErrFolderCycle
				}
				if !parentParent.Valid {
					break
				}
				cursor = parentParent.String
			}
		}

		_, err = c.ExecContext(ctx, `UPDATE folders SET parent_id = ? WHERE id = ?`, toNullString(newParentID), id)
		if err != nil && isUniqueConstraintErr(err) {
			return ErrNameConflict
		}
		return err
	})
}

func (s *SQLiteStore) CountFolderRepos(ctx context.Context, folderID string) (int, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM repos WHERE folder_id = ?`, folderID)
}

func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}
