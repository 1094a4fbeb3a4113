package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bantamhq/cutman/internal/idtoken"
)

// CreateRepo inserts a repo row, enforcing the (namespace, name) uniqueness
// and repo_limit invariants (spec §3 invariants 4, 6) inside the same
// transaction the on-disk bare repo creation wraps (spec §4.E step 1).
func (s *SQLiteStore) CreateRepo(ctx context.Context, namespaceID, name, description string, folderID *string) (*Repo, error) {
	id := idtoken.NewID()
	now := nowMicros()

	err := s.withImmediateTx(ctx, func(c *sql.Conn) error {
		ns, err := scanNamespace(c.QueryRowContext(ctx,
			`SELECT id, name, kind, owner_user_id, repo_limit, created_at FROM namespaces WHERE id = ?`, namespaceID))
		if err != nil {
			return err
		}

		if ns.RepoLimit != nil {
			var count int
			if err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM repos WHERE namespace_id = ?`, namespaceID).Scan(&count); err != nil {
				return err
			}
			if count >= *ns.RepoLimit {
				return ErrRepoLimitExceeded
			}
		}

		if folderID != nil {
			var folderNS string
			if err := c.QueryRowContext(ctx, `SELECT namespace_id FROM folders WHERE id = ?`, *folderID).Scan(&folderNS); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			if folderNS != namespaceID {
				return ErrCrossNamespace
			}
		}

		_, err = c.ExecContext(ctx,
			`INSERT INTO repos (id, namespace_id, name, description, folder_id, created_at, updated_at, size_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
			id, namespaceID, name, description, toNullString(folderID), now, now)
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

	return &Repo{
		ID: id, NamespaceID: namespaceID, Name: name, Description: description, FolderID: folderID,
		CreatedAt: microsToTime(now), UpdatedAt: microsToTime(now),
	}, nil
}

func (s *SQLiteStore) GetRepo(ctx context.Context, id string) (*Repo, error) {
	return scanRepo(s.db.QueryRowContext(ctx,
		`SELECT id, namespace_id, name, description, folder_id, created_at, updated_at, size_bytes FROM repos WHERE id = ?`, id))
}

func (s *SQLiteStore) GetRepoByName(ctx context.Context, namespaceID, name string) (*Repo, error) {
	return scanRepo(s.db.QueryRowContext(ctx,
		`SELECT id, namespace_id, name, description, folder_id, created_at, updated_at, size_bytes
		 FROM repos WHERE namespace_id = ? AND LOWER(name) = LOWER(?)`, namespaceID, name))
}

func scanRepo(row *sql.Row) (*Repo, error) {
	var r Repo
	var folderID sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&r.ID, &r.NamespaceID, &r.Name, &r.Description, &folderID, &createdAt, &updatedAt, &r.SizeBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.FolderID = fromNullString(folderID)
	r.CreatedAt = microsToTime(createdAt)
	r.UpdatedAt = microsToTime(updatedAt)
	return &r, nil
}

func (s *SQLiteStore) ListReposInNamespace(ctx context.Context, namespaceID string, page, perPage int) ([]Repo, int, error) {
	total, err := s.countRows(ctx, `SELECT COUNT(*) FROM repos WHERE namespace_id = ?`, namespaceID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace_id, name, description, folder_id, created_at, updated_at, size_bytes
		 FROM repos WHERE namespace_id = ? ORDER BY name ASC LIMIT ? OFFSET ?`,
		namespaceID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanRepoRows(rows)
	return out, total, err
}

func scanRepoRows(rows *sql.Rows) ([]Repo, error) {
	var out []Repo
	for rows.Next() {
		var r Repo
		var folderID sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.NamespaceID, &r.Name, &r.Description, &folderID, &createdAt, &updatedAt, &r.SizeBytes); err != nil {
			return nil, err
		}
		r.FolderID = fromNullString(folderID)
		r.CreatedAt = microsToTime(createdAt)
		r.UpdatedAt = microsToTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

type RepoUpdate struct {
	Name        *string
	Description *string
	FolderID    **string // double pointer: nil = leave unchanged, non-nil pointing at nil = clear
}

// UpdateRepo applies upd to the repo identified by id. A non-nil, non-nil-
// pointing FolderID is re-validated against the repo's own namespace
// inside the same transaction as CreateRepo does, per spec §3 invariant 4:
// a repo may only live in a folder of its own namespace.
func (s *SQLiteStore) UpdateRepo(ctx context.Context, id string, upd RepoUpdate) (*Repo, error) {
	var repo *Repo

	err := s.withImmediateTx(ctx, func(c *sql.Conn) error {
		var err error
		repo, err = scanRepo(c.QueryRowContext(ctx,
			`SELECT id, namespace_id, name, description, folder_id, created_at, updated_at, size_bytes FROM repos WHERE id = ?`, id))
		if err != nil {
			return err
		}

		if upd.Name != nil {
			repo.Name = *upd.Name
		}
		if upd.Description != nil {
			repo.Description = *upd.Description
		}
		if upd.FolderID != nil {
			if *upd.FolderID != nil {
				var folderNS string
				if err := c.QueryRowContext(ctx, `SELECT namespace_id FROM folders WHERE id = ?`, **upd.FolderID).Scan(&folderNS); err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return ErrNotFound
					}
					return err
				}
				if folderNS != repo.NamespaceID {
					return ErrCrossNamespace
				}
			}
			repo.FolderID = *upd.FolderID
		}

		now := nowMicros()
		_, err = c.ExecContext(ctx,
			`UPDATE repos SET name = ?, description = ?, folder_id = ?, updated_at = ? WHERE id = ?`,
			repo.Name, repo.Description, toNullString(repo.FolderID), now, id)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return ErrNameConflict
			}
			return err
		}
		repo.UpdatedAt = microsToTime(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// TouchRepoAfterPush updates updated_at and size_bytes following a
// successful receive-pack, per spec §4.G.
func (s *SQLiteStore) TouchRepoAfterPush(ctx context.Context, id string, sizeBytes int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE repos SET updated_at = ?, size_bytes = ? WHERE id = ?`, nowMicros(), sizeBytes, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

func (s *SQLiteStore) DeleteRepo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, ErrNotFound)
}

// ListAllUserAccessibleRepos returns every repo the user can see, via
// ownership, namespace grant, or repo grant, grounded on the teacher's
// bitwise UNION query in sqlite.go.
func (s *SQLiteStore) ListAllUserAccessibleRepos(ctx context.Context, userID string) ([]Repo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.namespace_id, r.name, r.description, r.folder_id, r.created_at, r.updated_at, r.size_bytes
		FROM repos r
		JOIN namespaces n ON n.id = r.namespace_id
		LEFT JOIN namespace_grants ng ON ng.namespace_id = r.namespace_id AND ng.user_id = ?
		LEFT JOIN repo_grants rg ON rg.repo_id = r.id AND rg.user_id = ?
		WHERE n.owner_user_id = ? OR ng.user_id IS NOT NULL OR rg.user_id IS NOT NULL
		ORDER BY r.name ASC`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRepoRows(rows)
}
