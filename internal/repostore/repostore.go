// Package repostore is the repository store (spec §4.E): the on-disk bare
// repository layout, creation/deletion, and integrity guards. Grounded on
// the teacher's internal/server/git_http.go (initBareRepo, repoDiskUsage,
// path-safety helpers), re-keyed from repo names to repo ids so that paths
// are constructed only from ids and directory traversal is structurally
// impossible, per spec §4.E.
package repostore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
)

// Store manages the on-disk half of a repo's lifetime under dataDir.
type Store struct {
	dataDir string
}

func New(dataDir string) *Store { return &Store{dataDir: dataDir} }

// RepoPath returns the canonical bare-repo path for (namespaceID, repoID).
// Both are opaque ids produced by idtoken.NewID, never user-supplied
// names, so no traversal guard beyond filepath.Join is needed — there is
// no user input in this path at all.
func (s *Store) RepoPath(namespaceID, repoID string) string {
	return filepath.Join(s.dataDir, "repos", namespaceID, repoID+".git")
}

// CreateBareRepo initializes a bare repository at the canonical path for
// (namespaceID, repoID), setting core.sharedRepository=group and disabling
// the hooks directory, per spec §4.E step 2.
func (s *Store) CreateBareRepo(namespaceID, repoID string) error {
	path := s.RepoPath(namespaceID, repoID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create namespace directory: %w", err)
	}

	repo, err := git.PlainInit(path, true)
	if err != nil {
		return fmt.Errorf("init bare repo: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("read repo config: %w", err)
	}
	cfg.Raw.Section("core").SetOption("sharedRepository", "group")
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("write repo config: %w", err)
	}

	// Disable hooks: servers never want client-supplied hook scripts
	// executing on push. The default hooks directory is removed, so git
	// finds no hook scripts to run; an empty disabled-hooks directory is
	// left in the repo instead.
	if err := os.MkdirAll(filepath.Join(path, "disabled-hooks"), 0o755); err != nil {
		return fmt.Errorf("create disabled hooks directory: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(path, "hooks")); err != nil {
		return fmt.Errorf("remove default hooks directory: %w", err)
	}

	return nil
}

// DeleteBareRepo best-effort removes a repo's directory, tolerating an
// already-missing directory, per spec §4.E ("Repo deletion: ... best-effort
// recursive remove of the directory").
func (s *Store) DeleteBareRepo(namespaceID, repoID string) error {
	path := s.RepoPath(namespaceID, repoID)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove repo directory: %w", err)
	}
	return nil
}

// TrashBareRepo moves a repo's directory to the trash/ subtree instead of
// deleting it outright. SweepOrphans uses it to set aside orphan
// directories; repo deletion itself goes through DeleteBareRepo.
func (s *Store) TrashBareRepo(namespaceID, repoID string) error {
	src := s.RepoPath(namespaceID, repoID)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	trashDir := filepath.Join(s.dataDir, "trash")
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return fmt.Errorf("create trash directory: %w", err)
	}

	dest := filepath.Join(trashDir, fmt.Sprintf("%s-%s-%d.git", namespaceID, repoID, time.Now().UnixNano()))
	return os.Rename(src, dest)
}

// DiskUsage returns a cheap on-disk size estimate for the repo, computed
// by walking the directory tree, per spec §4.G ("recompute size_bytes
// (cheap estimate via on-disk walk)").
func (s *Store) DiskUsage(namespaceID, repoID string) (int64, error) {
	var total int64
	path := s.RepoPath(namespaceID, repoID)
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk repo directory: %w", err)
	}
	return total, nil
}

// SweepOrphans scans <data-dir>/repos for directories that don't
// correspond to any known (namespaceID, repoID) pair and moves them to
// trash/. known maps namespaceID to the set of repoIDs that should exist
// under it.
func (s *Store) SweepOrphans(known map[string]map[string]bool) error {
	reposRoot := filepath.Join(s.dataDir, "repos")
	nsEntries, err := os.ReadDir(reposRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read repos directory: %w", err)
	}

	for _, nsEntry := range nsEntries {
		if !nsEntry.IsDir() {
			continue
		}
		nsID := nsEntry.Name()
		repoEntries, err := os.ReadDir(filepath.Join(reposRoot, nsID))
		if err != nil {
			return fmt.Errorf("read namespace directory: %w", err)
		}

		for _, repoEntry := range repoEntries {
			name := repoEntry.Name()
			repoID := name[:len(name)-len(filepath.Ext(name))]
			if known[nsID] != nil && known[nsID][repoID] {
				continue
			}
			if err := s.TrashBareRepo(nsID, repoID); err != nil {
				return fmt.Errorf("trash orphan repo %s/%s: %w", nsID, repoID, err)
			}
		}
	}
	return nil
}
