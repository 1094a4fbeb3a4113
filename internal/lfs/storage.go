// Package lfs implements Git-LFS content-addressed object storage (spec
// §4.G), adapted from the teacher's internal/lfs/local_storage.go:
// namespace-scoped instead of repo-scoped (LFS objects are deduplicated at
// the namespace level per spec's `<data-dir>/lfs/<ns-id>/...` layout),
// otherwise the same temp-file-then-rename, hash-verifying design.
package lfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var oidPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

type Storage struct {
	basePath string
}

func NewStorage(basePath string) *Storage {
	return &Storage{basePath: basePath}
}

// objectPath uses a 2-level directory prefix to avoid filesystem
// performance issues with large directories, per spec §4.G.
func (s *Storage) objectPath(namespaceID, oid string) string {
	return filepath.Join(s.basePath, namespaceID, oid[:2], oid[2:4], oid)
}

func (s *Storage) tmpPath(namespaceID string) string {
	return filepath.Join(s.basePath, namespaceID, "tmp")
}

func ValidateOID(oid string) error {
	if !oidPattern.MatchString(oid) {
		return ErrInvalidOID
	}
	return nil
}

func (s *Storage) Exists(ctx context.Context, namespaceID, oid string) (bool, error) {
	if err := ValidateOID(oid); err != nil {
		return false, err
	}

	_, err := os.Stat(s.objectPath(namespaceID, oid))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func (s *Storage) Get(ctx context.Context, namespaceID, oid string) (io.ReadCloser, int64, error) {
	if err := ValidateOID(oid); err != nil {
		return nil, 0, err
	}

	path := s.objectPath(namespaceID, oid)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, ErrObjectNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open object: %w", err)
	}

	return file, info.Size(), nil
}

// Put verifies the SHA-256 hash matches the OID and the byte count matches
// size before committing to storage, per spec §4.G and invariant R3.
// Concurrent uploads of the same oid race to distinct temp files and
// rename; because content is identical by oid, last-write-wins is safe
// (spec §5).
func (s *Storage) Put(ctx context.Context, namespaceID, oid string, content io.Reader, size int64) error {
	if err := ValidateOID(oid); err != nil {
		return err
	}

	tmpDir := s.tmpPath(namespaceID)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create tmp directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	writer := io.MultiWriter(tmpFile, hasher)

	written, err := io.Copy(writer, content)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d, got %d", size, written)
	}

	computedHash := hex.EncodeToString(hasher.Sum(nil))
	if computedHash != oid {
		return ErrHashMismatch
	}

	finalPath := s.objectPath(namespaceID, oid)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("move to final path: %w", err)
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, namespaceID, oid string) error {
	if err := ValidateOID(oid); err != nil {
		return err
	}

	if err := os.Remove(s.objectPath(namespaceID, oid)); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *Storage) Size(ctx context.Context, namespaceID, oid string) (int64, error) {
	if err := ValidateOID(oid); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.objectPath(namespaceID, oid))
	if os.IsNotExist(err) {
		return 0, ErrObjectNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size(), nil
}
