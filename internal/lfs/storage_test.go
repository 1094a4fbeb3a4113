package lfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir())

	content := []byte("hello, lfs")
	sum := sha256.Sum256(content)
	oid := hex.EncodeToString(sum[:])

	require.NoError(t, s.Put(ctx, "ns1", oid, bytes.NewReader(content), int64(len(content))))

	rc, size, err := s.Get(ctx, "ns1", oid)
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, int64(len(content)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir())

	content := []byte("hello, lfs")
	wrongOID := hex.EncodeToString(sha256.New().Sum(nil))

	err := s.Put(ctx, "ns1", wrongOID, bytes.NewReader(content), int64(len(content)))
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestGetMissingObject(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir())

	_, _, err := s.Get(ctx, "ns1", "aa"+hexZeros(62))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func hexZeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
