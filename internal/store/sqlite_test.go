package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cutman.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserCreatesPersonalNamespace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, ns, err := s.CreateUser(ctx, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, user.PrimaryNamespaceID, ns.ID)
	assert.Equal(t, NamespacePersonal, ns.Kind)
	assert.Equal(t, user.ID, *ns.OwnerUserID)
}

func TestNamespaceNameUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.CreateUser(ctx, "alice", false)
	require.NoError(t, err)

	_, err = s.CreateSharedNamespace(ctx, "Alice", nil)
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestDeleteUserCascadesNamespace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, ns, err := s.CreateUser(ctx, "alice", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	_, err = s.GetNamespace(ctx, ns.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoLimitEnforced(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	limit := 1
	ns, err := s.CreateSharedNamespace(ctx, "team", &limit)
	require.NoError(t, err)

	_, err = s.CreateRepo(ctx, ns.ID, "first", "", nil)
	require.NoError(t, err)

	_, err = s.CreateRepo(ctx, ns.ID, "second", "", nil)
	assert.ErrorIs(t, err, ErrRepoLimitExceeded)
}

func TestFolderCycleRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ns, err := s.CreateSharedNamespace(ctx, "team", nil)
	require.NoError(t, err)

	root, err := s.CreateFolder(ctx, ns.ID, nil, "projects")
	require.NoError(t, err)

	child, err := s.CreateFolder(ctx, ns.ID, &root.ID, "web")
	require.NoError(t, err)

	err = s.SetFolderParent(ctx, root.ID, &child.ID)
	assert.ErrorIs(t, err, ErrFolderCycle)

	err = s.SetFolderParent(ctx, child.ID, &child.ID)
	assert.ErrorIs(t, err, ErrFolderCycle)
}

func TestRepoFolderMustShareNamespace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	nsA, err := s.CreateSharedNamespace(ctx, "team-a", nil)
	require.NoError(t, err)
	nsB, err := s.CreateSharedNamespace(ctx, "team-b", nil)
	require.NoError(t, err)

	folder, err := s.CreateFolder(ctx, nsB.ID, nil, "stuff")
	require.NoError(t, err)

	_, err = s.CreateRepo(ctx, nsA.ID, "repo", "", &folder.ID)
	assert.ErrorIs(t, err, ErrCrossNamespace)
}

func TestTagMustShareNamespaceWithRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	nsA, err := s.CreateSharedNamespace(ctx, "team-a", nil)
	require.NoError(t, err)
	nsB, err := s.CreateSharedNamespace(ctx, "team-b", nil)
	require.NoError(t, err)

	repo, err := s.CreateRepo(ctx, nsA.ID, "repo", "", nil)
	require.NoError(t, err)
	tag, err := s.CreateTag(ctx, nsB.ID, "urgent", "#ff0000")
	require.NoError(t, err)

	err = s.AttachTag(ctx, repo.ID, tag.ID)
	assert.ErrorIs(t, err, ErrCrossNamespace)
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, _, err := s.CreateUser(ctx, "alice", false)
	require.NoError(t, err)

	token, secret, err := s.CreateToken(ctx, &user.ID, "cli")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	found, err := s.AuthenticateToken(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, token.ID, found.ID)

	require.NoError(t, s.RevokeToken(ctx, token.ID))

	_, err = s.AuthenticateToken(ctx, secret)
	assert.ErrorIs(t, err, ErrNotFound)
}
