package perm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantamhq/cutman/internal/store"
)

type fakeStore struct {
	nsGrants   map[string]store.ScopeSet
	repoGrants map[string]store.ScopeSet
}

func (f *fakeStore) GetNamespaceGrant(_ context.Context, userID, namespaceID string) (*store.NamespaceGrant, error) {
	ss, ok := f.nsGrants[userID+"/"+namespaceID]
	if !ok {
		return nil, nil
	}
	return &store.NamespaceGrant{UserID: userID, NamespaceID: namespaceID, Scopes: ss}, nil
}

func (f *fakeStore) GetRepoGrant(_ context.Context, userID, repoID string) (*store.RepoGrant, error) {
	ss, ok := f.repoGrants[userID+"/"+repoID]
	if !ok {
		return nil, nil
	}
	return &store.RepoGrant{UserID: userID, RepoID: repoID, Scopes: ss}, nil
}

func TestAdminAlwaysAllowed(t *testing.T) {
	c := NewChecker(&fakeStore{})
	ok, err := c.Allow(context.Background(), Principal{IsAdmin: true}, Target{RepoID: "r1"}, store.ScopeRepoAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOwnerImpliesAll(t *testing.T) {
	c := NewChecker(&fakeStore{})
	target := Target{RepoID: "r1", RepoNamespaceID: "ns1", NamespaceOwnerID: "u1"}
	ok, err := c.Allow(context.Background(), Principal{UserID: "u1"}, target, store.ScopeRepoAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepoReadOnlyGrantDeniesWrite(t *testing.T) {
	fs := &fakeStore{repoGrants: map[string]store.ScopeSet{
		"u1/r1": store.NewScopeSet(store.ScopeRepoRead),
	}}
	c := NewChecker(fs)

	ok, err := c.Allow(context.Background(), Principal{UserID: "u1"}, Target{RepoID: "r1"}, store.ScopeRepoRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Allow(context.Background(), Principal{UserID: "u1"}, Target{RepoID: "r1"}, store.ScopeRepoWrite)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaceGrantAppliesToRepoUnderIt(t *testing.T) {
	fs := &fakeStore{nsGrants: map[string]store.ScopeSet{
		"u1/ns1": store.NewScopeSet(store.ScopeRepoRead, store.ScopeRepoWrite),
	}}
	c := NewChecker(fs)

	ok, err := c.Allow(context.Background(), Principal{UserID: "u1"}, Target{RepoID: "r1", RepoNamespaceID: "ns1"}, store.ScopeRepoWrite)
	require.NoError(t, err)
	assert.True(t, ok)
}
