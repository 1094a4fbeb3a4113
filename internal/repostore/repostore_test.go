package repostore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndDeleteBareRepo(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.CreateBareRepo("ns1", "repo1"))

	path := s.RepoPath("ns1", "repo1")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(path + "/hooks")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.DeleteBareRepo("ns1", "repo1"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteBareRepoToleratesMissing(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.DeleteBareRepo("nope", "nope"))
}
