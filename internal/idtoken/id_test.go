package idtoken

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestGenerateSecretHasPrefix(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	assert.True(t, HasTokenPrefix(secret))
	assert.Greater(t, len(secret), len(tokenPrefix))
}

func TestHashAndVerifySecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	hash, err := HashSecret(secret)
	require.NoError(t, err)

	ok, err := VerifySecret(secret, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySecret("ct_wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}
