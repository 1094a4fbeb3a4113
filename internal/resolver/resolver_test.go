package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeSegment(t *testing.T) {
	seg, err := CanonicalizeSegment("My-Repo_1")
	assert.NoError(t, err)
	assert.Equal(t, "my-repo_1", seg)
}

func TestCanonicalizeSegmentRejectsTraversal(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "../etc", "Has Space", strOfLen(64)} {
		_, err := CanonicalizeSegment(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func strOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestCanonicalizePath(t *testing.T) {
	segs, err := CanonicalizePath("Projects/Web/Frontend")
	assert.NoError(t, err)
	assert.Equal(t, []string{"projects", "web", "frontend"}, segs)
}
