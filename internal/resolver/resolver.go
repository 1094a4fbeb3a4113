// Package resolver implements the resource resolver (spec §4.D): turning
// path segments (opaque ids or human names) into entity ids, and
// canonicalizing folder paths. Grounded on the teacher's
// internal/server/validation.go (SafeRepoPath/ValidateName) and
// internal/server/access.go (lookup-then-check pattern), generalized to
// accept ids-or-names and to NFC-normalize per spec.
package resolver

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// slugPattern is the grammar spec §4.D mandates for folder/namespace/repo
// name segments.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ErrInvalidSlug is returned by CanonicalizeSegment/CanonicalizePath when a
// segment fails the slug grammar.
var ErrInvalidSlug = &slugError{}

type slugError struct{}

func (*slugError) Error() string { return "resolver: invalid slug" }

// CanonicalizeSegment normalizes a single path segment per spec §4.D:
// NFC-normalize, lowercase, then validate against the slug grammar,
// rejecting empty, ".", "..", and anything that doesn't match
// [a-z0-9][a-z0-9_-]{0,62}.
func CanonicalizeSegment(raw string) (string, error) {
	normalized := norm.NFC.String(raw)
	lowered := strings.ToLower(normalized)

	if lowered == "" || lowered == "." || lowered == ".." {
		return "", ErrInvalidSlug
	}
	if strings.ContainsRune(lowered, 0) {
		return "", ErrInvalidSlug
	}
	if !slugPattern.MatchString(lowered) {
		return "", ErrInvalidSlug
	}
	return lowered, nil
}

// CanonicalizePath splits a slash-separated folder path and canonicalizes
// each segment, rejecting the whole path if any segment is invalid.
func CanonicalizePath(raw string) ([]string, error) {
	normalized := norm.NFC.String(raw)
	parts := strings.Split(normalized, "/")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		seg, err := CanonicalizeSegment(p)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

// LooksLikeOpaqueID is a best-effort heuristic distinguishing an id from a
// human name in a path segment: ids are the fixed-length lowercase base32
// rendering idtoken.NewID produces (26 characters for a 128-bit value),
// names must additionally satisfy the slug grammar, which permits
// characters ('_', '-') not all present in a valid id, so this check alone
// is not authoritative — callers that need a deterministic answer should
// try an id lookup first and fall back to a name lookup on NotFound, which
// is what the REST handlers do.
func LooksLikeOpaqueID(segment string) bool {
	if len(segment) != 26 {
		return false
	}
	for _, r := range segment {
		if !((r >= 'a' && r <= 'z') || (r >= '2' && r <= '7')) {
			return false
		}
	}
	return true
}
