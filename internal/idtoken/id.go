// Package idtoken generates opaque entity ids and bearer token secrets, and
// hashes/verifies token secrets with argon2id. It is the spec's identity and
// token component (§4.B), carved out of the teacher's internal/core package
// because that package also held TUI live-input validation that has no home
// in a server-only build.
package idtoken

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// idEncoding renders opaque ids in a URL-safe base32 form (RFC4648,
// lowercase, no padding) rather than raw UUID dashes, per spec §4.A
// ("Ids are opaque 128-bit values rendered in a URL-safe base form").
var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a new opaque 128-bit id, encoded as lowercase base32.
func NewID() string {
	u := uuid.New()
	return strings.ToLower(idEncoding.EncodeToString(u[:]))
}

// secretBytes is 192 bits per spec §4.B.
const secretBytes = 192 / 8

// tokenEncoding renders the random secret body; RFC4648 base32, lowercased,
// keeps tokens shell- and URL-safe without introducing punctuation.
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const tokenPrefix = "ct_"

// GenerateSecret returns a fresh 192-bit cryptographically random token
// secret, already formatted with the ct_ prefix clients present on the
// wire (spec §4.B).
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}

// HasTokenPrefix reports whether s looks like a cutman token, as opposed to
// some other credential format a Basic-auth header might carry.
func HasTokenPrefix(s string) bool {
	return strings.HasPrefix(s, tokenPrefix)
}
