// Package store is the persistence layer (spec §4.A): SQLite schema,
// prepared statements, transactions, and migrations for every entity in
// the data model.
package store

import (
	"encoding/json"
	"time"
)

// NamespaceKind distinguishes a user's personal namespace from a shared one.
type NamespaceKind string

const (
	NamespacePersonal NamespaceKind = "personal"
	NamespaceShared   NamespaceKind = "shared"
)

type User struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	PrimaryNamespaceID string    `json:"primary_namespace_id"`
	IsAdmin            bool      `json:"is_admin"`
}

type Namespace struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Kind        NamespaceKind `json:"kind"`
	OwnerUserID *string       `json:"owner_user_id,omitempty"` // nullable: null iff shared
	RepoLimit   *int          `json:"repo_limit,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type Token struct {
	ID          string     `json:"id"`
	UserID      *string    `json:"user_id,omitempty"` // nullable: null = admin-root token
	SecretHash  string     `json:"-"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func (t *Token) IsRevoked() bool { return t.RevokedAt != nil }
func (t *Token) IsAdminToken() bool { return t.UserID == nil }

type Repo struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FolderID    *string   `json:"folder_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	SizeBytes   int64     `json:"size_bytes"`
}

type Folder struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Tag struct {
	ID          string `json:"id"`
	NamespaceID string `json:"namespace_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
}

type RepoTag struct {
	RepoID string `json:"repo_id"`
	TagID  string `json:"tag_id"`
}

// Scope is one member of the spec's closed scope alphabet.
type Scope string

const (
	ScopeNamespaceRead  Scope = "namespace:read"
	ScopeNamespaceWrite Scope = "namespace:write"
	ScopeRepoRead       Scope = "repo:read"
	ScopeRepoWrite      Scope = "repo:write"
	ScopeRepoAdmin      Scope = "repo:admin"
)

// AllScopes is the closed alphabet, also the set implied by namespace
// ownership per spec §3.
var AllScopes = []Scope{ScopeNamespaceRead, ScopeNamespaceWrite, ScopeRepoRead, ScopeRepoWrite, ScopeRepoAdmin}

func IsValidScope(s string) bool {
	for _, v := range AllScopes {
		if string(v) == s {
			return true
		}
	}
	return false
}

type ScopeSet map[Scope]bool

func NewScopeSet(scopes ...Scope) ScopeSet {
	ss := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		ss[s] = true
	}
	return ss
}

func (ss ScopeSet) Has(s Scope) bool { return ss[s] }

// HasAll reports whether every scope in required is present in ss.
func (ss ScopeSet) HasAll(required ...Scope) bool {
	for _, s := range required {
		if !ss[s] {
			return false
		}
	}
	return true
}

func (ss ScopeSet) Strings() []string {
	out := make([]string, 0, len(ss))
	for s := range ss {
		out = append(out, string(s))
	}
	return out
}

// MarshalJSON renders a ScopeSet as a JSON array of scope strings rather
// than its underlying map representation.
func (ss ScopeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ss.Strings())
}

func (ss *ScopeSet) UnmarshalJSON(data []byte) error {
	var scopes []string
	if err := json.Unmarshal(data, &scopes); err != nil {
		return err
	}
	out := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		out[Scope(s)] = true
	}
	*ss = out
	return nil
}

type NamespaceGrant struct {
	UserID      string    `json:"user_id"`
	NamespaceID string    `json:"namespace_id"`
	Scopes      ScopeSet  `json:"scopes"`
	GrantedAt   time.Time `json:"granted_at"`
}

type RepoGrant struct {
	UserID    string    `json:"user_id"`
	RepoID    string    `json:"repo_id"`
	Scopes    ScopeSet  `json:"scopes"`
	GrantedAt time.Time `json:"granted_at"`
}
