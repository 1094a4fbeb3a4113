// Package perm implements the permission engine (spec §4.C): evaluating a
// required scope set against a principal's effective scopes on a target
// namespace or repo. Grounded on the teacher's internal/store/permissions.go
// bitmask Permission type, narrowed to the spec's closed five-scope
// alphabet and restructured around the spec's explicit evaluation order.
package perm

import (
	"context"

	"github.com/bantamhq/cutman/internal/store"
)

// Principal is the authenticated caller a request acts as. IsAdmin is true
// for the admin-root token or any user row with is_admin set; per spec
// §4.C step 1 an admin principal is allowed unconditionally.
type Principal struct {
	UserID  string // empty for the admin-root token
	IsAdmin bool
}

// Target identifies what a request is evaluated against. RepoID and
// RepoNamespaceID are set together when the target is a repo, so that
// namespace-level grants on the repo's namespace still apply.
type Target struct {
	NamespaceID      string
	RepoID           string
	RepoNamespaceID  string
	NamespaceOwnerID string // owner_user_id of the relevant namespace, "" if shared
}

// Store is the subset of the persistence layer the checker needs, kept as
// an interface so tests can supply a fake without touching SQLite.
type Store interface {
	GetNamespaceGrant(ctx context.Context, userID, namespaceID string) (*store.NamespaceGrant, error)
	GetRepoGrant(ctx context.Context, userID, repoID string) (*store.RepoGrant, error)
}

// Checker evaluates scope requirements against the store's grant tables.
type Checker struct {
	store Store
}

func NewChecker(s Store) *Checker { return &Checker{store: s} }

// EffectiveScopes computes the union of scopes a principal holds against a
// target, per spec §4.C step 2: ownership-implies-all, then namespace
// grant, then repo grant.
func (c *Checker) EffectiveScopes(ctx context.Context, p Principal, t Target) (store.ScopeSet, error) {
	if p.IsAdmin {
		return store.NewScopeSet(store.AllScopes...), nil
	}

	if t.NamespaceOwnerID != "" && t.NamespaceOwnerID == p.UserID {
		return store.NewScopeSet(store.AllScopes...), nil
	}

	effective := store.ScopeSet{}

	nsID := t.NamespaceID
	if nsID == "" {
		nsID = t.RepoNamespaceID
	}
	if nsID != "" {
		grant, err := c.store.GetNamespaceGrant(ctx, p.UserID, nsID)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			for s := range grant.Scopes {
				effective[s] = true
			}
		}
	}

	if t.RepoID != "" {
		grant, err := c.store.GetRepoGrant(ctx, p.UserID, t.RepoID)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			for s := range grant.Scopes {
				effective[s] = true
			}
		}
	}

	return effective, nil
}

// Allow reports whether the principal's effective scopes on the target
// satisfy every scope in required (spec §4.C step 3).
func (c *Checker) Allow(ctx context.Context, p Principal, t Target, required ...store.Scope) (bool, error) {
	effective, err := c.EffectiveScopes(ctx, p, t)
	if err != nil {
		return false, err
	}
	return effective.HasAll(required...), nil
}
