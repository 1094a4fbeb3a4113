package server

import (
	"context"
	"net/http"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/perm"
	"github.com/bantamhq/cutman/internal/resolver"
	"github.com/bantamhq/cutman/internal/store"
)

// resolveNamespace looks up a namespace by opaque id first, falling back
// to a case-insensitive name lookup, per spec §4.D ("Paths accept either
// opaque ids or human names").
func (s *Server) resolveNamespace(ctx context.Context, idOrName string) (*store.Namespace, error) {
	if resolver.LooksLikeOpaqueID(idOrName) {
		if ns, err := s.store.GetNamespace(ctx, idOrName); err == nil {
			return ns, nil
		}
	}

	seg, err := resolver.CanonicalizeSegment(idOrName)
	if err != nil {
		return nil, apierr.New(apierr.BadRequest, "invalid namespace name")
	}

	ns, err := s.store.GetNamespaceByName(ctx, seg)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apierr.New(apierr.NotFound, "namespace not found")
		}
		return nil, apierr.Wrap(err, "look up namespace")
	}
	return ns, nil
}

// resolveRepo looks up a repo within a namespace by opaque id or name.
func (s *Server) resolveRepo(ctx context.Context, ns *store.Namespace, idOrName string) (*store.Repo, error) {
	if resolver.LooksLikeOpaqueID(idOrName) {
		if repo, err := s.store.GetRepo(ctx, idOrName); err == nil && repo.NamespaceID == ns.ID {
			return repo, nil
		}
	}

	seg, err := resolver.CanonicalizeSegment(idOrName)
	if err != nil {
		return nil, apierr.New(apierr.BadRequest, "invalid repo name")
	}

	repo, err := s.store.GetRepoByName(ctx, ns.ID, seg)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apierr.New(apierr.NotFound, "repo not found")
		}
		return nil, apierr.Wrap(err, "look up repo")
	}
	return repo, nil
}

// namespaceTarget builds a perm.Target for a namespace-level check.
func namespaceTarget(ns *store.Namespace) perm.Target {
	t := perm.Target{NamespaceID: ns.ID}
	if ns.OwnerUserID != nil {
		t.NamespaceOwnerID = *ns.OwnerUserID
	}
	return t
}

// repoTarget builds a perm.Target for a repo-level check.
func repoTarget(ns *store.Namespace, repo *store.Repo) perm.Target {
	t := perm.Target{RepoID: repo.ID, RepoNamespaceID: ns.ID}
	if ns.OwnerUserID != nil {
		t.NamespaceOwnerID = *ns.OwnerUserID
	}
	return t
}

// requireScope is the single evaluation point required scopes funnel
// through, per spec §9 ("a single function that takes (principal, target,
// required) and returns allow/deny with reason; avoid scattering `if
// admin` checks").
func (s *Server) requireScope(ctx context.Context, auth *authInfo, target perm.Target, required ...store.Scope) error {
	allowed, err := s.perm.Allow(ctx, auth.Principal, target, required...)
	if err != nil {
		return apierr.Wrap(err, "evaluate permissions")
	}
	if !allowed {
		return apierr.New(apierr.Forbidden, "insufficient scope")
	}
	return nil
}

func requireAdmin(auth *authInfo) error {
	if !auth.Principal.IsAdmin {
		return apierr.New(apierr.Forbidden, "admin access required")
	}
	return nil
}

func mustAuth(w http.ResponseWriter, r *http.Request) *authInfo {
	auth := authFromContext(r.Context())
	if auth == nil {
		writeError(w, apierr.New(apierr.Unauthenticated, "authentication required"))
		return nil
	}
	return auth
}
