package server

import (
	"errors"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/resolver"
	"github.com/bantamhq/cutman/internal/store"
)

// canonicalizeName validates a user-supplied user/namespace/repo/folder name segment
// against the slug grammar, per spec §4.D, translating a bad slug into a
// BadRequest response.
func canonicalizeName(raw string) (string, error) {
	seg, err := resolver.CanonicalizeSegment(raw)
	if err != nil {
		return "", apierr.New(apierr.BadRequest, "invalid name: must match [a-z0-9][a-z0-9_-]{0,62}")
	}
	return seg, nil
}

// translateStoreErr maps a store-layer sentinel error to the matching
// apierr.Kind, per spec §7.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apierr.New(apierr.NotFound, "not found")
	case errors.Is(err, store.ErrNameConflict):
		return apierr.New(apierr.Conflict, "name already in use")
	case errors.Is(err, store.ErrRepoLimitExceeded):
		return apierr.New(apierr.Conflict, "repo limit exceeded")
	case errors.Is(err, store.ErrFolderCycle):
		return apierr.New(apierr.UnprocessableEntity, "folder move would create a cycle")
	case errors.Is(err, store.ErrCrossNamespace):
		return apierr.New(apierr.UnprocessableEntity, "resource belongs to a different namespace")
	default:
		return apierr.Wrap(err, "store operation failed")
	}
}
