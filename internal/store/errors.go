package store

import "errors"

// Sentinel errors returned by Store methods; handlers translate these into
// apierr kinds rather than leaking persistence details. Pattern grounded on
// the teacher's internal/store/errors.go.
var (
	ErrNotFound          = errors.New("store: not found")
	ErrNameConflict      = errors.New("store: name already in use")
	ErrRepoLimitExceeded = errors.New("store: namespace repo_limit exceeded")
	ErrFolderCycle       = errors.New("store: folder parent chain would cycle")
	ErrCrossNamespace    = errors.New("store: referenced entity belongs to a different namespace")
)
