package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

// handleListRepos lists every repo the caller can see, per spec §4.C
// ("listing endpoints perform per-item filtering rather than failing the
// whole list"). An admin gets every repo. Any other caller gets the repos
// in namespaces they own or hold a grant on, or that they hold a repo grant
// on, keeping only those their effective scopes allow repo:read on.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	var repos []store.Repo
	var err error
	if auth.Principal.IsAdmin {
		repos, err = s.listAllRepos(r.Context())
	} else {
		repos, err = s.store.ListAllUserAccessibleRepos(r.Context(), auth.Principal.UserID)
	}
	if err != nil {
		writeError(w, apierr.Wrap(err, "list repos"))
		return
	}
	if !auth.Principal.IsAdmin {
		readable := repos[:0]
		for i := range repos {
			ns, err := s.store.GetNamespace(r.Context(), repos[i].NamespaceID)
			if err != nil {
				writeError(w, apierr.Wrap(err, "list repos"))
				return
			}
			if s.requireScope(r.Context(), auth, repoTarget(ns, &repos[i]), store.ScopeRepoRead) == nil {
				readable = append(readable, repos[i])
			}
		}
		repos = readable
	}

	page, perPage := parsePagination(r.URL.Query())
	writeList(w, paginate(repos, page, perPage), page, perPage, len(repos))
}

// listAllRepos is the admin path: every repo across every namespace, per
// spec §4.C ("the admin principal implicitly holds every scope").
func (s *Server) listAllRepos(ctx context.Context) ([]store.Repo, error) {
	_, nsTotal, err := s.store.ListNamespaces(ctx, 1, 1)
	if err != nil {
		return nil, err
	}
	namespaces, _, err := s.store.ListNamespaces(ctx, 1, nsTotal)
	if err != nil {
		return nil, err
	}

	var out []store.Repo
	for _, ns := range namespaces {
		_, total, err := s.store.ListReposInNamespace(ctx, ns.ID, 1, 1)
		if err != nil {
			return nil, err
		}
		repos, _, err := s.store.ListReposInNamespace(ctx, ns.ID, 1, total)
		if err != nil {
			return nil, err
		}
		out = append(out, repos...)
	}
	return out, nil
}

func paginate(repos []store.Repo, page, perPage int) []store.Repo {
	start := (page - 1) * perPage
	if start >= len(repos) {
		return []store.Repo{}
	}
	end := start + perPage
	if end > len(repos) {
		end = len(repos)
	}
	return repos[start:end]
}

type createRepoRequest struct {
	Namespace   string  `json:"namespace"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	FolderID    *string `json:"folder_id"`
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	var req createRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	ns, err := s.resolveNamespace(r.Context(), req.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeRepoWrite); err != nil {
		writeError(w, err)
		return
	}

	name, err := canonicalizeName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	repo, err := s.store.CreateRepo(r.Context(), ns.ID, name, req.Description, req.FolderID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	if err := s.repos.CreateBareRepo(ns.ID, repo.ID); err != nil {
		_ = s.store.DeleteRepo(r.Context(), repo.ID)
		writeError(w, apierr.Wrap(err, "create bare repository"))
		return
	}

	writeData(w, http.StatusCreated, repo)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), store.ScopeRepoRead); err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, repo)
}

type updateRepoRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleUpdateRepo(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	var req updateRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	required := store.ScopeRepoWrite
	if req.Name != nil {
		required = store.ScopeRepoAdmin
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), required); err != nil {
		writeError(w, err)
		return
	}

	upd := store.RepoUpdate{Description: req.Description}
	if req.Name != nil {
		name, err := canonicalizeName(*req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		upd.Name = &name
	}

	updated, err := s.store.UpdateRepo(r.Context(), repo.ID, upd)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), store.ScopeRepoAdmin); err != nil {
		writeError(w, err)
		return
	}

	s.repoLocks.withRepoLock(repo.ID, func() {
		if delErr := s.store.DeleteRepo(r.Context(), repo.ID); delErr != nil {
			err = delErr
			return
		}
		err = s.repos.DeleteBareRepo(ns.ID, repo.ID)
	})
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

type setFolderRequest struct {
	FolderID *string `json:"folder_id"`
}

func (s *Server) handleSetRepoFolder(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	var req setFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	updated, err := s.store.UpdateRepo(r.Context(), repo.ID, store.RepoUpdate{FolderID: &req.FolderID})
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusOK, updated)
}

type attachTagRequest struct {
	TagID string `json:"tag_id"`
}

func (s *Server) handleAttachRepoTag(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	var req attachTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	if err := s.store.AttachTag(r.Context(), repo.ID, req.TagID); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	tags, err := s.store.ListRepoTags(r.Context(), repo.ID)
	if err != nil {
		writeError(w, apierr.Wrap(err, "list repo tags"))
		return
	}
	writeData(w, http.StatusCreated, tags)
}

func (s *Server) handleDetachRepoTag(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.DetachTag(r.Context(), repo.ID, chi.URLParam(r, "tagID")); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"detached": true})
}
