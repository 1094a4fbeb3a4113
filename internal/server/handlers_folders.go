package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	ns, err := s.resolveNamespace(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceRead); err != nil {
		writeError(w, err)
		return
	}

	folders, err := s.store.ListFolders(r.Context(), ns.ID)
	if err != nil {
		writeError(w, apierr.Wrap(err, "list folders"))
		return
	}
	writeData(w, http.StatusOK, folders)
}

type createFolderRequest struct {
	Namespace string  `json:"namespace"`
	ParentID  *string `json:"parent_id"`
	Name      string  `json:"name"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	ns, err := s.resolveNamespace(r.Context(), req.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	name, err := canonicalizeName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	folder, err := s.store.CreateFolder(r.Context(), ns.ID, req.ParentID, name)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusCreated, folder)
}

type updateFolderRequest struct {
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	folder, err := s.store.GetFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), folder.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	var req updateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	// Reject moving a folder onto itself before the store's ancestry walk
	// even starts, per spec §8 scenario 4.
	if req.ParentID != nil && *req.ParentID == folder.ID {
		writeError(w, apierr.New(apierr.UnprocessableEntity, "folder cannot be its own parent"))
		return
	}

	if err := s.store.SetFolderParent(r.Context(), folder.ID, req.ParentID); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	updated, err := s.store.GetFolder(r.Context(), folder.ID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	folder, err := s.store.GetFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), folder.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	count, err := s.store.CountFolderRepos(r.Context(), folder.ID)
	if err != nil {
		writeError(w, apierr.Wrap(err, "count folder repos"))
		return
	}
	if count > 0 {
		writeError(w, apierr.New(apierr.Conflict, "folder still contains repos"))
		return
	}

	if err := s.store.DeleteFolder(r.Context(), folder.ID); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}
