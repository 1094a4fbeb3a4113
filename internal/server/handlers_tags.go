package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
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

	tags, err := s.store.ListTags(r.Context(), ns.ID)
	if err != nil {
		writeError(w, apierr.Wrap(err, "list tags"))
		return
	}
	writeData(w, http.StatusOK, tags)
}

type createTagRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	var req createTagRequest
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

	if req.Color == "" {
		req.Color = "#808080"
	}

	tag, err := s.store.CreateTag(r.Context(), ns.ID, req.Name, req.Color)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusCreated, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	tag, err := s.store.GetTag(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	ns, err := s.store.GetNamespace(r.Context(), tag.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if err := s.requireScope(r.Context(), auth, namespaceTarget(ns), store.ScopeNamespaceWrite); err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.DeleteTag(r.Context(), tag.ID); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}
