package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

type createUserRequest struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}
	seg, err := canonicalizeName(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	user, ns, err := s.store.CreateUser(r.Context(), seg, req.IsAdmin)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusCreated, map[string]any{"user": user, "namespace": ns})
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

type createTokenRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleAdminCreateToken(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "id")
	var req createTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	var uid *string
	if userID != "" {
		uid = &userID
	}

	token, secret, err := s.store.CreateToken(r.Context(), uid, req.Description)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusCreated, map[string]any{"token": token, "secret": secret})
}

func (s *Server) handleAdminDeleteToken(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.RevokeToken(r.Context(), id); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"revoked": true})
}

type createNamespaceRequest struct {
	Name      string `json:"name"`
	RepoLimit *int   `json:"repo_limit"`
}

func (s *Server) handleAdminCreateNamespace(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	var req createNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}
	seg, err := canonicalizeName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	ns, err := s.store.CreateSharedNamespace(r.Context(), seg, req.RepoLimit)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusCreated, ns)
}

func (s *Server) handleAdminDeleteNamespace(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.DeleteNamespace(r.Context(), id); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

type createNamespaceGrantRequest struct {
	NamespaceID string   `json:"namespace_id"`
	Allow       []string `json:"allow"`
}

func (s *Server) handleAdminCreateNamespaceGrant(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if err := requireAdmin(auth); err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "id")
	var req createNamespaceGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}

	scopes, err := parseScopes(req.Allow)
	if err != nil {
		writeError(w, err)
		return
	}

	grant, err := s.store.UpsertNamespaceGrant(r.Context(), userID, req.NamespaceID, scopes)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusCreated, grant)
}

func parseScopes(raw []string) (store.ScopeSet, error) {
	ss := store.ScopeSet{}
	for _, v := range raw {
		if !store.IsValidScope(v) {
			return nil, apierr.Newf(apierr.BadRequest, "unknown scope %q", v)
		}
		ss[store.Scope(v)] = true
	}
	return ss, nil
}
