package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
)

type createOwnTokenRequest struct {
	Description string `json:"description"`
}

// handleCreateOwnToken lets an authenticated user mint a token for
// themselves, gated by allowUserTokens per spec §9.
func (s *Server) handleCreateOwnToken(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if !s.allowUserTokens && !auth.Principal.IsAdmin {
		writeError(w, apierr.New(apierr.Forbidden, "self-service token creation is disabled"))
		return
	}
	if auth.Principal.UserID == "" {
		writeError(w, apierr.New(apierr.BadRequest, "admin-root token cannot own further tokens"))
		return
	}

	var req createOwnTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	userID := auth.Principal.UserID
	token, secret, err := s.store.CreateToken(r.Context(), &userID, req.Description)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}

	writeData(w, http.StatusCreated, map[string]any{"token": token, "secret": secret})
}

func (s *Server) handleListOwnTokens(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}
	if auth.Principal.UserID == "" {
		writeData(w, http.StatusOK, []any{})
		return
	}

	tokens, err := s.store.ListTokensForUser(r.Context(), auth.Principal.UserID)
	if err != nil {
		writeError(w, apierr.Wrap(err, "list tokens"))
		return
	}
	writeData(w, http.StatusOK, tokens)
}

func (s *Server) handleDeleteOwnToken(w http.ResponseWriter, r *http.Request) {
	auth := mustAuth(w, r)
	if auth == nil {
		return
	}

	id := chi.URLParam(r, "id")
	token, err := s.store.GetToken(r.Context(), id)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	if !auth.Principal.IsAdmin && (token.UserID == nil || *token.UserID != auth.Principal.UserID) {
		writeError(w, apierr.New(apierr.Forbidden, "cannot revoke another user's token"))
		return
	}

	if err := s.store.RevokeToken(r.Context(), id); err != nil {
		writeError(w, translateStoreErr(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"revoked": true})
}
