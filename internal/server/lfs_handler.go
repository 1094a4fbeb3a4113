// Git-LFS Batch API and transfer endpoints (spec §4.G), grounded on the
// teacher's internal/server/lfs_handler.go: same batch/upload/download/
// verify shape, rekeyed to namespace-scoped storage and the spec's
// perm.Checker instead of the teacher's bitmask PermissionChecker.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/lfs"
	"github.com/bantamhq/cutman/internal/store"
)

const lfsMediaType = "application/vnd.git-lfs+json"

func (s *Server) lfsHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/objects/batch", s.handleLFSBatch)
	r.Get("/objects/{oid}", s.handleLFSDownload)
	r.Put("/objects/{oid}", s.handleLFSUpload)
	r.Post("/verify", s.handleLFSVerify)
	return r
}

// lfsContext resolves namespace/repo and authenticates the caller for an
// LFS sub-route, requiring repo:read for downloads and repo:write for
// uploads/verify.
func (s *Server) lfsContext(w http.ResponseWriter, r *http.Request, write bool) (*store.Namespace, *store.Repo, bool) {
	secret, hasCreds := extractGitCredentials(r)
	if !hasCreds {
		lfsErrorWithAuth(w, http.StatusUnauthorized, "authentication required")
		return nil, nil, false
	}
	auth, err := s.authenticate(r.Context(), secret)
	if err != nil {
		lfsErrorWithAuth(w, http.StatusUnauthorized, "invalid or revoked token")
		return nil, nil, false
	}

	ns, err := s.resolveNamespace(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		lfsError(w, http.StatusNotFound, "namespace not found")
		return nil, nil, false
	}
	repo, err := s.resolveRepo(r.Context(), ns, chi.URLParam(r, "repo"))
	if err != nil {
		lfsError(w, http.StatusNotFound, "repository not found")
		return nil, nil, false
	}

	required := store.ScopeRepoRead
	if write {
		required = store.ScopeRepoWrite
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), required); err != nil {
		lfsError(w, http.StatusForbidden, "access denied")
		return nil, nil, false
	}

	return ns, repo, true
}

func (s *Server) handleLFSBatch(w http.ResponseWriter, r *http.Request) {
	var req lfs.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		lfsError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Operation != "download" && req.Operation != "upload" {
		lfsError(w, http.StatusBadRequest, "invalid operation")
		return
	}

	ns, repo, ok := s.lfsContext(w, r, req.Operation == "upload")
	if !ok {
		return
	}

	resp := lfs.BatchResponse{Transfer: "basic", Objects: make([]lfs.ObjectResponse, 0, len(req.Objects))}
	for _, obj := range req.Objects {
		resp.Objects = append(resp.Objects, s.lfsObjectResponse(r, ns, repo, obj, req.Operation))
	}

	lfsJSON(w, http.StatusOK, resp)
}

func (s *Server) lfsObjectResponse(r *http.Request, ns *store.Namespace, repo *store.Repo, obj lfs.ObjectSpec, op string) lfs.ObjectResponse {
	if err := lfs.ValidateOID(obj.OID); err != nil {
		return lfsObjectError(obj, http.StatusUnprocessableEntity, "invalid oid format")
	}
	if s.limits.MaxLFSObjectBytes > 0 && obj.Size > s.limits.MaxLFSObjectBytes {
		return lfsObjectError(obj, http.StatusRequestEntityTooLarge, "object exceeds configured size limit")
	}

	exists, err := s.lfs.Exists(r.Context(), ns.ID, obj.OID)
	if err != nil {
		return lfsObjectError(obj, http.StatusInternalServerError, "failed to check object existence")
	}

	baseURL := fmt.Sprintf("/git-lfs/%s/%s/objects/%s", ns.Name, repo.Name, obj.OID)

	if op == "download" {
		if !exists {
			return lfsObjectError(obj, http.StatusNotFound, "object not found")
		}
		return lfs.ObjectResponse{OID: obj.OID, Size: obj.Size, Actions: map[string]lfs.Action{
			"download": {Href: baseURL, ExpiresIn: 3600},
		}}
	}

	resp := lfs.ObjectResponse{OID: obj.OID, Size: obj.Size}
	if !exists {
		resp.Actions = map[string]lfs.Action{
			"upload": {Href: baseURL, ExpiresIn: 3600},
			"verify": {Href: fmt.Sprintf("/git-lfs/%s/%s/verify", ns.Name, repo.Name), ExpiresIn: 3600},
		}
	}
	return resp
}

func lfsObjectError(obj lfs.ObjectSpec, code int, message string) lfs.ObjectResponse {
	return lfs.ObjectResponse{OID: obj.OID, Size: obj.Size, Error: &lfs.ObjectError{Code: code, Message: message}}
}

func (s *Server) handleLFSDownload(w http.ResponseWriter, r *http.Request) {
	ns, _, ok := s.lfsContext(w, r, false)
	if !ok {
		return
	}

	oid := chi.URLParam(r, "oid")
	if err := lfs.ValidateOID(oid); err != nil {
		lfsError(w, http.StatusUnprocessableEntity, "invalid oid format")
		return
	}

	reader, size, err := s.lfs.Get(r.Context(), ns.ID, oid)
	if errors.Is(err, lfs.ErrObjectNotFound) {
		lfsError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		lfsError(w, http.StatusInternalServerError, "failed to retrieve object")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

func (s *Server) handleLFSUpload(w http.ResponseWriter, r *http.Request) {
	ns, _, ok := s.lfsContext(w, r, true)
	if !ok {
		return
	}

	oid := chi.URLParam(r, "oid")
	if err := lfs.ValidateOID(oid); err != nil {
		lfsError(w, http.StatusUnprocessableEntity, "invalid oid format")
		return
	}

	size := r.ContentLength
	if size < 0 {
		lfsError(w, http.StatusBadRequest, "content-length required")
		return
	}
	if s.limits.MaxLFSObjectBytes > 0 && size > s.limits.MaxLFSObjectBytes {
		lfsError(w, http.StatusRequestEntityTooLarge, "object exceeds configured size limit")
		return
	}

	err := s.lfs.Put(r.Context(), ns.ID, oid, r.Body, size)
	if errors.Is(err, lfs.ErrHashMismatch) {
		lfsError(w, http.StatusBadRequest, "content hash does not match oid")
		return
	}
	if err != nil {
		lfsError(w, http.StatusInternalServerError, "failed to store object")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLFSVerify(w http.ResponseWriter, r *http.Request) {
	ns, _, ok := s.lfsContext(w, r, true)
	if !ok {
		return
	}

	var req lfs.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		lfsError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := lfs.ValidateOID(req.OID); err != nil {
		lfsError(w, http.StatusUnprocessableEntity, "invalid oid format")
		return
	}

	size, err := s.lfs.Size(r.Context(), ns.ID, req.OID)
	if errors.Is(err, lfs.ErrObjectNotFound) {
		lfsError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		lfsError(w, http.StatusInternalServerError, "failed to verify object")
		return
	}
	if size != req.Size {
		lfsError(w, http.StatusBadRequest, fmt.Sprintf("size mismatch: expected %d, got %d", req.Size, size))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func lfsJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", lfsMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func lfsError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", lfsMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(lfs.LFSError{Message: message})
}

func lfsErrorWithAuth(w http.ResponseWriter, status int, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="cutman"`)
	lfsError(w, status, message)
}
