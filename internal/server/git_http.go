// Git smart-HTTP adapter (spec §4.G), grounded on the teacher's
// internal/server/git_http.go: pkt-line info/refs advertisement and
// stateless-rpc process piping, restructured around resolver/perm lookups
// instead of direct store calls and a per-repo writer lock around
// receive-pack (spec §5).
package server

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

const gitCommandTimeout = 10 * time.Minute

func (s *Server) gitHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ns, repo, ok := s.resolveGitTarget(w, r)
		if !ok {
			return
		}

		rest := chi.URLParam(r, "*")
		switch {
		case strings.HasSuffix(rest, "info/refs"):
			s.handleInfoRefs(w, r, ns, repo)
		case strings.HasSuffix(rest, "git-upload-pack"):
			s.handleUploadPack(w, r, ns, repo)
		case strings.HasSuffix(rest, "git-receive-pack"):
			s.handleReceivePack(w, r, ns, repo)
		default:
			writeGitError(w, http.StatusNotFound, "not found")
		}
	})
}

// resolveGitTarget authenticates the caller and resolves the namespace/repo
// pair from the URL, writing an appropriate response and returning ok=false
// on any failure.
func (s *Server) resolveGitTarget(w http.ResponseWriter, r *http.Request) (*store.Namespace, *store.Repo, bool) {
	secret, hasCreds := extractGitCredentials(r)
	var auth *authInfo
	if hasCreds {
		a, err := s.authenticate(r.Context(), secret)
		if err != nil {
			writeGitAuthChallenge(w)
			return nil, nil, false
		}
		auth = a
	}

	ns, err := s.resolveNamespace(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		writeGitAPIErr(w, err)
		return nil, nil, false
	}
	repo, err := s.resolveRepo(r.Context(), ns, chi.URLParam(r, "repo"))
	if err != nil {
		writeGitAPIErr(w, err)
		return nil, nil, false
	}

	required := store.ScopeRepoRead
	if isGitWrite(r) {
		required = store.ScopeRepoWrite
	}

	if auth == nil {
		writeGitAuthChallenge(w)
		return nil, nil, false
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), required); err != nil {
		writeGitAPIErr(w, err)
		return nil, nil, false
	}

	return ns, repo, true
}

func isGitWrite(r *http.Request) bool {
	if strings.HasSuffix(r.URL.Path, "git-receive-pack") {
		return true
	}
	if strings.HasSuffix(r.URL.Path, "info/refs") {
		return r.URL.Query().Get("service") == "git-receive-pack"
	}
	return false
}

func writeGitAuthChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="cutman"`)
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

func writeGitAPIErr(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		http.Error(w, apiErr.Message, apiErr.Status())
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeGitError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// requestBody transparently gzip-decodes the RPC body when the client sent
// Content-Encoding: gzip, per spec §4.G parity with plain git-http clients
// that compress push/fetch payloads.
func requestBody(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	if r.Header.Get("Content-Encoding") != "gzip" {
		return r.Body, nil
	}

	gzipReader, err := gzip.NewReader(r.Body)
	if err != nil {
		writeGitError(w, http.StatusBadRequest, "invalid gzip body")
		return nil, err
	}
	return gzipReader, nil
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request, ns *store.Namespace, repo *store.Repo) {
	service := r.URL.Query().Get("service")
	if service != "git-upload-pack" && service != "git-receive-pack" {
		writeGitError(w, http.StatusBadRequest, "invalid service")
		return
	}

	path := s.repos.RepoPath(ns.ID, repo.ID)

	ctx, cancel := context.WithTimeout(r.Context(), gitCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, service, "--stateless-rpc", "--advertise-refs", path)
	output, err := cmd.Output()
	if err != nil {
		writeGitError(w, http.StatusInternalServerError, fmt.Sprintf("failed to advertise refs: %v", err))
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service))
	w.Header().Set("Cache-Control", "no-cache")

	serviceLine := fmt.Sprintf("# service=%s\n", service)
	fmt.Fprintf(w, "%04x%s", len(serviceLine)+4, serviceLine)
	w.Write([]byte("0000"))
	w.Write(output)
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request, ns *store.Namespace, repo *store.Repo) {
	path := s.repos.RepoPath(ns.ID, repo.ID)

	body, err := requestBody(w, r)
	if err != nil {
		return
	}
	if closer, ok := body.(io.Closer); ok && body != r.Body {
		defer closer.Close()
	}

	ctx, cancel := context.WithTimeout(r.Context(), gitCommandTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.Header().Set("Cache-Control", "no-cache")

	cmd := exec.CommandContext(ctx, "git-upload-pack", "--stateless-rpc", path)
	cmd.Stdin = body
	cmd.Stdout = w

	if err := cmd.Run(); err != nil {
		s.logger.Error("git-upload-pack failed", "repo", repo.ID, "err", err)
	}
}

// handleReceivePack serializes on the repo's writer lock (spec §5) so a
// concurrent admin delete or another receive-pack cannot race the same
// on-disk tree, streams the pack through an out-of-process git-receive-pack,
// and recomputes size_bytes afterward.
func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request, ns *store.Namespace, repo *store.Repo) {
	path := s.repos.RepoPath(ns.ID, repo.ID)

	body, err := requestBody(w, r)
	if err != nil {
		return
	}
	if closer, ok := body.(io.Closer); ok && body != r.Body {
		defer closer.Close()
	}

	s.repoLocks.withRepoLock(repo.ID, func() {
		ctx, cancel := context.WithTimeout(r.Context(), gitCommandTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
		w.Header().Set("Cache-Control", "no-cache")

		cmd := exec.CommandContext(ctx, "git-receive-pack", "--stateless-rpc", path)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			writeGitError(w, http.StatusInternalServerError, "internal error")
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			writeGitError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := cmd.Start(); err != nil {
			writeGitError(w, http.StatusInternalServerError, "failed to start git-receive-pack")
			return
		}

		// Cancellation mid-stream (client disconnect) kills the process via
		// ctx; no refs advance on a killed process, per spec §5.
		go func() {
			io.Copy(stdin, body)
			stdin.Close()
		}()

		io.Copy(w, stdout)

		if err := cmd.Wait(); err != nil {
			s.logger.Error("git-receive-pack failed", "repo", repo.ID, "err", err)
			return
		}

		size, err := s.repos.DiskUsage(ns.ID, repo.ID)
		if err != nil {
			s.logger.Error("disk usage after push failed", "repo", repo.ID, "err", err)
			return
		}
		if err := s.store.TouchRepoAfterPush(context.Background(), repo.ID, size); err != nil {
			s.logger.Error("touch repo after push failed", "repo", repo.ID, "err", err)
		}
	})
}
