// Package server implements the REST dispatcher (spec §4.F), the Git
// smart-HTTP adapter (§4.G), and the content browser (§4.H). Grounded on
// the teacher's internal/server package: chi routing, middleware.Logger/
// Recoverer, and the lookup-then-check handler idiom, rebuilt around the
// spec's envelope, scope model, and id-keyed resource layout.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bantamhq/cutman/internal/lfs"
	"github.com/bantamhq/cutman/internal/perm"
	"github.com/bantamhq/cutman/internal/repostore"
	"github.com/bantamhq/cutman/internal/store"
)

// Limits are the configured request-size ceilings. MaxLFSObjectBytes is
// enforced on LFS batch requests and uploads (413 Payload Too Large);
// MaxRequestBodyBytes is carried here but no handler reads it, so REST
// request bodies are not size-limited.
type Limits struct {
	MaxRequestBodyBytes int64
	MaxLFSObjectBytes   int64
}

type Server struct {
	store   *store.SQLiteStore
	perm    *perm.Checker
	repos   *repostore.Store
	lfs     *lfs.Storage
	dataDir string
	limits  Limits
	logger  *slog.Logger

	// allowUserTokens gates self-service token creation per spec §9
	// ("treat as deployment config; default deny").
	allowUserTokens bool

	router chi.Router
	http   *http.Server

	// repoLocks serializes receive-pack and destructive admin operations
	// per repo, per spec §5.
	repoLocks *repoLockTable
}

func New(st *store.SQLiteStore, dataDir string, limits Limits, allowUserTokens bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:           st,
		perm:            perm.NewChecker(st),
		repos:           repostore.New(dataDir),
		lfs:             lfs.NewStorage(dataDir + "/lfs"),
		dataDir:         dataDir,
		limits:          limits,
		allowUserTokens: allowUserTokens,
		logger:          logger,
		repoLocks:       newRepoLockTable(),
	}

	s.router = s.buildRoutes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(s.recoverMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The blanket request timeout below only wraps bounded, in-process REST
	// calls. It must not reach the Git smart-HTTP, Git-LFS, or archive
	// routes: those stream subprocess/tarball output that can legitimately
	// run far past 60s (spec §4.G's gitCommandTimeout is 10m), and cutting
	// them off mid-stream would corrupt a clone/push/archive in progress.
	r.Route("/api/v1/admin", func(admin chi.Router) {
		admin.Use(middleware.Timeout(60 * time.Second))
		admin.Use(s.requireAuth)
		admin.Post("/users", s.handleAdminCreateUser)
		admin.Delete("/users/{id}", s.handleAdminDeleteUser)
		admin.Post("/users/{id}/tokens", s.handleAdminCreateToken)
		admin.Delete("/tokens/{id}", s.handleAdminDeleteToken)
		admin.Post("/namespaces", s.handleAdminCreateNamespace)
		admin.Delete("/namespaces/{id}", s.handleAdminDeleteNamespace)
		admin.Post("/users/{id}/namespace-grants", s.handleAdminCreateNamespaceGrant)
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.requireAuth)

		api.Group(func(bounded chi.Router) {
			bounded.Use(middleware.Timeout(60 * time.Second))

			bounded.Get("/repos", s.handleListRepos)
			bounded.Post("/repos", s.handleCreateRepo)
			bounded.Get("/repos/{id}", s.handleGetRepo)
			bounded.Patch("/repos/{id}", s.handleUpdateRepo)
			bounded.Delete("/repos/{id}", s.handleDeleteRepo)
			bounded.Post("/repos/{id}/folders", s.handleSetRepoFolder)
			bounded.Post("/repos/{id}/tags", s.handleAttachRepoTag)
			bounded.Delete("/repos/{id}/tags/{tagID}", s.handleDetachRepoTag)

			bounded.Get("/folders", s.handleListFolders)
			bounded.Post("/folders", s.handleCreateFolder)
			bounded.Patch("/folders/{id}", s.handleUpdateFolder)
			bounded.Delete("/folders/{id}", s.handleDeleteFolder)

			bounded.Get("/tags", s.handleListTags)
			bounded.Post("/tags", s.handleCreateTag)
			bounded.Delete("/tags/{id}", s.handleDeleteTag)

			bounded.Post("/tokens", s.handleCreateOwnToken)
			bounded.Get("/tokens", s.handleListOwnTokens)
			bounded.Delete("/tokens/{id}", s.handleDeleteOwnToken)

			bounded.Get("/repos/{id}/refs", s.handleListRefs)
			bounded.Get("/repos/{id}/commits", s.handleListCommits)
			bounded.Get("/repos/{id}/tree/{rev}", s.handleGetTree)
			bounded.Get("/repos/{id}/tree/{rev}/*", s.handleGetTree)
			bounded.Get("/repos/{id}/blob/{rev}/*", s.handleGetBlob)
			bounded.Get("/repos/{id}/blame/{rev}/*", s.handleGetBlame)
			bounded.Get("/repos/{id}/compare/{base}/{head}", s.handleCompare)
			bounded.Get("/repos/{id}/readme", s.handleReadme)
		})

		// Unbounded: archive streams a tar/zip of the whole tree and can
		// run long on a large repo.
		api.Get("/repos/{id}/archive/{rev}", s.handleArchive)
	})

	r.Route("/git/{namespace}/{repo}", func(g chi.Router) {
		g.Handle("/*", s.gitHandler())
	})

	r.Route("/git-lfs/{namespace}/{repo}", func(l chi.Router) {
		l.Mount("/", s.lfsHandler())
	})

	return r
}

// Start runs the HTTP listener on host:port until the process is
// signaled to stop; see Shutdown. Timeouts match spec §5's 120s idle
// default and the teacher's server.go constants.
//
// WriteTimeout is deliberately left unset: unlike middleware.Timeout it
// applies to the whole connection and can't be scoped to only the bounded
// REST routes, and a 60s cap would sever a clone/push/archive stream that
// spec §4.G allows up to gitCommandTimeout (10m) to complete. Each
// long-running handler enforces its own deadline instead (gitCommandTimeout
// via exec.CommandContext for git-http; client disconnect naturally aborts
// archive and LFS writes).
func (s *Server) Start(host string, port int, idleTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       idleTimeout,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to drain, per spec §5.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
