package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/perm"
	"github.com/bantamhq/cutman/internal/store"
)

type ctxKey int

const (
	ctxKeyAuth ctxKey = iota
)

// authInfo is what a successful authentication resolves to: the token row
// and the permission-engine principal it acts as.
type authInfo struct {
	Token     *store.Token
	Principal perm.Principal
}

func withAuth(ctx context.Context, a *authInfo) context.Context {
	return context.WithValue(ctx, ctxKeyAuth, a)
}

func authFromContext(ctx context.Context) *authInfo {
	a, _ := ctx.Value(ctxKeyAuth).(*authInfo)
	return a
}

// extractBearerToken reads a REST caller's credential from the
// Authorization header, per spec §6 ("Authorization: Bearer <token>").
func extractBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

// extractGitCredentials reads a Git smart-HTTP caller's credential, per
// spec §4.B/§4.G: HTTP Basic with username literal "x-token", or a Bearer
// header as a fallback.
func extractGitCredentials(r *http.Request) (string, bool) {
	if username, password, ok := r.BasicAuth(); ok {
		if username == "x-token" {
			return password, true
		}
		return "", false
	}
	return extractBearerToken(r)
}

// authenticate resolves a token secret to an authInfo, updating
// last_used_at in the background per spec §4.B. Returns Unauthenticated
// for a missing, unknown, or revoked token.
func (s *Server) authenticate(ctx context.Context, secret string) (*authInfo, error) {
	if secret == "" {
		return nil, apierr.New(apierr.Unauthenticated, "missing credentials")
	}

	token, err := s.store.AuthenticateToken(ctx, secret)
	if err != nil {
		return nil, apierr.New(apierr.Unauthenticated, "invalid or revoked token")
	}
	if token.IsRevoked() {
		return nil, apierr.New(apierr.Unauthenticated, "invalid or revoked token")
	}

	go func() {
		_ = s.store.TouchTokenLastUsed(context.Background(), token.ID)
	}()

	principal := perm.Principal{IsAdmin: token.IsAdminToken()}
	if token.UserID != nil {
		principal.UserID = *token.UserID

		user, err := s.store.GetUser(ctx, *token.UserID)
		if err == nil && user.IsAdmin {
			principal.IsAdmin = true
		}
	}

	return &authInfo{Token: token, Principal: principal}, nil
}

// requireAuth is REST middleware: it resolves the bearer token and stores
// the authInfo in the request context, or writes Unauthenticated.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := extractBearerToken(r)
		if !ok {
			writeError(w, apierr.New(apierr.Unauthenticated, "missing bearer token"))
			return
		}

		auth, err := s.authenticate(r.Context(), secret)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withAuth(r.Context(), auth)))
	})
}

// recoverMiddleware catches panics and converts them into an Internal
// error response, per spec §7 ("unexpected panics/exceptions are caught
// at the top of each handler, logged, and returned as Internal").
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, apierr.Newf(apierr.Internal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
