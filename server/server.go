// Package server exposes the services over HTTP: the JSON API under /api,
// crawler documents, HTML detail pages and uploaded files.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/stokaro/trustboard/admin"
	"github.com/stokaro/trustboard/auth"
	"github.com/stokaro/trustboard/cache"
	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/forum"
	"github.com/stokaro/trustboard/logging"
	"github.com/stokaro/trustboard/seo"
	"github.com/stokaro/trustboard/session"
	"github.com/stokaro/trustboard/uploads"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	Sessions  *session.Manager
	Auth      *auth.Service
	Forum     *forum.Service
	Directory *directory.Service
	Admin     *admin.Service
	Latest    *cache.Latest
	Uploads   *uploads.Storage
	Pages     *seo.Renderer
	Sitemap   seo.Source
	// Ping reports database health for /healthz.
	Ping func(ctx context.Context) error
	// BaseURL is the public origin. When empty it is derived from each
	// request.
	BaseURL string
	Clock   clock.Clock
}

// Server routes requests to the services.
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a server and registers its routes.
func New(deps Deps) *Server {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	s := &Server{deps: deps, mux: http.NewServeMux(), clock: clk, logger: slog.Default()}
	s.routes()
	return s
}

// WithLogger sets the logger for the server
func (s *Server) WithLogger(l *slog.Logger) *Server {
	tmp := *s
	tmp.logger = l
	tmp.mux = http.NewServeMux()
	tmp.routes()
	return &tmp
}

type apiFunc func(w http.ResponseWriter, r *http.Request) error

// requires wraps fn with the role check of its route.
func (s *Server) requires(role auth.Role, fn apiFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user *session.User
		if u, ok := currentUser(r); ok {
			user = &u
		}
		if err := auth.Authorize(user, role); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	})
}

func (s *Server) routes() {
	anyone, member, adminOnly := auth.RoleAnonymous, auth.RoleAuthenticated, auth.RoleAdmin

	api := func(pattern string, role auth.Role, fn apiFunc) {
		s.mux.Handle(pattern, s.requires(role, fn))
	}

	api("POST /api/auth/register", anyone, s.register)
	api("POST /api/auth/login", anyone, s.login)
	api("POST /api/auth/logout", anyone, s.logout)
	api("GET /api/auth/me", anyone, s.me)
	api("POST /api/auth/request-reset", anyone, s.requestReset)
	api("POST /api/auth/reset-password", anyone, s.resetPassword)
	api("POST /api/auth/change-password", member, s.changePassword)

	api("GET /api/posts", anyone, s.listPosts)
	api("POST /api/posts", member, s.createPost)
	api("GET /api/posts/{id}", anyone, s.getPost)
	api("POST /api/posts/{id}/comments", member, s.createComment)

	api("GET /api/companies", anyone, s.listCompanies)
	api("GET /api/companies/meta", anyone, s.companyMeta)
	api("POST /api/companies", member, s.createCompany)
	api("GET /api/companies/{id}", anyone, s.getCompany)
	api("POST /api/companies/{id}/reviews", member, s.createReview)

	api("GET /api/latest/posts", anyone, s.latestPosts)
	api("GET /api/latest/companies", anyone, s.latestCompanies)

	api("GET /api/mypage/posts", member, s.myPosts)
	api("GET /api/mypage/comments", member, s.myComments)
	api("GET /api/mypage/companies", member, s.myCompanies)

	api("GET /api/admin/posts", adminOnly, s.adminListPosts)
	api("PUT /api/admin/posts/{id}", adminOnly, s.adminEditPost)
	api("DELETE /api/admin/posts/{id}", adminOnly, s.adminDeletePost)
	api("POST /api/admin/posts/{id}/hide", adminOnly, s.adminHidePost)
	api("POST /api/admin/posts/{id}/unhide", adminOnly, s.adminUnhidePost)
	api("DELETE /api/admin/comments/{id}", adminOnly, s.adminDeleteComment)
	api("GET /api/admin/users", adminOnly, s.adminListUsers)
	api("PUT /api/admin/users/{id}/toggle-admin", adminOnly, s.adminToggleAdmin)
	api("DELETE /api/admin/users/{id}", adminOnly, s.adminDeleteUser)
	api("GET /api/admin/companies", adminOnly, s.adminListCompanies)
	api("PUT /api/admin/companies/{id}", adminOnly, s.adminUpdateCompany)
	api("DELETE /api/admin/companies/{id}", adminOnly, s.adminDeleteCompany)
	api("POST /api/admin/companies/{id}/certify", adminOnly, s.adminCertifyCompany)
	api("POST /api/admin/companies/{id}/uncertify", adminOnly, s.adminUncertifyCompany)
	api("POST /api/admin/moderation", adminOnly, s.adminModerate)

	s.mux.HandleFunc("/api/", s.unknownAPIRoute)

	s.mux.HandleFunc("GET /robots.txt", s.robots)
	s.mux.HandleFunc("GET /sitemap.xml", s.sitemap)
	s.mux.HandleFunc("GET /companies/{id}", s.companyPage)
	s.mux.HandleFunc("GET /posts/{id}", s.postPage)
	s.mux.HandleFunc("GET /healthz", s.health)
	if s.deps.Uploads != nil {
		s.mux.Handle("GET "+uploads.URLPrefix, s.deps.Uploads.Handler())
	}
}

// Handler returns the full handler chain: access log, panic recovery and
// session loading around the routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.deps.Sessions != nil {
		h = s.deps.Sessions.Middleware(h)
	}
	h = s.recoverer(h)
	return logging.AccessLog(s.logger, h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("Handler panic", "method", r.Method, "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				s.writeError(w, r, apperr.Internal(fmt.Errorf("panic: %v", v)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unknownAPIRoute(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, envelope{"error": fmt.Sprintf("Unknown API route: %s %s", r.Method, r.URL.Path)})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, envelope{"error": "database unavailable"})
			return
		}
	}
	s.ok(w, envelope{"status": "ok"})
}

func (s *Server) baseURL(r *http.Request) string {
	if s.deps.BaseURL != "" {
		return s.deps.BaseURL
	}
	return requestOrigin(r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully,
// waiting at most shutdownTimeout for in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
