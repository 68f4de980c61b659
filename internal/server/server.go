// Package server provides the HTTP API for the insight data-sync service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/imvu-insight/datasync/internal/auth"
	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/config"
	"github.com/imvu-insight/datasync/internal/store"
)

// RecordStore is the persistence surface for upload records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *store.DataSyncRecord) error
	LatestRecordByHash(ctx context.Context, hash string) (*store.DataSyncRecord, error)
	ListRecords(ctx context.Context, page, pageSize int, typ classify.DataType) ([]store.DataSyncRecord, int64, error)
	DeleteRecord(ctx context.Context, id int64) (bool, error)
	DeleteRecordsByHash(ctx context.Context, hash string) (int64, error)
}

// UserStore is the persistence surface for operator accounts.
type UserStore interface {
	UserByCredentials(ctx context.Context, username, passwordHash string) (*store.User, error)
	UserByID(ctx context.Context, id int64) (*store.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// TokenStore is the persistence surface for refresh tokens.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, rt *store.RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash string) (*store.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error
}

// Server is the HTTP server for the data-sync API.
type Server struct {
	records RecordStore
	users   UserStore
	tokens  TokenStore
	auth    *auth.Manager
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	imports *importLimiter
	now     func() time.Time
}

// New creates a Server wired to its stores and token manager.
func New(records RecordStore, users UserStore, tokens TokenStore, authMgr *auth.Manager, cfg *config.Config) *Server {
	s := &Server{
		records: records,
		users:   users,
		tokens:  tokens,
		auth:    authMgr,
		cfg:     cfg,
		router:  chi.NewRouter(),
		imports: newImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWait),
		now:     time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/insight/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.With(s.requireAuth).Get("/me", s.handleCurrentUser)
		})

		r.Route("/data-sync", func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/list", s.handleListRecords)
			r.Get("/by-hash", s.handleRecordByHash)
			r.Delete("/object", s.handleDeleteRecord)
			r.Post("/product/import", s.handleImport(classify.Product))
			r.Post("/income/import", s.handleImport(classify.Income))
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight imports to
// finish before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if s.imports.activeCount() > 0 {
		if err := s.imports.waitForDrain(ctx); err != nil {
			return fmt.Errorf("imports did not drain: %w", err)
		}
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok || time.Since(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware enforces the rate limit per remote IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
