// Package server exposes the library circulation HTTP API. Read endpoints are
// open; every mutating endpoint requires a staff session token.
package server

import (
	"net/http"
	"strconv"

	"librarian/internal/app"
	"librarian/internal/ratelimit"
	"librarian/internal/stafftoken"
	"librarian/internal/util"
	"librarian/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        *ratelimit.FixedWindowLimiter
	TrustForwarded bool
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the library API.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	trustForwarded bool
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 8 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.Limiter,
		mux:            http.NewServeMux(),
		trustForwarded: cfg.TrustForwarded,
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the shared middleware.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(h))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.HandleFunc("/api/members", s.handleMembers)
	s.mux.HandleFunc("/api/members/", s.handleMemberByID)
	s.mux.HandleFunc("/api/loans", s.handleLoans)
	s.mux.HandleFunc("/api/loans/", s.handleLoanByID)
	s.mux.HandleFunc("/api/fines", s.handleFines)
	s.mux.HandleFunc("/api/fines/", s.handleFineByID)
	s.mux.HandleFunc("/api/stats", s.handleStats)

	s.mux.Handle("/api/admin/staff", s.withStaff(s.handleCreateStaff))
	s.mux.Handle("/api/admin/overdue-sweep", s.withStaff(s.handleOverdueSweep))
	s.mux.Handle("/api/admin/reconcile", s.withStaff(s.handleReconcile))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type staffHandler func(http.ResponseWriter, *http.Request, stafftoken.Claims)

func (s *Server) withStaff(next staffHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}
		claims, err := s.app.VerifySession(token)
		if err != nil {
			unauthorized(w)
			return
		}
		next(w, r, claims)
	})
}

// requireStaff is the inline form used inside method-dispatch handlers.
func (s *Server) requireStaff(w http.ResponseWriter, r *http.Request) (stafftoken.Claims, bool) {
	token, ok := bearerToken(r)
	if !ok {
		unauthorized(w)
		return stafftoken.Claims{}, false
	}
	claims, err := s.app.VerifySession(token)
	if err != nil {
		unauthorized(w)
		return stafftoken.Claims{}, false
	}
	return claims, true
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(util.ClientIP(r, s.trustForwarded)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parsePage(r *http.Request) store.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return store.Page{Number: page, Size: size}.Normalize()
}

type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func writeList[T any](w http.ResponseWriter, items []T, total int64, page store.Page) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse[T]{
		Items:    items,
		Total:    total,
		Page:     page.Number,
		PageSize: page.Size,
	})
}
