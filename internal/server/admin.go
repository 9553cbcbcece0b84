package server

import (
	"net/http"
	"time"

	"librarian/internal/stafftoken"
	"librarian/pkg/domain"
	"librarian/pkg/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, staff, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"staff": staff,
	})
}

type createStaffRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request, claims stafftoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if claims.Role != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "AUTH_FORBIDDEN", "admin role required")
		return
	}
	var req createStaffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	staff, err := s.app.CreateStaff(req.Username, req.Password, domain.StaffRole(req.Role))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, staff)
}

func (s *Server) handleOverdueSweep(w http.ResponseWriter, r *http.Request, _ stafftoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	fines, err := s.app.RunOverdueSweep(r.Context(), time.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	if fines == nil {
		fines = []domain.Fine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"finesIssued": len(fines),
		"fines":       fines,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, _ stafftoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	drifts, err := s.app.Reconcile()
	if err != nil {
		respondError(w, err)
		return
	}
	if drifts == nil {
		drifts = []store.Drift{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"driftCount": len(drifts),
		"drifts":     drifts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats()
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
