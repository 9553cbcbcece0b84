package server

import (
	"net/http"
	"strconv"
	"strings"

	"librarian/internal/app"
	"librarian/pkg/store"
)

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListMembers(w, r)
	case http.MethodPost:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		var in app.MemberInput
		if !decodeJSON(w, r, &in) {
			return
		}
		member, err := s.app.RegisterMember(in)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, member)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MemberFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Type:   strings.TrimSpace(q.Get("type")),
		Page:   parsePage(r),
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "active must be a boolean")
			return
		}
		filter.Active = &active
	}
	members, total, err := s.app.ListMembers(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	writeList(w, members, total, filter.Page)
}

// /api/members/{id}
func (s *Server) handleMemberByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/members/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		member, err := s.app.GetMember(id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	case http.MethodPut:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		var upd app.MemberUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}
		member, err := s.app.UpdateMember(id, upd)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	case http.MethodDelete:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		if err := s.app.DeactivateMember(id); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	default:
		methodNotAllowed(w)
	}
}
