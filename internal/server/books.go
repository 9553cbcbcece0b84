package server

import (
	"net/http"
	"strconv"
	"strings"

	"librarian/internal/app"
	"librarian/pkg/store"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r)
	case http.MethodPost:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		s.handleAddBook(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BookFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
		Page:     parsePage(r),
	}
	if v := q.Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "available must be a boolean")
			return
		}
		filter.Available = &available
	}
	books, total, err := s.app.ListBooks(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	writeList(w, books, total, filter.Page)
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var in app.BookInput
	if !decodeJSON(w, r, &in) {
		return
	}
	book, err := s.app.AddBook(in)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// /api/books/{id} or /api/books/{id}/cover
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "cover" {
			notFound(w)
			return
		}
		s.handleBookCover(w, r, id)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		var upd app.BookUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}
		book, err := s.app.UpdateBook(id, upd)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		if err := s.app.RemoveBook(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookCover(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		url, err := s.app.CoverURL(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case http.MethodPut:
		if _, ok := s.requireStaff(w, r); !ok {
			return
		}
		contentType := r.Header.Get("Content-Type")
		body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		err := s.app.UploadCover(r.Context(), id, body, r.ContentLength, contentType)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "uploaded"})
	default:
		methodNotAllowed(w)
	}
}
