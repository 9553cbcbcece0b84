package server

import (
	"net/http"
	"strings"

	"librarian/internal/app"
	"librarian/pkg/domain"
	"librarian/pkg/store"
)

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListLoans(w, r)
	case http.MethodPost:
		claims, ok := s.requireStaff(w, r)
		if !ok {
			return
		}
		var in app.LoanInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if in.StaffID == "" {
			in.StaffID = claims.StaffID
		}
		loan, err := s.app.BorrowBook(r.Context(), in)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, loan)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LoanFilter{
		MemberID: strings.TrimSpace(q.Get("memberId")),
		BookID:   strings.TrimSpace(q.Get("bookId")),
		Page:     parsePage(r),
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, ok := parseLoanStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid loan status")
			return
		}
		filter.Status = status
	}
	loans, total, err := s.app.ListLoans(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	writeList(w, loans, total, filter.Page)
}

// /api/loans/{id} or /api/loans/{id}/return|lost|damaged
func (s *Server) handleLoanByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/loans/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		s.handleLoanAction(w, r, id, parts[1])
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	loan, err := s.app.GetLoan(id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleLoanAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	var (
		loan domain.LoanTransaction
		err  error
	)
	switch action {
	case "return":
		loan, err = s.app.ReturnBook(r.Context(), id)
	case "lost":
		loan, err = s.app.ReportLost(r.Context(), id)
	case "damaged":
		loan, err = s.app.ReportDamaged(r.Context(), id)
	default:
		notFound(w)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func parseLoanStatus(status string) (domain.LoanStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return domain.LoanActive, true
	case "returned":
		return domain.LoanReturned, true
	case "overdue":
		return domain.LoanOverdue, true
	case "lost":
		return domain.LoanLost, true
	case "damaged":
		return domain.LoanDamaged, true
	default:
		return "", false
	}
}
