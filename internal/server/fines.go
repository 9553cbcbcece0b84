package server

import (
	"net/http"
	"strings"

	"librarian/pkg/domain"
	"librarian/pkg/store"
)

func (s *Server) handleFines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	filter := store.FineFilter{
		MemberID: strings.TrimSpace(q.Get("memberId")),
		Page:     parsePage(r),
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, ok := parsePaymentStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid payment status")
			return
		}
		filter.Status = status
	}
	fines, total, err := s.app.ListFines(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	writeList(w, fines, total, filter.Page)
}

// /api/fines/{id} or /api/fines/{id}/payments
func (s *Server) handleFineByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/fines/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "payments" {
			notFound(w)
			return
		}
		s.handleFinePayment(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	fine, err := s.app.GetFine(id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

type paymentRequest struct {
	AmountCents int64 `json:"amountCents"`
}

func (s *Server) handleFinePayment(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fine, err := s.app.PayFine(id, req.AmountCents)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

func parsePaymentStatus(status string) (domain.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "unpaid":
		return domain.PaymentUnpaid, true
	case "partial":
		return domain.PaymentPartial, true
	case "paid":
		return domain.PaymentPaid, true
	default:
		return "", false
	}
}
