package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"librarian/internal/app"
	"librarian/pkg/domain"
	"librarian/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	appCore, err := app.New(app.Config{
		Store:               store.NewMemoryStore(),
		JWTSecret:           "test-secret-test-secret",
		FineRatePerDayCents: 50,
		LoanPeriodDays:      14,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := appCore.EnsureAdmin("admin", "bootstrap-pass"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: appCore}).Router())
	t.Cleanup(srv.Close)

	token := login(t, srv, "admin", "bootstrap-pass")
	return srv, token
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	body, status := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d body %s", status, body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response %s: %v", body, err)
	}
	return resp.Token
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, payload any) ([]byte, int) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes(), resp.StatusCode
}

func createBook(t *testing.T, srv *httptest.Server, token, isbn string, copies int) domain.Book {
	t.Helper()
	body, status := doJSON(t, srv, http.MethodPost, "/api/books", token, map[string]any{
		"isbn":        isbn,
		"title":       "Title " + isbn,
		"category":    "Fiction",
		"totalCopies": copies,
	})
	if status != http.StatusCreated {
		t.Fatalf("create book status = %d body %s", status, body)
	}
	var book domain.Book
	if err := json.Unmarshal(body, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return book
}

func createMember(t *testing.T, srv *httptest.Server, token, number string) domain.Member {
	t.Helper()
	body, status := doJSON(t, srv, http.MethodPost, "/api/members", token, map[string]any{
		"membershipNumber": number,
		"firstName":        "Sam",
		"lastName":         "Borrower",
		"membershipExpiry": time.Now().AddDate(1, 0, 0).Format(time.RFC3339),
	})
	if status != http.StatusCreated {
		t.Fatalf("create member status = %d body %s", status, body)
	}
	var member domain.Member
	if err := json.Unmarshal(body, &member); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	return member
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	body, status := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d body %s", status, body)
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/books"},
		{http.MethodPost, "/api/members"},
		{http.MethodPost, "/api/loans"},
		{http.MethodPost, "/api/admin/overdue-sweep"},
		{http.MethodPost, "/api/admin/reconcile"},
	}
	for _, p := range paths {
		body, status := doJSON(t, srv, p.method, p.path, "", map[string]string{})
		if status != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d body %s, want 401", p.method, p.path, status, body)
		}
	}
}

func TestReadsAreOpen(t *testing.T) {
	srv, token := newTestServer(t)
	createBook(t, srv, token, "9781111111111", 2)

	body, status := doJSON(t, srv, http.MethodGet, "/api/books", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d body %s", status, body)
	}
	var list struct {
		Items []domain.Book `json:"items"`
		Total int64         `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("list = %+v, want one book", list)
	}
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	srv, token := newTestServer(t)
	book := createBook(t, srv, token, "9781111111111", 1)
	member := createMember(t, srv, token, "M-1")

	body, status := doJSON(t, srv, http.MethodPost, "/api/loans", token, map[string]string{
		"memberId": member.ID,
		"bookId":   book.ID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create loan status = %d body %s", status, body)
	}
	var loan domain.LoanTransaction
	if err := json.Unmarshal(body, &loan); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	if loan.Status != domain.LoanActive {
		t.Fatalf("status = %s, want Active", loan.Status)
	}

	// Second loan for the last copy conflicts.
	other := createMember(t, srv, token, "M-2")
	body, status = doJSON(t, srv, http.MethodPost, "/api/loans", token, map[string]string{
		"memberId": other.ID,
		"bookId":   book.ID,
	})
	if status != http.StatusConflict {
		t.Fatalf("unavailable loan status = %d body %s, want 409", status, body)
	}
	var errResp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Code != "BOOK_UNAVAILABLE" {
		t.Fatalf("error body = %s, want code BOOK_UNAVAILABLE", body)
	}

	// Return, then the conflict clears.
	body, status = doJSON(t, srv, http.MethodPost, "/api/loans/"+loan.ID+"/return", token, nil)
	if status != http.StatusOK {
		t.Fatalf("return status = %d body %s", status, body)
	}

	body, status = doJSON(t, srv, http.MethodPost, "/api/loans/"+loan.ID+"/return", token, nil)
	if status != http.StatusConflict {
		t.Fatalf("double return status = %d body %s, want 409", status, body)
	}

	_, status = doJSON(t, srv, http.MethodPost, "/api/loans", token, map[string]string{
		"memberId": other.ID,
		"bookId":   book.ID,
	})
	if status != http.StatusCreated {
		t.Fatalf("loan after return status = %d, want 201", status)
	}
}

func TestOverdueSweepAndFinePaymentOverHTTP(t *testing.T) {
	srv, token := newTestServer(t)
	book := createBook(t, srv, token, "9781111111111", 1)
	member := createMember(t, srv, token, "M-1")

	loanDate := time.Now().AddDate(0, 0, -30)
	body, status := doJSON(t, srv, http.MethodPost, "/api/loans", token, map[string]string{
		"memberId": member.ID,
		"bookId":   book.ID,
		"loanDate": loanDate.Format(time.RFC3339),
		"dueDate":  loanDate.AddDate(0, 0, 14).Format(time.RFC3339),
	})
	if status != http.StatusCreated {
		t.Fatalf("create loan status = %d body %s", status, body)
	}

	body, status = doJSON(t, srv, http.MethodPost, "/api/admin/overdue-sweep", token, nil)
	if status != http.StatusOK {
		t.Fatalf("sweep status = %d body %s", status, body)
	}
	var sweep struct {
		FinesIssued int           `json:"finesIssued"`
		Fines       []domain.Fine `json:"fines"`
	}
	if err := json.Unmarshal(body, &sweep); err != nil {
		t.Fatalf("decode sweep: %v", err)
	}
	if sweep.FinesIssued != 1 {
		t.Fatalf("finesIssued = %d body %s, want 1", sweep.FinesIssued, body)
	}
	fine := sweep.Fines[0]

	body, status = doJSON(t, srv, http.MethodPost, "/api/fines/"+fine.ID+"/payments", token, map[string]int64{
		"amountCents": fine.AmountCents,
	})
	if status != http.StatusOK {
		t.Fatalf("payment status = %d body %s", status, body)
	}
	var paid domain.Fine
	if err := json.Unmarshal(body, &paid); err != nil {
		t.Fatalf("decode fine: %v", err)
	}
	if paid.Status != domain.PaymentPaid {
		t.Fatalf("status = %s, want Paid", paid.Status)
	}

	body, status = doJSON(t, srv, http.MethodPost, "/api/fines/"+fine.ID+"/payments", token, map[string]int64{
		"amountCents": 1,
	})
	if status != http.StatusConflict {
		t.Fatalf("overpayment status = %d body %s, want 409", status, body)
	}
}

func TestValidationErrorsReturn400(t *testing.T) {
	srv, token := newTestServer(t)
	body, status := doJSON(t, srv, http.MethodPost, "/api/books", token, map[string]any{
		"isbn":        "123",
		"title":       "T",
		"category":    "C",
		"totalCopies": 1,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d body %s, want 400", status, body)
	}
	var errResp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Code != "REQUEST_INVALID" {
		t.Fatalf("error body = %s, want code REQUEST_INVALID", body)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	srv, token := newTestServer(t)
	_, status := doJSON(t, srv, http.MethodPost, "/api/books", token, map[string]any{
		"isbn":        "9781111111111",
		"title":       "T",
		"category":    "C",
		"totalCopies": 1,
		"bogus":       true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown field", status)
	}
}

func TestNotFoundResponses(t *testing.T) {
	srv, token := newTestServer(t)
	cases := []struct {
		method string
		path   string
		code   string
	}{
		{http.MethodGet, "/api/books/missing", "BOOK_NOT_FOUND"},
		{http.MethodGet, "/api/members/missing", "MEMBER_NOT_FOUND"},
		{http.MethodGet, "/api/loans/missing", "LOAN_NOT_FOUND"},
		{http.MethodGet, "/api/fines/missing", "FINE_NOT_FOUND"},
	}
	for _, tc := range cases {
		body, status := doJSON(t, srv, tc.method, tc.path, token, nil)
		if status != http.StatusNotFound {
			t.Fatalf("%s status = %d body %s, want 404", tc.path, status, body)
		}
		var errResp struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Code != tc.code {
			t.Fatalf("%s error body = %s, want code %s", tc.path, body, tc.code)
		}
	}
}

func TestStaffCreationRequiresAdminRole(t *testing.T) {
	srv, adminToken := newTestServer(t)
	body, status := doJSON(t, srv, http.MethodPost, "/api/admin/staff", adminToken, map[string]string{
		"username": "desk",
		"password": "longenough",
		"role":     "librarian",
	})
	if status != http.StatusCreated {
		t.Fatalf("create staff status = %d body %s", status, body)
	}

	deskToken := login(t, srv, "desk", "longenough")
	body, status = doJSON(t, srv, http.MethodPost, "/api/admin/staff", deskToken, map[string]string{
		"username": "desk2",
		"password": "longenough",
		"role":     "librarian",
	})
	if status != http.StatusForbidden {
		t.Fatalf("non-admin create staff status = %d body %s, want 403", status, body)
	}
}

func TestStatsAndReconcileEndpoints(t *testing.T) {
	srv, token := newTestServer(t)
	book := createBook(t, srv, token, "9781111111111", 3)
	member := createMember(t, srv, token, "M-1")
	if _, status := doJSON(t, srv, http.MethodPost, "/api/loans", token, map[string]string{
		"memberId": member.ID,
		"bookId":   book.ID,
	}); status != http.StatusCreated {
		t.Fatalf("create loan status = %d", status)
	}

	body, status := doJSON(t, srv, http.MethodGet, "/api/stats", "", nil)
	if status != http.StatusOK {
		t.Fatalf("stats status = %d body %s", status, body)
	}
	var stats domain.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalBooks != 1 || stats.ActiveLoans != 1 || stats.AvailableCopies != 2 {
		t.Fatalf("stats = %+v, want 1 book, 1 active loan, 2 available", stats)
	}

	body, status = doJSON(t, srv, http.MethodPost, "/api/admin/reconcile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("reconcile status = %d body %s", status, body)
	}
	var rec struct {
		DriftCount int `json:"driftCount"`
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode reconcile: %v", err)
	}
	if rec.DriftCount != 0 {
		t.Fatalf("driftCount = %d, want 0", rec.DriftCount)
	}
}

func TestPaginationParams(t *testing.T) {
	srv, token := newTestServer(t)
	for i := 0; i < 15; i++ {
		createBook(t, srv, token, fmt.Sprintf("97811111111%02d", i), 1)
	}
	body, status := doJSON(t, srv, http.MethodGet, "/api/books?page=2&pageSize=10", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d body %s", status, body)
	}
	var list struct {
		Items    []domain.Book `json:"items"`
		Total    int64         `json:"total"`
		Page     int           `json:"page"`
		PageSize int           `json:"pageSize"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 15 || len(list.Items) != 5 || list.Page != 2 {
		t.Fatalf("list = total %d page %d items %d, want 15/2/5", list.Total, list.Page, len(list.Items))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, token := newTestServer(t)
	body, status := doJSON(t, srv, http.MethodDelete, "/api/stats", token, nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d body %s, want 405", status, body)
	}
}
