package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"librarian/pkg/domain"
	"librarian/pkg/queue"
	"librarian/pkg/store"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) byType(eventType string) []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []queue.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func newTestApp(t *testing.T) (*App, *eventRecorder) {
	t.Helper()
	recorder := &eventRecorder{}
	a, err := New(Config{
		Store:               store.NewMemoryStore(),
		Events:              recorder,
		JWTSecret:           "test-secret-test-secret",
		FineRatePerDayCents: 50,
		LoanPeriodDays:      14,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, recorder
}

func addBook(t *testing.T, a *App, isbn string, copies int) domain.Book {
	t.Helper()
	book, err := a.AddBook(BookInput{
		ISBN:        isbn,
		Title:       "Title " + isbn,
		Category:    "Fiction",
		TotalCopies: copies,
	})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	return book
}

func registerMember(t *testing.T, a *App, number string) domain.Member {
	t.Helper()
	member, err := a.RegisterMember(MemberInput{
		MembershipNumber: number,
		FirstName:        "Sam",
		LastName:         "Borrower",
		MembershipExpiry: time.Now().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("register member: %v", err)
	}
	return member
}

func TestAddBookValidation(t *testing.T) {
	a, _ := newTestApp(t)
	cases := []struct {
		name string
		in   BookInput
	}{
		{"short isbn", BookInput{ISBN: "123", Title: "T", Category: "C", TotalCopies: 1}},
		{"missing title", BookInput{ISBN: "9781111111111", Category: "C", TotalCopies: 1}},
		{"missing category", BookInput{ISBN: "9781111111111", Title: "T", TotalCopies: 1}},
		{"zero copies", BookInput{ISBN: "9781111111111", Title: "T", Category: "C"}},
	}
	for _, tc := range cases {
		if _, err := a.AddBook(tc.in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", tc.name, err)
		}
	}

	available := 2
	book, err := a.AddBook(BookInput{
		ISBN: "9781111111111", Title: "T", Category: "C",
		TotalCopies: 5, AvailableCopies: &available,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if book.AvailableCopies != 2 {
		t.Fatalf("available = %d, want explicit 2", book.AvailableCopies)
	}

	defaulted := addBook(t, a, "9782222222222", 3)
	if defaulted.AvailableCopies != 3 {
		t.Fatalf("available = %d, want defaulted to total", defaulted.AvailableCopies)
	}
}

func TestAddBookRejectsDuplicateISBN(t *testing.T) {
	a, _ := newTestApp(t)
	addBook(t, a, "9781111111111", 1)
	_, err := a.AddBook(BookInput{ISBN: "9781111111111", Title: "Other", Category: "C", TotalCopies: 1})
	if !errors.Is(err, domain.ErrDuplicateISBN) {
		t.Fatalf("err = %v, want ErrDuplicateISBN", err)
	}
}

func TestUpdateBookCannotDropCopiesOnLoan(t *testing.T) {
	a, _ := newTestApp(t)
	book := addBook(t, a, "9781111111111", 3)
	member := registerMember(t, a, "M-100")
	if _, err := a.BorrowBook(context.Background(), LoanInput{MemberID: member.ID, BookID: book.ID}); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	lower := 0
	if _, err := a.UpdateBook(book.ID, BookUpdate{TotalCopies: &lower}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	raise := 5
	updated, err := a.UpdateBook(book.ID, BookUpdate{TotalCopies: &raise})
	if err != nil {
		t.Fatalf("raise copies: %v", err)
	}
	if updated.TotalCopies != 5 || updated.AvailableCopies != 4 {
		t.Fatalf("book = %d/%d, want 5 total 4 available", updated.TotalCopies, updated.AvailableCopies)
	}
}

func TestRegisterMemberValidation(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.RegisterMember(MemberInput{FirstName: "A", LastName: "B", MembershipExpiry: time.Now().AddDate(1, 0, 0)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing number err = %v, want ErrValidation", err)
	}
	_, err = a.RegisterMember(MemberInput{
		MembershipNumber: "M-1", FirstName: "A", LastName: "B",
		MembershipStart:  time.Now(),
		MembershipExpiry: time.Now().AddDate(0, 0, -1),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expiry before start err = %v, want ErrValidation", err)
	}

	member := registerMember(t, a, "M-1")
	if member.MaxBooksAllowed != defaultMaxBooks {
		t.Fatalf("maxBooks = %d, want default %d", member.MaxBooksAllowed, defaultMaxBooks)
	}
	if member.MembershipType != "Regular" {
		t.Fatalf("type = %q, want Regular", member.MembershipType)
	}
	if !member.Active {
		t.Fatalf("new member should be active")
	}
}

func TestBorrowBookDefaultsDueDateAndPublishes(t *testing.T) {
	a, recorder := newTestApp(t)
	book := addBook(t, a, "9781111111111", 1)
	member := registerMember(t, a, "M-1")

	loan, err := a.BorrowBook(context.Background(), LoanInput{MemberID: member.ID, BookID: book.ID})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	wantDue := domain.DateOnly(time.Now()).AddDate(0, 0, 14)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("due = %v, want %v", loan.DueDate, wantDue)
	}
	if loan.Status != domain.LoanActive {
		t.Fatalf("status = %s, want Active", loan.Status)
	}

	created := recorder.byType(queue.EventLoanCreated)
	if len(created) != 1 || created[0].LoanID != loan.ID {
		t.Fatalf("loan.created events = %+v, want one for %s", created, loan.ID)
	}
}

func TestBorrowBookRejectsDueBeforeLoanDate(t *testing.T) {
	a, _ := newTestApp(t)
	book := addBook(t, a, "9781111111111", 1)
	member := registerMember(t, a, "M-1")
	_, err := a.BorrowBook(context.Background(), LoanInput{
		MemberID: member.ID,
		BookID:   book.ID,
		LoanDate: time.Now(),
		DueDate:  time.Now().AddDate(0, 0, -3),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestReturnBookPublishes(t *testing.T) {
	a, recorder := newTestApp(t)
	book := addBook(t, a, "9781111111111", 1)
	member := registerMember(t, a, "M-1")
	loan, err := a.BorrowBook(context.Background(), LoanInput{MemberID: member.ID, BookID: book.ID})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := a.ReturnBook(context.Background(), loan.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if got := recorder.byType(queue.EventLoanReturned); len(got) != 1 {
		t.Fatalf("loan.returned events = %d, want 1", len(got))
	}
}

func TestReportLostRetiresCopyAndPublishes(t *testing.T) {
	a, recorder := newTestApp(t)
	book := addBook(t, a, "9781111111111", 2)
	member := registerMember(t, a, "M-1")
	loan, err := a.BorrowBook(context.Background(), LoanInput{MemberID: member.ID, BookID: book.ID})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := a.ReportLost(context.Background(), loan.ID); err != nil {
		t.Fatalf("report lost: %v", err)
	}
	updated, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if updated.TotalCopies != 1 {
		t.Fatalf("total = %d, want 1", updated.TotalCopies)
	}
	if got := recorder.byType(queue.EventLoanLost); len(got) != 1 {
		t.Fatalf("loan.lost events = %d, want 1", len(got))
	}
}

func TestRunOverdueSweepPublishesAndIsIdempotent(t *testing.T) {
	a, recorder := newTestApp(t)
	book := addBook(t, a, "9781111111111", 1)
	member := registerMember(t, a, "M-1")
	loanDate := time.Now().AddDate(0, 0, -30)
	loan, err := a.BorrowBook(context.Background(), LoanInput{
		MemberID: member.ID,
		BookID:   book.ID,
		LoanDate: loanDate,
		DueDate:  loanDate.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	fines, err := a.RunOverdueSweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fines) != 1 {
		t.Fatalf("fines = %d, want 1", len(fines))
	}
	if fines[0].AmountCents != 16*50 {
		t.Fatalf("amount = %d, want %d", fines[0].AmountCents, 16*50)
	}
	issued := recorder.byType(queue.EventFineIssued)
	if len(issued) != 1 || issued[0].LoanID != loan.ID {
		t.Fatalf("fine.issued events = %+v, want one for %s", issued, loan.ID)
	}
	if got := recorder.byType(queue.EventLoanOverdue); len(got) != 1 {
		t.Fatalf("loan.overdue events = %d, want 1", len(got))
	}

	fines, err = a.RunOverdueSweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(fines) != 0 {
		t.Fatalf("second sweep issued %d fines, want 0", len(fines))
	}
	if got := recorder.byType(queue.EventFineIssued); len(got) != 1 {
		t.Fatalf("fine.issued events after second sweep = %d, want still 1", len(got))
	}
}

func TestPayFineValidation(t *testing.T) {
	a, _ := newTestApp(t)
	if _, err := a.PayFine("any", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero payment err = %v, want ErrValidation", err)
	}
	if _, err := a.PayFine("missing", 100); !errors.Is(err, domain.ErrFineNotFound) {
		t.Fatalf("missing fine err = %v, want ErrFineNotFound", err)
	}
}

func TestLoginFlow(t *testing.T) {
	a, _ := newTestApp(t)
	staff, err := a.CreateStaff("desk", "correct-horse", domain.RoleLibrarian)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	token, logged, err := a.Login("desk", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != staff.ID {
		t.Fatalf("logged in as %s, want %s", logged.ID, staff.ID)
	}
	claims, err := a.VerifySession(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.StaffID != staff.ID || claims.Role != string(domain.RoleLibrarian) {
		t.Fatalf("claims = %+v, want staff %s", claims, staff.ID)
	}

	if _, _, err := a.Login("desk", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Login("nobody", "whatever"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestCreateStaffValidation(t *testing.T) {
	a, _ := newTestApp(t)
	if _, err := a.CreateStaff("", "longenough", domain.RoleAdmin); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty username err = %v, want ErrValidation", err)
	}
	if _, err := a.CreateStaff("desk", "short", domain.RoleAdmin); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short password err = %v, want ErrValidation", err)
	}
	if _, err := a.CreateStaff("desk", "longenough", "intern"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad role err = %v, want ErrValidation", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.EnsureAdmin("admin", "bootstrap-pass"); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if err := a.EnsureAdmin("admin", "bootstrap-pass"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if _, _, err := a.Login("admin", "bootstrap-pass"); err != nil {
		t.Fatalf("login as bootstrap admin: %v", err)
	}
}

func TestCoverEndpointsWithoutStorage(t *testing.T) {
	a, _ := newTestApp(t)
	book := addBook(t, a, "9781111111111", 1)
	if err := a.UploadCover(context.Background(), book.ID, nil, 0, "image/png"); !errors.Is(err, ErrCoversNotConfigured) {
		t.Fatalf("upload err = %v, want ErrCoversNotConfigured", err)
	}
	if _, err := a.CoverURL(context.Background(), book.ID); !errors.Is(err, ErrCoversNotConfigured) {
		t.Fatalf("url err = %v, want ErrCoversNotConfigured", err)
	}
}
