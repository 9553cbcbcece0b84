package store

import (
	"time"

	"github.com/google/uuid"

	"librarian/pkg/domain"
)

// newFineID generates identifiers for fines issued inside the store. Other
// entities get their IDs from the application layer.
func newFineID() string { return uuid.NewString() }

// Page describes offset pagination for list queries.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps page parameters to sane defaults (page 1, size 10, cap 100).
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 10
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

type BookFilter struct {
	Search    string
	Category  string
	Available *bool
	Page      Page
}

type MemberFilter struct {
	Search string
	Type   string
	Active *bool
	Page   Page
}

type LoanFilter struct {
	MemberID string
	BookID   string
	Status   domain.LoanStatus
	Page     Page
}

type FineFilter struct {
	MemberID string
	Status   domain.PaymentStatus
	Page     Page
}

// Drift reports a book whose cached available_copies disagreed with the count
// derived from open loan transactions.
type Drift struct {
	BookID   string `json:"bookId"`
	ISBN     string `json:"isbn"`
	Recorded int    `json:"recorded"`
	Expected int    `json:"expected"`
}

// Store defines persistence for the circulation domain. Loan mutations are
// atomic: the available-copy change and the transaction state change commit
// together or not at all.
type Store interface {
	// books
	CreateBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	UpdateBook(domain.Book) error
	SetBookCoverKey(id, key string) error
	DeleteBook(id string) error
	ListBooks(BookFilter) ([]domain.Book, int64, error)

	// members
	CreateMember(domain.Member) error
	GetMember(id string) (domain.Member, bool, error)
	UpdateMember(domain.Member) error
	DeactivateMember(id string) error
	ListMembers(MemberFilter) ([]domain.Member, int64, error)

	// loan lifecycle
	CreateLoan(domain.LoanTransaction) (domain.LoanTransaction, error)
	ReturnLoan(id string, returnedAt time.Time) (domain.LoanTransaction, error)
	CloseLoan(id string, status domain.LoanStatus) (domain.LoanTransaction, error)
	GetLoan(id string) (domain.LoanTransaction, bool, error)
	ListLoans(LoanFilter) ([]domain.LoanTransaction, int64, error)

	// fines
	SweepOverdue(asOf time.Time, policy domain.FinePolicy) ([]domain.Fine, error)
	GetFine(id string) (domain.Fine, bool, error)
	ListFines(FineFilter) ([]domain.Fine, int64, error)
	RecordFinePayment(id string, amountCents int64) (domain.Fine, error)

	// staff
	CreateStaff(domain.Staff) error
	GetStaffByUsername(username string) (domain.Staff, bool, error)

	// bookkeeping
	ReconcileAvailability() ([]Drift, error)
	Stats() (domain.Stats, error)
}
