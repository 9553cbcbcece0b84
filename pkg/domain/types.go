package domain

import "time"

type LoanStatus string

const (
	LoanActive   LoanStatus = "Active"
	LoanReturned LoanStatus = "Returned"
	LoanOverdue  LoanStatus = "Overdue"
	LoanLost     LoanStatus = "Lost"
	LoanDamaged  LoanStatus = "Damaged"
)

// Open reports whether the loan still holds a copy of the book.
func (s LoanStatus) Open() bool {
	return s == LoanActive || s == LoanOverdue
}

// Terminal reports whether no further transition is possible.
func (s LoanStatus) Terminal() bool {
	return s == LoanReturned || s == LoanLost || s == LoanDamaged
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
)

type StaffRole string

const (
	RoleLibrarian StaffRole = "librarian"
	RoleAdmin     StaffRole = "admin"
)

// Book is a catalog entry. AvailableCopies is a cached aggregate over open
// loans; the loan transactions are authoritative and ReconcileAvailability
// repairs drift.
type Book struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Subtitle        string    `json:"subtitle,omitempty"`
	Category        string    `json:"category"`
	Publisher       string    `json:"publisher,omitempty"`
	Edition         int       `json:"edition"`
	Pages           int       `json:"pages,omitempty"`
	Language        string    `json:"language,omitempty"`
	LocationShelf   string    `json:"locationShelf,omitempty"`
	PriceCents      int64     `json:"priceCents,omitempty"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	CoverKey        string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Member struct {
	ID               string    `json:"id"`
	MembershipNumber string    `json:"membershipNumber"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	MembershipType   string    `json:"membershipType"`
	MembershipStart  time.Time `json:"membershipStart"`
	MembershipExpiry time.Time `json:"membershipExpiry"`
	Active           bool      `json:"active"`
	MaxBooksAllowed  int       `json:"maxBooksAllowed"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type LoanTransaction struct {
	ID         string     `json:"id"`
	MemberID   string     `json:"memberId"`
	BookID     string     `json:"bookId"`
	StaffID    string     `json:"staffId,omitempty"`
	LoanDate   time.Time  `json:"loanDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     LoanStatus `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ReturnedLate reports whether the loan was returned after its due date.
func (l LoanTransaction) ReturnedLate() bool {
	return l.ReturnDate != nil && l.ReturnDate.After(l.DueDate)
}

type Fine struct {
	ID          string        `json:"id"`
	MemberID    string        `json:"memberId"`
	LoanID      *string       `json:"loanId,omitempty"`
	AmountCents int64         `json:"amountCents"`
	PaidCents   int64         `json:"paidCents"`
	Status      PaymentStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Staff struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         StaffRole `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Stats holds dashboard aggregates.
type Stats struct {
	TotalBooks            int64 `json:"totalBooks"`
	AvailableCopies       int64 `json:"availableCopies"`
	ActiveMembers         int64 `json:"activeMembers"`
	ActiveLoans           int64 `json:"activeLoans"`
	OverdueLoans          int64 `json:"overdueLoans"`
	OutstandingFinesCents int64 `json:"outstandingFinesCents"`
}

// FinePolicy computes the fine amount for a loan overdue since dueDate.
type FinePolicy func(dueDate, asOf time.Time) int64

// PerDayFine charges rateCents per started day past the due date, with a
// minimum of one day.
func PerDayFine(rateCents int64) FinePolicy {
	return func(dueDate, asOf time.Time) int64 {
		days := int64(DateOnly(asOf).Sub(DateOnly(dueDate)).Hours() / 24)
		if days < 1 {
			days = 1
		}
		return days * rateCents
	}
}

// DateOnly truncates a timestamp to midnight UTC. Loan and membership dates
// are compared at day granularity.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
