package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"librarian/pkg/domain"
	"librarian/pkg/queue"
	"librarian/pkg/store"
)

// LoanInput carries the fields accepted when checking a book out. LoanDate
// defaults to now and DueDate to the configured loan period after it.
type LoanInput struct {
	MemberID string    `json:"memberId"`
	BookID   string    `json:"bookId"`
	StaffID  string    `json:"staffId"`
	LoanDate time.Time `json:"loanDate"`
	DueDate  time.Time `json:"dueDate"`
	Notes    string    `json:"notes"`
}

// BorrowBook checks a book out to a member. Availability, membership status,
// capacity and the one-open-loan-per-book rule are enforced atomically by the
// store.
func (a *App) BorrowBook(ctx context.Context, in LoanInput) (domain.LoanTransaction, error) {
	if in.MemberID == "" || in.BookID == "" {
		return domain.LoanTransaction{}, invalid("memberId and bookId are required")
	}
	loanDate := in.LoanDate
	if loanDate.IsZero() {
		loanDate = time.Now()
	}
	loanDate = domain.DateOnly(loanDate)
	dueDate := in.DueDate
	if dueDate.IsZero() {
		dueDate = loanDate.AddDate(0, 0, a.loanPeriod)
	}
	dueDate = domain.DateOnly(dueDate)
	if dueDate.Before(loanDate) {
		return domain.LoanTransaction{}, invalid("dueDate cannot be before loanDate")
	}
	loan := domain.LoanTransaction{
		ID:       uuid.NewString(),
		MemberID: in.MemberID,
		BookID:   in.BookID,
		StaffID:  in.StaffID,
		LoanDate: loanDate,
		DueDate:  dueDate,
		Status:   domain.LoanActive,
		Notes:    in.Notes,
	}
	created, err := a.store.CreateLoan(loan)
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	a.publish(ctx, queue.Event{
		Type:       queue.EventLoanCreated,
		LoanID:     created.ID,
		BookID:     created.BookID,
		MemberID:   created.MemberID,
		OccurredAt: time.Now(),
	})
	return created, nil
}

// ReturnBook records a return and puts the copy back in circulation.
func (a *App) ReturnBook(ctx context.Context, loanID string) (domain.LoanTransaction, error) {
	loan, err := a.store.ReturnLoan(loanID, time.Now())
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	a.publish(ctx, queue.Event{
		Type:       queue.EventLoanReturned,
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		MemberID:   loan.MemberID,
		OccurredAt: time.Now(),
	})
	return loan, nil
}

// ReportLost closes a loan as Lost and retires the copy from the catalog.
func (a *App) ReportLost(ctx context.Context, loanID string) (domain.LoanTransaction, error) {
	return a.closeLoan(ctx, loanID, domain.LoanLost, queue.EventLoanLost)
}

// ReportDamaged closes a loan as Damaged and retires the copy.
func (a *App) ReportDamaged(ctx context.Context, loanID string) (domain.LoanTransaction, error) {
	return a.closeLoan(ctx, loanID, domain.LoanDamaged, queue.EventLoanDamaged)
}

func (a *App) closeLoan(ctx context.Context, loanID string, status domain.LoanStatus, eventType string) (domain.LoanTransaction, error) {
	loan, err := a.store.CloseLoan(loanID, status)
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	a.publish(ctx, queue.Event{
		Type:       eventType,
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		MemberID:   loan.MemberID,
		OccurredAt: time.Now(),
	})
	return loan, nil
}

// GetLoan loads one loan transaction.
func (a *App) GetLoan(id string) (domain.LoanTransaction, error) {
	loan, ok, err := a.store.GetLoan(id)
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	if !ok {
		return domain.LoanTransaction{}, domain.ErrLoanNotFound
	}
	return loan, nil
}

// ListLoans pages through loan transactions with optional filters.
func (a *App) ListLoans(f store.LoanFilter) ([]domain.LoanTransaction, int64, error) {
	f.Page = f.Page.Normalize()
	return a.store.ListLoans(f)
}
