package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"librarian/pkg/domain"
)

// MemoryStore keeps all records in-process behind one mutex, which gives the
// same atomicity guarantees for loan mutations as the Postgres transactions
// in GormStore. Used in tests and for local development without a database.
type MemoryStore struct {
	mu      sync.Mutex
	books   map[string]domain.Book
	members map[string]domain.Member
	loans   map[string]domain.LoanTransaction
	fines   map[string]domain.Fine
	staff   map[string]domain.Staff
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[string]domain.Book),
		members: make(map[string]domain.Member),
		loans:   make(map[string]domain.LoanTransaction),
		fines:   make(map[string]domain.Fine),
		staff:   make(map[string]domain.Staff),
	}
}

// ---- books ----

func (m *MemoryStore) CreateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.books {
		if existing.ISBN == b.ISBN {
			return domain.ErrDuplicateISBN
		}
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) UpdateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.books[b.ID]
	if !ok {
		return domain.ErrBookNotFound
	}
	for _, other := range m.books {
		if other.ID != b.ID && other.ISBN == b.ISBN {
			return domain.ErrDuplicateISBN
		}
	}
	available := existing.AvailableCopies + (b.TotalCopies - existing.TotalCopies)
	if available < 0 {
		return domain.ErrValidation
	}
	b.AvailableCopies = available
	b.CoverKey = existing.CoverKey
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) SetBookCoverKey(id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return domain.ErrBookNotFound
	}
	b.CoverKey = key
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return nil
}

func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	for _, loan := range m.loans {
		if loan.BookID == id {
			return domain.ErrActiveLoans
		}
	}
	delete(m.books, id)
	return nil
}

func (m *MemoryStore) ListBooks(f BookFilter) ([]domain.Book, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if f.Search != "" && !containsFold(b.Title, f.Search) && !containsFold(b.ISBN, f.Search) {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.Available != nil {
			if *f.Available && b.AvailableCopies == 0 {
				continue
			}
			if !*f.Available && b.AvailableCopies > 0 {
				continue
			}
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })
	total := int64(len(matched))
	return paginate(matched, f.Page), total, nil
}

// ---- members ----

func (m *MemoryStore) CreateMember(member domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members {
		if existing.MembershipNumber == member.MembershipNumber {
			return domain.ErrDuplicateMembership
		}
	}
	m.members[member.ID] = member
	return nil
}

func (m *MemoryStore) GetMember(id string) (domain.Member, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	return member, ok, nil
}

func (m *MemoryStore) UpdateMember(member domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.members[member.ID]
	if !ok {
		return domain.ErrMemberNotFound
	}
	for _, other := range m.members {
		if other.ID != member.ID && other.MembershipNumber == member.MembershipNumber {
			return domain.ErrDuplicateMembership
		}
	}
	member.CreatedAt = existing.CreatedAt
	member.UpdatedAt = time.Now().UTC()
	m.members[member.ID] = member
	return nil
}

func (m *MemoryStore) DeactivateMember(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return domain.ErrMemberNotFound
	}
	for _, loan := range m.loans {
		if loan.MemberID == id && loan.Status.Open() {
			return domain.ErrActiveLoans
		}
	}
	member.Active = false
	member.UpdatedAt = time.Now().UTC()
	m.members[id] = member
	return nil
}

func (m *MemoryStore) ListMembers(f MemberFilter) ([]domain.Member, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]domain.Member, 0, len(m.members))
	for _, member := range m.members {
		if f.Search != "" &&
			!containsFold(member.FirstName, f.Search) &&
			!containsFold(member.LastName, f.Search) &&
			!containsFold(member.MembershipNumber, f.Search) &&
			!containsFold(member.Email, f.Search) {
			continue
		}
		if f.Type != "" && member.MembershipType != f.Type {
			continue
		}
		if f.Active != nil && member.Active != *f.Active {
			continue
		}
		matched = append(matched, member)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].LastName != matched[j].LastName {
			return matched[i].LastName < matched[j].LastName
		}
		return matched[i].FirstName < matched[j].FirstName
	})
	total := int64(len(matched))
	return paginate(matched, f.Page), total, nil
}

// ---- loan lifecycle ----

func (m *MemoryStore) CreateLoan(loan domain.LoanTransaction) (domain.LoanTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[loan.MemberID]
	if !ok {
		return domain.LoanTransaction{}, domain.ErrMemberNotFound
	}
	if !member.Active || domain.DateOnly(member.MembershipExpiry).Before(domain.DateOnly(loan.LoanDate)) {
		return domain.LoanTransaction{}, domain.ErrMemberInactive
	}
	open := 0
	for _, l := range m.loans {
		if l.MemberID == loan.MemberID && l.Status.Open() {
			open++
			if l.BookID == loan.BookID {
				return domain.LoanTransaction{}, domain.ErrLoanExists
			}
		}
	}
	if open >= member.MaxBooksAllowed {
		return domain.LoanTransaction{}, domain.ErrMemberAtCapacity
	}
	book, ok := m.books[loan.BookID]
	if !ok {
		return domain.LoanTransaction{}, domain.ErrBookNotFound
	}
	if book.AvailableCopies <= 0 {
		return domain.LoanTransaction{}, domain.ErrBookUnavailable
	}
	book.AvailableCopies--
	book.UpdatedAt = time.Now().UTC()
	m.books[book.ID] = book
	m.loans[loan.ID] = loan
	return loan, nil
}

func (m *MemoryStore) ReturnLoan(id string, returnedAt time.Time) (domain.LoanTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	if !ok {
		return domain.LoanTransaction{}, domain.ErrLoanNotFound
	}
	if loan.Status.Terminal() {
		return domain.LoanTransaction{}, domain.ErrAlreadyReturned
	}
	returnDate := domain.DateOnly(returnedAt)
	loan.ReturnDate = &returnDate
	loan.Status = domain.LoanReturned
	loan.UpdatedAt = time.Now().UTC()
	m.loans[id] = loan
	book, ok := m.books[loan.BookID]
	if ok && book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
		book.UpdatedAt = time.Now().UTC()
		m.books[book.ID] = book
	}
	return loan, nil
}

func (m *MemoryStore) CloseLoan(id string, status domain.LoanStatus) (domain.LoanTransaction, error) {
	if status != domain.LoanLost && status != domain.LoanDamaged {
		return domain.LoanTransaction{}, domain.ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	if !ok {
		return domain.LoanTransaction{}, domain.ErrLoanNotFound
	}
	if loan.Status.Terminal() {
		return domain.LoanTransaction{}, domain.ErrAlreadyReturned
	}
	loan.Status = status
	loan.UpdatedAt = time.Now().UTC()
	m.loans[id] = loan
	if book, ok := m.books[loan.BookID]; ok {
		book.TotalCopies--
		book.UpdatedAt = time.Now().UTC()
		m.books[book.ID] = book
	}
	return loan, nil
}

func (m *MemoryStore) GetLoan(id string) (domain.LoanTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	return loan, ok, nil
}

func (m *MemoryStore) ListLoans(f LoanFilter) ([]domain.LoanTransaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]domain.LoanTransaction, 0, len(m.loans))
	for _, loan := range m.loans {
		if f.MemberID != "" && loan.MemberID != f.MemberID {
			continue
		}
		if f.BookID != "" && loan.BookID != f.BookID {
			continue
		}
		if f.Status != "" && loan.Status != f.Status {
			continue
		}
		matched = append(matched, loan)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LoanDate.Equal(matched[j].LoanDate) {
			return matched[i].LoanDate.After(matched[j].LoanDate)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, f.Page), total, nil
}

// ---- fines ----

func (m *MemoryStore) SweepOverdue(asOf time.Time, policy domain.FinePolicy) ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := domain.DateOnly(asOf)
	var issued []domain.Fine
	for id, loan := range m.loans {
		if loan.Status != domain.LoanActive || !domain.DateOnly(loan.DueDate).Before(cutoff) {
			continue
		}
		loan.Status = domain.LoanOverdue
		loan.UpdatedAt = time.Now().UTC()
		m.loans[id] = loan
		if m.hasFineForLoan(id) {
			continue
		}
		loanID := id
		fine := domain.Fine{
			ID:          newFineID(),
			MemberID:    loan.MemberID,
			LoanID:      &loanID,
			AmountCents: policy(loan.DueDate, asOf),
			Status:      domain.PaymentUnpaid,
			Reason:      "Overdue loan",
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		m.fines[fine.ID] = fine
		issued = append(issued, fine)
	}
	return issued, nil
}

func (m *MemoryStore) hasFineForLoan(loanID string) bool {
	for _, fine := range m.fines {
		if fine.LoanID != nil && *fine.LoanID == loanID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetFine(id string) (domain.Fine, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fine, ok := m.fines[id]
	return fine, ok, nil
}

func (m *MemoryStore) ListFines(f FineFilter) ([]domain.Fine, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]domain.Fine, 0, len(m.fines))
	for _, fine := range m.fines {
		if f.MemberID != "" && fine.MemberID != f.MemberID {
			continue
		}
		if f.Status != "" && fine.Status != f.Status {
			continue
		}
		matched = append(matched, fine)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	return paginate(matched, f.Page), total, nil
}

func (m *MemoryStore) RecordFinePayment(id string, amountCents int64) (domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fine, ok := m.fines[id]
	if !ok {
		return domain.Fine{}, domain.ErrFineNotFound
	}
	paid := fine.PaidCents + amountCents
	if paid > fine.AmountCents {
		return domain.Fine{}, domain.ErrOverpayment
	}
	fine.PaidCents = paid
	if paid == fine.AmountCents {
		fine.Status = domain.PaymentPaid
	} else {
		fine.Status = domain.PaymentPartial
	}
	fine.UpdatedAt = time.Now().UTC()
	m.fines[id] = fine
	return fine, nil
}

// ---- staff ----

func (m *MemoryStore) CreateStaff(st domain.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.staff {
		if existing.Username == st.Username {
			return domain.ErrDuplicateUsername
		}
	}
	m.staff[st.ID] = st
	return nil
}

func (m *MemoryStore) GetStaffByUsername(username string) (domain.Staff, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.staff {
		if st.Username == username {
			return st, true, nil
		}
	}
	return domain.Staff{}, false, nil
}

// ---- bookkeeping ----

func (m *MemoryStore) ReconcileAvailability() ([]Drift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	openByBook := make(map[string]int)
	for _, loan := range m.loans {
		if loan.Status.Open() {
			openByBook[loan.BookID]++
		}
	}
	drifts := []Drift{}
	for id, book := range m.books {
		expected := book.TotalCopies - openByBook[id]
		if book.AvailableCopies == expected {
			continue
		}
		drifts = append(drifts, Drift{
			BookID:   id,
			ISBN:     book.ISBN,
			Recorded: book.AvailableCopies,
			Expected: expected,
		})
		book.AvailableCopies = expected
		book.UpdatedAt = time.Now().UTC()
		m.books[id] = book
	}
	return drifts, nil
}

func (m *MemoryStore) Stats() (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.Stats
	stats.TotalBooks = int64(len(m.books))
	for _, book := range m.books {
		stats.AvailableCopies += int64(book.AvailableCopies)
	}
	for _, member := range m.members {
		if member.Active {
			stats.ActiveMembers++
		}
	}
	today := domain.DateOnly(time.Now())
	for _, loan := range m.loans {
		switch {
		case loan.Status == domain.LoanOverdue:
			stats.OverdueLoans++
		case loan.Status == domain.LoanActive:
			stats.ActiveLoans++
			if domain.DateOnly(loan.DueDate).Before(today) {
				stats.OverdueLoans++
			}
		}
	}
	for _, fine := range m.fines {
		if fine.Status != domain.PaymentPaid {
			stats.OutstandingFinesCents += fine.AmountCents - fine.PaidCents
		}
	}
	return stats, nil
}

// ---- helpers ----

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func paginate[T any](items []T, p Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
