package domain

import "errors"

// Sentinel errors shared by the store and the application layer. Handlers map
// them to HTTP status codes; store implementations translate database
// constraint violations into them instead of leaking driver errors.
var (
	ErrBookNotFound   = errors.New("book not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrLoanNotFound   = errors.New("loan not found")
	ErrFineNotFound   = errors.New("fine not found")

	// ErrBookUnavailable is returned when a loan is requested for a book
	// with no available copies.
	ErrBookUnavailable = errors.New("book is not available for loan")

	// ErrAlreadyReturned is returned when a loan in a terminal status is
	// returned or closed again.
	ErrAlreadyReturned = errors.New("loan already returned or closed")

	// ErrLoanExists is returned when the member already has an open loan
	// for the same book.
	ErrLoanExists = errors.New("member already has an open loan for this book")

	ErrMemberInactive   = errors.New("member is inactive or membership expired")
	ErrMemberAtCapacity = errors.New("member has reached the maximum loan limit")

	// ErrActiveLoans blocks deleting a book or member that open loans
	// still reference.
	ErrActiveLoans = errors.New("open loans reference this record")

	ErrDuplicateISBN       = errors.New("a book with this ISBN already exists")
	ErrDuplicateMembership = errors.New("a member with this membership number already exists")
	ErrDuplicateUsername   = errors.New("a staff account with this username already exists")

	ErrOverpayment = errors.New("payment exceeds outstanding fine amount")

	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrValidation wraps request-level constraint failures.
	ErrValidation = errors.New("validation failed")
)
