package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"librarian/pkg/domain"
)

const migrateLockID int64 = 54125412

// GormStore implements Store using GORM + Postgres. Loan mutations run in a
// single transaction with the book row locked FOR UPDATE so concurrent
// borrow/return requests for the same book serialize at the database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &MemberModel{}, &LoanModel{}, &FineModel{}, &StaffModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// One open loan per (member, book) pair. AutoMigrate cannot express
		// partial indexes, so create it directly.
		if err := tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_open_loan_member_book
			ON loan_transactions (member_id, book_id)
			WHERE status IN ('Active', 'Overdue');
		`).Error; err != nil {
			return fmt.Errorf("create open-loan index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// translateDBError maps Postgres constraint violations to domain errors so
// callers never see raw driver errors.
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	constraint := strings.ToLower(pgErr.ConstraintName)
	switch pgErr.Code {
	case "23505": // unique_violation
		switch {
		case strings.Contains(constraint, "isbn"):
			return domain.ErrDuplicateISBN
		case strings.Contains(constraint, "members_number"):
			return domain.ErrDuplicateMembership
		case strings.Contains(constraint, "username"):
			return domain.ErrDuplicateUsername
		case strings.Contains(constraint, "open_loan"):
			return domain.ErrLoanExists
		case strings.Contains(constraint, "fines_loan"):
			// Sweep backstop: the loan already carries an overdue fine.
			return domain.ErrLoanExists
		}
		return fmt.Errorf("%w: duplicate value", domain.ErrValidation)
	case "23514": // check_violation
		return fmt.Errorf("%w: constraint %s", domain.ErrValidation, pgErr.ConstraintName)
	case "23503": // foreign_key_violation
		// An insert with a dangling reference reports "is not present"; a
		// restricted delete reports the row as still referenced.
		if strings.Contains(pgErr.Detail, "is not present") {
			switch {
			case strings.Contains(constraint, "book"):
				return domain.ErrBookNotFound
			case strings.Contains(constraint, "member"):
				return domain.ErrMemberNotFound
			case strings.Contains(constraint, "loan"):
				return domain.ErrLoanNotFound
			}
			return fmt.Errorf("%w: referenced record does not exist", domain.ErrValidation)
		}
		return domain.ErrActiveLoans
	}
	return err
}

// ---- books ----

func (s *GormStore) CreateBook(b domain.Book) error {
	model := bookToModel(b)
	return translateDBError(s.db.Create(&model).Error)
}

func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// UpdateBook rewrites catalog fields. available_copies is never taken from the
// caller: it moves by the total_copies delta so copies on loan stay accounted.
func (s *GormStore) UpdateBook(b domain.Book) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", b.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrBookNotFound
			}
			return err
		}
		available := model.AvailableCopies + (b.TotalCopies - model.TotalCopies)
		if available < 0 {
			return fmt.Errorf("%w: total_copies cannot drop below copies on loan", domain.ErrValidation)
		}
		updates := map[string]any{
			"isbn":             b.ISBN,
			"title":            b.Title,
			"subtitle":         b.Subtitle,
			"category":         b.Category,
			"publisher":        b.Publisher,
			"edition":          b.Edition,
			"pages":            b.Pages,
			"language":         b.Language,
			"location_shelf":   b.LocationShelf,
			"price_cents":      b.PriceCents,
			"total_copies":     b.TotalCopies,
			"available_copies": available,
			"updated_at":       time.Now().UTC(),
		}
		return translateDBError(tx.Model(&BookModel{}).Where("id = ?", b.ID).Updates(updates).Error)
	})
}

func (s *GormStore) SetBookCoverKey(id, key string) error {
	res := s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"cover_key":  key,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrBookNotFound
			}
			return err
		}
		var open int64
		if err := tx.Model(&LoanModel{}).
			Where("book_id = ? AND status IN ?", id, openStatuses()).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrActiveLoans
		}
		// Historical loans keep their FK; deletion is only possible once
		// nothing references the book. Restrict violations surface as a
		// conflict rather than a driver error.
		return translateDBError(tx.Delete(&BookModel{}, "id = ?", id).Error)
	})
}

func (s *GormStore) ListBooks(f BookFilter) ([]domain.Book, int64, error) {
	page := f.Page.Normalize()
	q := s.db.Model(&BookModel{})
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("title ILIKE ? OR isbn ILIKE ?", like, like)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Available != nil {
		if *f.Available {
			q = q.Where("available_copies > 0")
		} else {
			q = q.Where("available_copies = 0")
		}
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := q.Order("title ASC").Limit(page.Size).Offset(page.Offset()).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, total, nil
}

// ---- members ----

func (s *GormStore) CreateMember(m domain.Member) error {
	model := memberToModel(m)
	return translateDBError(s.db.Create(&model).Error)
}

func (s *GormStore) GetMember(id string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

func (s *GormStore) UpdateMember(m domain.Member) error {
	model := memberToModel(m)
	model.UpdatedAt = time.Now().UTC()
	res := s.db.Model(&MemberModel{}).Where("id = ?", m.ID).Updates(map[string]any{
		"membership_number": model.MembershipNumber,
		"first_name":        model.FirstName,
		"last_name":         model.LastName,
		"email":             model.Email,
		"phone":             model.Phone,
		"membership_type":   model.MembershipType,
		"membership_start":  model.MembershipStart,
		"membership_expiry": model.MembershipExpiry,
		"is_active":         model.IsActive,
		"max_books_allowed": model.MaxBooksAllowed,
		"updated_at":        model.UpdatedAt,
	})
	if res.Error != nil {
		return translateDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// DeactivateMember soft-deletes: the row stays so historical loans keep their
// referential integrity.
func (s *GormStore) DeactivateMember(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model MemberModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMemberNotFound
			}
			return err
		}
		var open int64
		if err := tx.Model(&LoanModel{}).
			Where("member_id = ? AND status IN ?", id, openStatuses()).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrActiveLoans
		}
		return tx.Model(&MemberModel{}).Where("id = ?", id).Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

func (s *GormStore) ListMembers(f MemberFilter) ([]domain.Member, int64, error) {
	page := f.Page.Normalize()
	q := s.db.Model(&MemberModel{})
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR membership_number ILIKE ? OR email ILIKE ?",
			like, like, like, like)
	}
	if f.Type != "" {
		q = q.Where("membership_type = ?", f.Type)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []MemberModel
	if err := q.Order("last_name ASC, first_name ASC").
		Limit(page.Size).Offset(page.Offset()).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	members := make([]domain.Member, 0, len(models))
	for _, m := range models {
		members = append(members, memberFromModel(m))
	}
	return members, total, nil
}

// ---- loan lifecycle ----

// CreateLoan validates the member and atomically claims one available copy.
// The book row is locked FOR UPDATE, so two racing requests for the last copy
// serialize: the second sees available_copies == 0 and fails.
func (s *GormStore) CreateLoan(loan domain.LoanTransaction) (domain.LoanTransaction, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// The member row is locked too: the capacity count below must not
		// race with another borrow by the same member.
		var member MemberModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&member, "id = ?", loan.MemberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMemberNotFound
			}
			return err
		}
		if !member.IsActive || time.Time(member.MembershipExpiry).Before(domain.DateOnly(loan.LoanDate)) {
			return domain.ErrMemberInactive
		}
		var open int64
		if err := tx.Model(&LoanModel{}).
			Where("member_id = ? AND status IN ?", loan.MemberID, openStatuses()).
			Count(&open).Error; err != nil {
			return err
		}
		if open >= int64(member.MaxBooksAllowed) {
			return domain.ErrMemberAtCapacity
		}
		var book BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&book, "id = ?", loan.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrBookNotFound
			}
			return err
		}
		if book.AvailableCopies <= 0 {
			return domain.ErrBookUnavailable
		}
		if err := tx.Model(&BookModel{}).Where("id = ?", book.ID).Updates(map[string]any{
			"available_copies": gorm.Expr("available_copies - 1"),
			"updated_at":       time.Now().UTC(),
		}).Error; err != nil {
			return translateDBError(err)
		}
		model := loanToModel(loan)
		return translateDBError(tx.Create(&model).Error)
	})
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	return s.mustGetLoan(loan.ID)
}

// ReturnLoan closes an open loan and restores the copy to the pool, capped at
// total_copies. Repeat calls fail with ErrAlreadyReturned.
func (s *GormStore) ReturnLoan(id string, returnedAt time.Time) (domain.LoanTransaction, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var loan LoanModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&loan, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrLoanNotFound
			}
			return err
		}
		if domain.LoanStatus(loan.Status).Terminal() {
			return domain.ErrAlreadyReturned
		}
		returnDate := dateOf(returnedAt)
		if err := tx.Model(&LoanModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":      string(domain.LoanReturned),
			"return_date": &returnDate,
			"updated_at":  time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&BookModel{}).Where("id = ?", loan.BookID).Updates(map[string]any{
			"available_copies": gorm.Expr("LEAST(available_copies + 1, total_copies)"),
			"updated_at":       time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	return s.mustGetLoan(id)
}

// CloseLoan marks an open loan Lost or Damaged. The copy is not restored to
// the available pool; total_copies shrinks with it so the reconciliation
// invariant stays exact.
func (s *GormStore) CloseLoan(id string, status domain.LoanStatus) (domain.LoanTransaction, error) {
	if status != domain.LoanLost && status != domain.LoanDamaged {
		return domain.LoanTransaction{}, fmt.Errorf("%w: close status must be Lost or Damaged", domain.ErrValidation)
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var loan LoanModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&loan, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrLoanNotFound
			}
			return err
		}
		if domain.LoanStatus(loan.Status).Terminal() {
			return domain.ErrAlreadyReturned
		}
		if err := tx.Model(&LoanModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		return translateDBError(tx.Model(&BookModel{}).Where("id = ?", loan.BookID).Updates(map[string]any{
			"total_copies": gorm.Expr("total_copies - 1"),
			"updated_at":   time.Now().UTC(),
		}).Error)
	})
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	return s.mustGetLoan(id)
}

func (s *GormStore) GetLoan(id string) (domain.LoanTransaction, bool, error) {
	var model LoanModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LoanTransaction{}, false, nil
		}
		return domain.LoanTransaction{}, false, err
	}
	return loanFromModel(model), true, nil
}

func (s *GormStore) mustGetLoan(id string) (domain.LoanTransaction, error) {
	loan, ok, err := s.GetLoan(id)
	if err != nil {
		return domain.LoanTransaction{}, err
	}
	if !ok {
		return domain.LoanTransaction{}, domain.ErrLoanNotFound
	}
	return loan, nil
}

func (s *GormStore) ListLoans(f LoanFilter) ([]domain.LoanTransaction, int64, error) {
	page := f.Page.Normalize()
	q := s.db.Model(&LoanModel{})
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []LoanModel
	if err := q.Order("loan_date DESC, created_at DESC").
		Limit(page.Size).Offset(page.Offset()).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	loans := make([]domain.LoanTransaction, 0, len(models))
	for _, m := range models {
		loans = append(loans, loanFromModel(m))
	}
	return loans, total, nil
}

// ---- fines ----

// SweepOverdue flips Active loans past due to Overdue and issues one fine per
// loan. Idempotent: already-Overdue loans are not selected again, and the
// unique index on fines.loan_id backstops double issuance.
func (s *GormStore) SweepOverdue(asOf time.Time, policy domain.FinePolicy) ([]domain.Fine, error) {
	var issued []domain.Fine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var loans []LoanModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND due_date < ?", string(domain.LoanActive), dateOf(asOf)).
			Find(&loans).Error; err != nil {
			return err
		}
		for _, loan := range loans {
			if err := tx.Model(&LoanModel{}).Where("id = ?", loan.ID).Updates(map[string]any{
				"status":     string(domain.LoanOverdue),
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
				return err
			}
			loanID := loan.ID
			fine := FineModel{
				ID:          newFineID(),
				MemberID:    loan.MemberID,
				LoanID:      &loanID,
				AmountCents: policy(time.Time(loan.DueDate), asOf),
				PaidCents:   0,
				Status:      string(domain.PaymentUnpaid),
				Reason:      "Overdue loan",
				CreatedAt:   time.Now().UTC(),
				UpdatedAt:   time.Now().UTC(),
			}
			if err := translateDBError(tx.Create(&fine).Error); err != nil {
				if errors.Is(err, domain.ErrLoanExists) {
					continue
				}
				return err
			}
			issued = append(issued, fineFromModel(fine))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *GormStore) GetFine(id string) (domain.Fine, bool, error) {
	var model FineModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Fine{}, false, nil
		}
		return domain.Fine{}, false, err
	}
	return fineFromModel(model), true, nil
}

func (s *GormStore) ListFines(f FineFilter) ([]domain.Fine, int64, error) {
	page := f.Page.Normalize()
	q := s.db.Model(&FineModel{})
	if f.MemberID != "" {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []FineModel
	if err := q.Order("created_at DESC").
		Limit(page.Size).Offset(page.Offset()).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	fines := make([]domain.Fine, 0, len(models))
	for _, m := range models {
		fines = append(fines, fineFromModel(m))
	}
	return fines, total, nil
}

func (s *GormStore) RecordFinePayment(id string, amountCents int64) (domain.Fine, error) {
	var out domain.Fine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var fine FineModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&fine, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrFineNotFound
			}
			return err
		}
		paid := fine.PaidCents + amountCents
		if paid > fine.AmountCents {
			return domain.ErrOverpayment
		}
		status := domain.PaymentPartial
		if paid == fine.AmountCents {
			status = domain.PaymentPaid
		}
		if err := tx.Model(&FineModel{}).Where("id = ?", id).Updates(map[string]any{
			"paid_cents": paid,
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return translateDBError(err)
		}
		fine.PaidCents = paid
		fine.Status = string(status)
		out = fineFromModel(fine)
		return nil
	})
	if err != nil {
		return domain.Fine{}, err
	}
	return out, nil
}

// ---- staff ----

func (s *GormStore) CreateStaff(st domain.Staff) error {
	model := staffToModel(st)
	return translateDBError(s.db.Create(&model).Error)
}

func (s *GormStore) GetStaffByUsername(username string) (domain.Staff, bool, error) {
	var model StaffModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Staff{}, false, nil
		}
		return domain.Staff{}, false, err
	}
	return staffFromModel(model), true, nil
}

// ---- bookkeeping ----

// ReconcileAvailability recomputes available_copies from open loan
// transactions for every book where the cache drifted, in one statement.
func (s *GormStore) ReconcileAvailability() ([]Drift, error) {
	drifts := []Drift{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`
			UPDATE books b
			SET available_copies = sub.expected, updated_at = NOW()
			FROM (
				SELECT b2.id, b2.isbn, b2.available_copies AS recorded,
				       b2.total_copies - COALESCE(cnt.open, 0) AS expected
				FROM books b2
				LEFT JOIN (
					SELECT book_id, COUNT(*) AS open
					FROM loan_transactions
					WHERE status IN ('Active', 'Overdue')
					GROUP BY book_id
				) cnt ON cnt.book_id = b2.id
			) sub
			WHERE sub.id = b.id AND b.available_copies <> sub.expected
			RETURNING b.id AS book_id, sub.isbn, sub.recorded, sub.expected
		`).Scan(&drifts).Error
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

func (s *GormStore) Stats() (domain.Stats, error) {
	var stats domain.Stats
	if err := s.db.Model(&BookModel{}).Count(&stats.TotalBooks).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&BookModel{}).
		Select("COALESCE(SUM(available_copies), 0)").Scan(&stats.AvailableCopies).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&MemberModel{}).Where("is_active = TRUE").Count(&stats.ActiveMembers).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&LoanModel{}).
		Where("status = ?", string(domain.LoanActive)).Count(&stats.ActiveLoans).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&LoanModel{}).
		Where("status = ? OR (status = ? AND due_date < CURRENT_DATE)",
			string(domain.LoanOverdue), string(domain.LoanActive)).
		Count(&stats.OverdueLoans).Error; err != nil {
		return domain.Stats{}, err
	}
	if err := s.db.Model(&FineModel{}).
		Select("COALESCE(SUM(amount_cents - paid_cents), 0)").
		Where("status IN ?", []string{string(domain.PaymentUnpaid), string(domain.PaymentPartial)}).
		Scan(&stats.OutstandingFinesCents).Error; err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

// ---- conversions ----

func openStatuses() []string {
	return []string{string(domain.LoanActive), string(domain.LoanOverdue)}
}

func dateOf(t time.Time) datatypes.Date {
	return datatypes.Date(domain.DateOnly(t))
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		Subtitle:        b.Subtitle,
		Category:        b.Category,
		Publisher:       b.Publisher,
		Edition:         b.Edition,
		Pages:           b.Pages,
		Language:        b.Language,
		LocationShelf:   b.LocationShelf,
		PriceCents:      b.PriceCents,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CoverKey:        b.CoverKey,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		ISBN:            m.ISBN,
		Title:           m.Title,
		Subtitle:        m.Subtitle,
		Category:        m.Category,
		Publisher:       m.Publisher,
		Edition:         m.Edition,
		Pages:           m.Pages,
		Language:        m.Language,
		LocationShelf:   m.LocationShelf,
		PriceCents:      m.PriceCents,
		TotalCopies:     m.TotalCopies,
		AvailableCopies: m.AvailableCopies,
		CoverKey:        m.CoverKey,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func memberToModel(m domain.Member) MemberModel {
	return MemberModel{
		ID:               m.ID,
		MembershipNumber: m.MembershipNumber,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		Phone:            m.Phone,
		MembershipType:   m.MembershipType,
		MembershipStart:  dateOf(m.MembershipStart),
		MembershipExpiry: dateOf(m.MembershipExpiry),
		IsActive:         m.Active,
		MaxBooksAllowed:  m.MaxBooksAllowed,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func memberFromModel(m MemberModel) domain.Member {
	return domain.Member{
		ID:               m.ID,
		MembershipNumber: m.MembershipNumber,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		Phone:            m.Phone,
		MembershipType:   m.MembershipType,
		MembershipStart:  time.Time(m.MembershipStart),
		MembershipExpiry: time.Time(m.MembershipExpiry),
		Active:           m.IsActive,
		MaxBooksAllowed:  m.MaxBooksAllowed,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func loanToModel(l domain.LoanTransaction) LoanModel {
	model := LoanModel{
		ID:        l.ID,
		MemberID:  l.MemberID,
		BookID:    l.BookID,
		StaffID:   l.StaffID,
		LoanDate:  dateOf(l.LoanDate),
		DueDate:   dateOf(l.DueDate),
		Status:    string(l.Status),
		Notes:     l.Notes,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.ReturnDate != nil {
		d := dateOf(*l.ReturnDate)
		model.ReturnDate = &d
	}
	return model
}

func loanFromModel(m LoanModel) domain.LoanTransaction {
	loan := domain.LoanTransaction{
		ID:        m.ID,
		MemberID:  m.MemberID,
		BookID:    m.BookID,
		StaffID:   m.StaffID,
		LoanDate:  time.Time(m.LoanDate),
		DueDate:   time.Time(m.DueDate),
		Status:    domain.LoanStatus(m.Status),
		Notes:     m.Notes,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ReturnDate != nil {
		t := time.Time(*m.ReturnDate)
		loan.ReturnDate = &t
	}
	return loan
}

func fineFromModel(m FineModel) domain.Fine {
	return domain.Fine{
		ID:          m.ID,
		MemberID:    m.MemberID,
		LoanID:      m.LoanID,
		AmountCents: m.AmountCents,
		PaidCents:   m.PaidCents,
		Status:      domain.PaymentStatus(m.Status),
		Reason:      m.Reason,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func staffToModel(s domain.Staff) StaffModel {
	return StaffModel{
		ID:           s.ID,
		Username:     s.Username,
		PasswordHash: s.PasswordHash,
		Role:         string(s.Role),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func staffFromModel(m StaffModel) domain.Staff {
	return domain.Staff{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.StaffRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
