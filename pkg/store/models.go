package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Check constraints mirror the domain
// invariants so the database rejects drift even on writes that bypass the
// store helpers.

type BookModel struct {
	ID              string `gorm:"primaryKey"`
	ISBN            string `gorm:"size:17;uniqueIndex:idx_books_isbn;not null"`
	Title           string `gorm:"size:200;not null"`
	Subtitle        string `gorm:"size:200"`
	Category        string `gorm:"size:100;not null;index"`
	Publisher       string `gorm:"size:200"`
	Edition         int    `gorm:"not null;default:1"`
	Pages           int
	Language        string `gorm:"size:30"`
	LocationShelf   string `gorm:"size:20"`
	PriceCents      int64  `gorm:"not null;default:0;check:chk_books_price,price_cents >= 0"`
	// total_copies may reach 0 when the last copy is retired as Lost/Damaged.
	TotalCopies     int    `gorm:"not null;check:chk_books_total,total_copies >= 0"`
	AvailableCopies int    `gorm:"not null;check:chk_books_available,available_copies >= 0 AND available_copies <= total_copies"`
	CoverKey        string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type MemberModel struct {
	ID               string         `gorm:"primaryKey"`
	MembershipNumber string         `gorm:"size:20;uniqueIndex:idx_members_number;not null"`
	FirstName        string         `gorm:"size:50;not null"`
	LastName         string         `gorm:"size:50;not null"`
	Email            string         `gorm:"size:100"`
	Phone            string         `gorm:"size:20"`
	MembershipType   string         `gorm:"size:20;not null;default:'Regular'"`
	MembershipStart  datatypes.Date `gorm:"not null"`
	MembershipExpiry datatypes.Date `gorm:"not null"`
	IsActive         bool           `gorm:"not null;default:true;index"`
	MaxBooksAllowed  int            `gorm:"not null;default:5;check:chk_members_max_books,max_books_allowed > 0"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (MemberModel) TableName() string { return "members" }

type LoanModel struct {
	ID         string       `gorm:"primaryKey"`
	MemberID   string       `gorm:"not null;index"`
	Member     *MemberModel `gorm:"foreignKey:MemberID;constraint:OnDelete:RESTRICT"`
	BookID     string       `gorm:"not null;index"`
	Book       *BookModel   `gorm:"foreignKey:BookID;constraint:OnDelete:RESTRICT"`
	StaffID    string
	LoanDate   datatypes.Date `gorm:"not null"`
	DueDate    datatypes.Date `gorm:"not null;index"`
	ReturnDate *datatypes.Date
	Status     string    `gorm:"size:20;not null;index;check:chk_loans_status,status IN ('Active','Returned','Overdue','Lost','Damaged')"`
	Notes      string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (LoanModel) TableName() string { return "loan_transactions" }

type FineModel struct {
	ID          string       `gorm:"primaryKey"`
	MemberID    string       `gorm:"not null;index"`
	Member      *MemberModel `gorm:"foreignKey:MemberID;constraint:OnDelete:RESTRICT"`
	LoanID      *string      `gorm:"uniqueIndex:idx_fines_loan_id"`
	Loan        *LoanModel   `gorm:"foreignKey:LoanID;constraint:OnDelete:RESTRICT"`
	AmountCents int64        `gorm:"not null;check:chk_fines_amount,amount_cents >= 0"`
	PaidCents   int64        `gorm:"not null;default:0;check:chk_fines_paid,paid_cents >= 0 AND paid_cents <= amount_cents"`
	Status      string       `gorm:"size:10;not null;index;check:chk_fines_status,status IN ('Unpaid','Partial','Paid')"`
	Reason      string       `gorm:"size:255"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

func (FineModel) TableName() string { return "fines" }

type StaffModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"size:50;uniqueIndex:idx_staff_username;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:20;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (StaffModel) TableName() string { return "staff" }
