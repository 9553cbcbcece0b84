package app

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"librarian/pkg/domain"
	"librarian/pkg/store"
)

const defaultMaxBooks = 5

// MemberInput carries the fields accepted when registering a member.
type MemberInput struct {
	MembershipNumber string    `json:"membershipNumber"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	MembershipType   string    `json:"membershipType"`
	MembershipStart  time.Time `json:"membershipStart"`
	MembershipExpiry time.Time `json:"membershipExpiry"`
	MaxBooksAllowed  int       `json:"maxBooksAllowed"`
}

// MemberUpdate carries partial updates; nil fields are left unchanged.
type MemberUpdate struct {
	FirstName        *string    `json:"firstName"`
	LastName         *string    `json:"lastName"`
	Email            *string    `json:"email"`
	Phone            *string    `json:"phone"`
	MembershipType   *string    `json:"membershipType"`
	MembershipExpiry *time.Time `json:"membershipExpiry"`
	MaxBooksAllowed  *int       `json:"maxBooksAllowed"`
	Active           *bool      `json:"active"`
}

// RegisterMember validates and stores a new member.
func (a *App) RegisterMember(in MemberInput) (domain.Member, error) {
	in.MembershipNumber = strings.TrimSpace(in.MembershipNumber)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.MembershipNumber == "" {
		return domain.Member{}, invalid("membershipNumber is required")
	}
	if in.FirstName == "" || in.LastName == "" {
		return domain.Member{}, invalid("firstName and lastName are required")
	}
	start := in.MembershipStart
	if start.IsZero() {
		start = time.Now()
	}
	if in.MembershipExpiry.IsZero() {
		return domain.Member{}, invalid("membershipExpiry is required")
	}
	start = domain.DateOnly(start)
	expiry := domain.DateOnly(in.MembershipExpiry)
	if !start.Before(expiry) {
		return domain.Member{}, invalid("membershipStart must be before membershipExpiry")
	}
	maxBooks := in.MaxBooksAllowed
	if maxBooks <= 0 {
		maxBooks = defaultMaxBooks
	}
	memberType := strings.TrimSpace(in.MembershipType)
	if memberType == "" {
		memberType = "Regular"
	}
	member := domain.Member{
		ID:               uuid.NewString(),
		MembershipNumber: in.MembershipNumber,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Email:            strings.TrimSpace(in.Email),
		Phone:            strings.TrimSpace(in.Phone),
		MembershipType:   memberType,
		MembershipStart:  start,
		MembershipExpiry: expiry,
		Active:           true,
		MaxBooksAllowed:  maxBooks,
	}
	if err := a.store.CreateMember(member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// GetMember loads one member.
func (a *App) GetMember(id string) (domain.Member, error) {
	member, ok, err := a.store.GetMember(id)
	if err != nil {
		return domain.Member{}, err
	}
	if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return member, nil
}

// UpdateMember applies a partial update.
func (a *App) UpdateMember(id string, upd MemberUpdate) (domain.Member, error) {
	member, err := a.GetMember(id)
	if err != nil {
		return domain.Member{}, err
	}
	if upd.FirstName != nil {
		if strings.TrimSpace(*upd.FirstName) == "" {
			return domain.Member{}, invalid("firstName cannot be empty")
		}
		member.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		if strings.TrimSpace(*upd.LastName) == "" {
			return domain.Member{}, invalid("lastName cannot be empty")
		}
		member.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Email != nil {
		member.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Phone != nil {
		member.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.MembershipType != nil {
		member.MembershipType = strings.TrimSpace(*upd.MembershipType)
	}
	if upd.MembershipExpiry != nil {
		expiry := domain.DateOnly(*upd.MembershipExpiry)
		if !member.MembershipStart.Before(expiry) {
			return domain.Member{}, invalid("membershipExpiry must be after membershipStart")
		}
		member.MembershipExpiry = expiry
	}
	if upd.MaxBooksAllowed != nil {
		if *upd.MaxBooksAllowed < 1 {
			return domain.Member{}, invalid("maxBooksAllowed must be at least 1")
		}
		member.MaxBooksAllowed = *upd.MaxBooksAllowed
	}
	if upd.Active != nil {
		member.Active = *upd.Active
	}
	if err := a.store.UpdateMember(member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// DeactivateMember soft-deletes a member. Members with open loans are
// rejected so books out on loan keep a responsible borrower.
func (a *App) DeactivateMember(id string) error {
	return a.store.DeactivateMember(id)
}

// ListMembers pages through members with optional search and filters.
func (a *App) ListMembers(f store.MemberFilter) ([]domain.Member, int64, error) {
	f.Page = f.Page.Normalize()
	return a.store.ListMembers(f)
}
