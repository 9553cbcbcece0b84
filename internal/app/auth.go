package app

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"librarian/internal/stafftoken"
	"librarian/pkg/domain"
)

// Login verifies staff credentials and issues a signed session token.
func (a *App) Login(username, password string) (string, domain.Staff, error) {
	staff, ok, err := a.store.GetStaffByUsername(strings.TrimSpace(username))
	if err != nil {
		return "", domain.Staff{}, err
	}
	if !ok {
		// Burn a comparison so missing accounts take as long as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return "", domain.Staff{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return "", domain.Staff{}, domain.ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(staff.ID, staff.Username, string(staff.Role))
	if err != nil {
		return "", domain.Staff{}, err
	}
	return token, staff, nil
}

// VerifySession validates a session token and returns its claims.
func (a *App) VerifySession(token string) (stafftoken.Claims, error) {
	return a.tokens.Verify(token)
}

// CreateStaff registers a staff account with a bcrypt-hashed password.
func (a *App) CreateStaff(username, password string, role domain.StaffRole) (domain.Staff, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Staff{}, invalid("username is required")
	}
	if len(password) < 8 {
		return domain.Staff{}, invalid("password must be at least 8 characters")
	}
	if role != domain.RoleLibrarian && role != domain.RoleAdmin {
		return domain.Staff{}, invalid("role must be librarian or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Staff{}, err
	}
	staff := domain.Staff{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := a.store.CreateStaff(staff); err != nil {
		return domain.Staff{}, err
	}
	return staff, nil
}

// EnsureAdmin creates the bootstrap admin account if the username is free.
func (a *App) EnsureAdmin(username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := a.CreateStaff(username, password, domain.RoleAdmin)
	if errors.Is(err, domain.ErrDuplicateUsername) {
		return nil
	}
	return err
}
