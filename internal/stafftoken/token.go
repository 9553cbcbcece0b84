// Package stafftoken issues and verifies the JWT session tokens handed to
// staff accounts after login. A single HMAC secret is enough here: the
// service both signs and verifies its own tokens.
package stafftoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "library-api"

var defaultLeeway = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid staff token")
)

// Claims carried inside a staff session token.
type Claims struct {
	StaffID  string
	Username string
	Role     string
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies staff session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// New creates a Manager. The secret is required; ttl defaults to 12 hours.
func New(secret string, ttl time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stafftoken: secret required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a signed token for the given staff identity.
func (m *Manager) Issue(staffID, username, role string) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign staff token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the staff claims.
func (m *Manager) Verify(tokenString string) (Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		StaffID:  claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}
