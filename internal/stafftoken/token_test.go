package stafftoken

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m, err := New("round-trip-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("staff-1", "desk", "librarian")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.StaffID != "staff-1" || claims.Username != "desk" || claims.Role != "librarian" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuerMgr, _ := New("secret-one", time.Hour)
	verifierMgr, _ := New("secret-two", time.Hour)
	token, err := issuerMgr.Issue("staff-1", "desk", "librarian")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifierMgr.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m, _ := New("tamper-secret", time.Hour)
	token, err := m.Issue("staff-1", "desk", "librarian")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	parts[1] = strings.Map(func(r rune) rune {
		if r == 'a' {
			return 'b'
		}
		return r
	}, parts[1])
	if _, err := m.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := New("expiry-secret", time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	claims := tokenClaims{
		Username: "desk",
		Role:     "librarian",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "staff-1",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	m, _ := New("alg-secret", time.Hour)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  ", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
