package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer(TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    240 * time.Hour,
	})
}

func TestTokenIssuer_AccessRoundTrip(t *testing.T) {
	ti := testIssuer()
	id := uuid.New()

	tok, err := ti.IssueAccess(id, "ana@example.com", "ana", "Ana Souza")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := ti.VerifyAccess(tok)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}

	if claims.ID != id.String() {
		t.Errorf("expected id %s, got %s", id, claims.ID)
	}
	if claims.Email != "ana@example.com" {
		t.Errorf("expected email claim, got %q", claims.Email)
	}
	if claims.Username != "ana" {
		t.Errorf("expected username claim, got %q", claims.Username)
	}
	if claims.FullName != "Ana Souza" {
		t.Errorf("expected full name claim, got %q", claims.FullName)
	}
}

func TestTokenIssuer_RefreshRoundTrip(t *testing.T) {
	ti := testIssuer()
	id := uuid.New()

	tok, err := ti.IssueRefresh(id)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	claims, err := ti.VerifyRefresh(tok)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.ID != id.String() {
		t.Errorf("expected id %s, got %s", id, claims.ID)
	}
}

func TestTokenIssuer_ExpiredToken(t *testing.T) {
	ti := NewTokenIssuer(TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     -1 * time.Minute,
		RefreshTTL:    -1 * time.Minute,
	})

	access, err := ti.IssueAccess(uuid.New(), "a@b.c", "a", "A")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := ti.VerifyAccess(access); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	refresh, err := ti.IssueRefresh(uuid.New())
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := ti.VerifyRefresh(refresh); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	ti := testIssuer()
	other := NewTokenIssuer(TokenConfig{
		AccessSecret:  "a different access secret",
		RefreshSecret: "a different refresh secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    240 * time.Hour,
	})

	tok, err := ti.IssueAccess(uuid.New(), "a@b.c", "a", "A")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	if _, err := other.VerifyAccess(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for foreign secret, got %v", err)
	}
}

// A refresh token must never pass access verification even though both use
// HS256; the secrets are disjoint by configuration.
func TestTokenIssuer_RefreshNotValidAsAccess(t *testing.T) {
	ti := testIssuer()

	refresh, err := ti.IssueRefresh(uuid.New())
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := ti.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}

	access, err := ti.IssueAccess(uuid.New(), "a@b.c", "a", "A")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := ti.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_GarbageInput(t *testing.T) {
	ti := testIssuer()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "hello world"},
		{"header only", "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ti.VerifyAccess(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}
