package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
)

const testSecret = "test-secret-for-assertions"

func TestSignAndValidate(t *testing.T) {
	g := NewGenerator(Config{Secret: testSecret, Issuer: "vulntrack-gateway", TTL: time.Minute})

	token, expiresAt, err := g.Sign("alice@example.com", shared.RoleSecurityChampion)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expected expiry in the future")
	}

	claims, err := g.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Errorf("Subject = %q, want alice@example.com", claims.Subject)
	}
	role, err := claims.ParsedRole()
	if err != nil {
		t.Fatalf("ParsedRole() error = %v", err)
	}
	if role != shared.RoleSecurityChampion {
		t.Errorf("role = %q, want security_champion", role)
	}
}

func TestSign_EmptySubject(t *testing.T) {
	g := NewGenerator(Config{Secret: testSecret, TTL: time.Minute})

	if _, _, err := g.Sign("", shared.RoleUser); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("expected ErrEmptySubject, got %v", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	g := NewGenerator(Config{Secret: testSecret, TTL: time.Minute})
	token, _, err := g.Sign("bob", shared.RoleUser)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := Validate(token, "other-secret", ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	g := NewGenerator(Config{Secret: testSecret, Issuer: "gateway-a", TTL: time.Minute})
	token, _, err := g.Sign("bob", shared.RoleUser)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := Validate(token, testSecret, "gateway-b"); err == nil {
		t.Error("expected issuer mismatch to fail validation")
	}
	if _, err := Validate(token, testSecret, "gateway-a"); err != nil {
		t.Errorf("expected matching issuer to validate, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	// Built directly: NewGenerator would clamp the negative TTL.
	g := &Generator{config: Config{Secret: testSecret, TTL: -time.Minute}}
	token, _, err := g.Sign("bob", shared.RoleAdmin)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := g.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	if _, err := Validate("not-a-token", testSecret, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParsedRole_Unknown(t *testing.T) {
	c := &Claims{Role: "superuser"}
	if _, err := c.ParsedRole(); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}

	c = &Claims{}
	role, err := c.ParsedRole()
	if err != nil {
		t.Fatalf("ParsedRole() error = %v", err)
	}
	if role != shared.RoleUser {
		t.Errorf("default role = %q, want user", role)
	}
}
