package auth

import (
	"errors"
	"testing"
	"time"
)

func TestValidateToken(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "secret", Issuer: "booklets"})

	token, err := m.Sign(7, RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if claims.UserID != 7 || claims.Role != RoleAdmin {
		t.Fatalf("Unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "secret", Issuer: "booklets"})

	expired, _ := m.Sign(7, RoleAdmin, -time.Minute)
	if _, err := m.ValidateToken(expired); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Expected expired token error, got %v", err)
	}

	other := NewJWTManager(JWTConfig{Secret: "other", Issuer: "booklets"})
	forged, _ := other.Sign(7, RoleAdmin, time.Hour)
	if _, err := m.ValidateToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected invalid token for a foreign signature, got %v", err)
	}

	wrongIssuer, _ := NewJWTManager(JWTConfig{Secret: "secret", Issuer: "elsewhere"}).Sign(7, RoleAdmin, time.Hour)
	if _, err := m.ValidateToken(wrongIssuer); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected invalid token for a foreign issuer, got %v", err)
	}

	if _, err := m.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected invalid token, got %v", err)
	}
}
