package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	m := NewManager("test-secret", 0, 0)

	token, err := m.IssueAccessToken(42, "admin")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := m.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	m := NewManager("test-secret", time.Minute, 0)

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }
	token, err := m.IssueAccessToken(1, "admin")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := m.VerifyAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", 0, 0).IssueAccessToken(1, "admin")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := NewManager("secret-b", 0, 0).VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	m := NewManager("test-secret", 0, 0)
	if _, err := m.VerifyAccessToken("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	b, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if a == b {
		t.Error("two generated tokens are identical")
	}
	if len(a) < 40 {
		t.Errorf("token too short: %d chars", len(a))
	}
}

func TestHashToken_StableAndOpaque(t *testing.T) {
	token := "some-refresh-token"
	h := HashToken(token)
	if h != HashToken(token) {
		t.Error("hash not deterministic")
	}
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h))
	}
	if h == token {
		t.Error("hash equals the token")
	}
}

func TestRefreshExpiry(t *testing.T) {
	m := NewManager("test-secret", 0, 48*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if got, want := m.RefreshExpiry(), now.Add(48*time.Hour); !got.Equal(want) {
		t.Errorf("RefreshExpiry = %v, want %v", got, want)
	}
}
