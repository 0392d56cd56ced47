package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewTokenService_Validation(t *testing.T) {
	if _, err := NewTokenService("short", time.Minute); err == nil {
		t.Error("短い署名鍵でエラーにならなかった")
	}
	if _, err := NewTokenService(testSecret, 0); err == nil {
		t.Error("有効期間0でエラーにならなかった")
	}
}

func TestTokenService_IssueAndParse(t *testing.T) {
	s, _ := NewTokenService(testSecret, 30*time.Minute)

	token, err := s.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("JWT形式ではない: %q", token)
	}

	sub, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if sub != "alice" {
		t.Errorf("subject = %q, want alice", sub)
	}
}

func TestTokenService_Parse_Expired(t *testing.T) {
	s, _ := NewTokenService(testSecret, 30*time.Minute)
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issuedAt }

	token, err := s.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	s.now = func() time.Time { return issuedAt.Add(31 * time.Minute) }
	if _, err := s.Parse(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Parse() error = %v, want ErrExpiredToken", err)
	}

	// 許容するずれの範囲内なら有効
	s.now = func() time.Time { return issuedAt.Add(30*time.Minute + 10*time.Second) }
	if _, err := s.Parse(token); err != nil {
		t.Errorf("許容範囲内でParse() error = %v", err)
	}
}

func TestTokenService_Parse_WrongSecret(t *testing.T) {
	issuer, _ := NewTokenService(testSecret, time.Minute)
	other, _ := NewTokenService(strings.Repeat("x", 32), time.Minute)

	token, _ := issuer.Issue("alice")
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_Parse_RejectsOtherAlgorithms(t *testing.T) {
	s, _ := NewTokenService(testSecret, time.Minute)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("署名に失敗: %v", err)
	}
	if _, err := s.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS512トークンが受け入れられた: %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := s.Parse(none); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=noneのトークンが受け入れられた: %v", err)
	}
}

func TestTokenService_Parse_RequiresExpiry(t *testing.T) {
	s, _ := NewTokenService(testSecret, time.Minute)
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte(testSecret))
	if _, err := s.Parse(token); err == nil {
		t.Error("有効期限のないトークンが受け入れられた")
	}
}

func TestHashPassword_Compare(t *testing.T) {
	hashed, err := HashPassword("pa55")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if ComparePassword(hashed, "pa55") != nil {
		t.Error("正しいパスワードが一致しない")
	}
	if ComparePassword(hashed, "nope") == nil {
		t.Error("誤ったパスワードが一致した")
	}
}
