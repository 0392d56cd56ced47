package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// minSecretLength はHS256署名鍵の最小長。
const minSecretLength = 32

// defaultClockSkew は検証時に許容する時刻のずれ。
const defaultClockSkew = 30 * time.Second

var (
	// ErrInvalidToken は署名不正・形式不正などで検証に失敗したトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken は有効期限切れのトークンを表す。
	ErrExpiredToken = errors.New("token expired")
)

// TokenService はHS256署名のアクセストークンを発行・検証する。
// subjectにはユーザー名を格納する。
type TokenService struct {
	secret    []byte
	lifetime  time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewTokenService はTokenServiceを生成する。secretは32バイト以上であること。
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive: %s", lifetime)
	}
	return &TokenService{
		secret:    []byte(secret),
		lifetime:  lifetime,
		clockSkew: defaultClockSkew,
		now:       time.Now,
	}, nil
}

// Issue はusernameをsubjectとするアクセストークンを発行する。
func (s *TokenService) Issue(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証し、subject（ユーザー名）を返す。
func (s *TokenService) Parse(tokenString string) (string, error) {
	now := s.now()
	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
