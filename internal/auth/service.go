// Package auth はパスワード認証とアクセストークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// TokenVerifier はアクセストークンを検証してIdentity（ユーザー名）を返す。
// Bearer認証ミドルウェアとSSEストリームの双方が使用する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Service は利用者登録・ログイン・トークン検証を行う。
type Service struct {
	users  repository.UserRepository
	tokens *TokenService
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// Register は利用者を登録する。ユーザー名が使用済みの場合はUSERNAME_TAKENを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError(username)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, HashedPassword: hashed}
	if err := s.users.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUsernameTakenError(username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("利用者を登録しました",
		slog.Int64("user_id", user.ID),
		slog.String("username", username),
	)
	return user, nil
}

// Login は資格情報を検証し、アクセストークンを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || ComparePassword(user.HashedPassword, password) != nil {
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Verify はトークンを検証し、利用者が存在する場合にユーザー名を返す。
// 失敗時はUNAUTHORIZEDのAPIErrorを返す。
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.NewUnauthorizedError()
	}

	username, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("トークンの検証に失敗しました",
			slog.String("error", err.Error()),
		)
		return "", model.NewUnauthorizedError()
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return "", model.NewUnauthorizedError()
	}
	return user.Username, nil
}

// compile-time interface check
var _ TokenVerifier = (*Service)(nil)
