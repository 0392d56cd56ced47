// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みユーザー名を格納するためのキー。
var identityContextKey = contextKey("identity")

// TokenVerifier はアクセストークンを検証し、Identity（ユーザー名）を返す。
// auth.Serviceが実装する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// Identityをリクエストコンテキストへ注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				// 認証以外の失敗（利用者の参照エラーなど）はトークンの問題として扱わない
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Error("トークンの検証中に内部エラーが発生しました",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				slog.Debug("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(bearerPrefix):])
	return token, token != ""
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(identityContextKey).(string)
	if !ok || identity == "" {
		return "", fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// イベントストリームのようにクエリパラメータで認証するハンドラーやテストで使用する。
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	RecordIdentity(ctx, identity)
	return context.WithValue(ctx, identityContextKey, identity)
}
