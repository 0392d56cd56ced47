package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn func(ctx context.Context, username, password string) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (string, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", nil
}

func TestAuthHandler_Register_Success(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, password string) (*model.User, error) {
			if username != "alice" || password != "s3cret" {
				t.Errorf("credentials = %q/%q", username, password)
			}
			return &model.User{ID: 5, Username: username}, nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{"username":"alice","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp userResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 5 || resp.Username != "alice" {
		t.Errorf("response = %+v", resp)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("レスポンスにパスワードを含めてはならない")
	}
}

func TestAuthHandler_Register_UsernameTaken(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, password string) (*model.User, error) {
			return nil, model.NewUsernameTakenError(username)
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{"username":"alice","password":"x"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeUsernameTaken {
		t.Errorf("code = %q, want %q", got, model.ErrCodeUsernameTaken)
	}
}

func TestAuthHandler_Register_MissingPassword(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{"username":"alice"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := parseAPIErrorResponse(t, w)
	if !strings.Contains(resp["message"], "password") {
		t.Errorf("message = %q, JSONのフィールド名を含むべき", resp["message"])
	}
}

func TestAuthHandler_Login_FormAndJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{
			name:        "フォーム",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"username": {"alice"}, "password": {"s3cret"}}.Encode(),
		},
		{
			name:        "JSON",
			contentType: "application/json",
			body:        `{"username":"alice","password":"s3cret"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				loginFn: func(ctx context.Context, username, password string) (string, error) {
					if username != "alice" || password != "s3cret" {
						t.Errorf("credentials = %q/%q", username, password)
					}
					return "signed.jwt.token", nil
				},
			}
			h := NewAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			h.Login(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
			}
			var resp tokenResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.AccessToken != "signed.jwt.token" || resp.TokenType != "bearer" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, error) {
			return "", model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", got, model.ErrCodeInvalidCredentials)
	}
}

func TestAuthHandler_Login_EmptyForm(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
