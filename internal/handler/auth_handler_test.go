package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garaad/garaad-api/internal/middleware"
	"github.com/garaad/garaad-api/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn      func(ctx context.Context, name, email, password string) (*model.User, string, error)
	loginFn         func(ctx context.Context, email, password string) (*model.User, string, error)
	currentUserFn   func(ctx context.Context, userID string) (*model.User, error)
	requestResetFn  func(ctx context.Context, email string) (string, error)
	resetPasswordFn func(ctx context.Context, resetToken, newPassword string) (string, error)
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return nil, "", errors.New("not configured")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, "", errors.New("not configured")
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, errors.New("not configured")
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if m.requestResetFn != nil {
		return m.requestResetFn(ctx, email)
	}
	return "", errors.New("not configured")
}

func (m *mockAuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, resetToken, newPassword)
	}
	return "", errors.New("not configured")
}

func testUser() *model.User {
	return &model.User{
		ID:           "user-123",
		Name:         "alice",
		Email:        "a@x.com",
		PasswordHash: "$2a$10$secret-digest",
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// --- POST /api/auth/register テスト ---

func TestAuthHandler_Register_Success(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*model.User, string, error) {
			if name != "alice" || email != "a@x.com" || password != "secret123" {
				t.Errorf("unexpected args: %q %q %q", name, email, password)
			}
			return testUser(), "issued-token", nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"alice","email":"a@x.com","password":"secret123"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	body := decodeBody(t, w)
	if body["token"] != "issued-token" {
		t.Errorf("token = %v, want %q", body["token"], "issued-token")
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("user missing from response: %v", body)
	}
	if user["email"] != "a@x.com" {
		t.Errorf("user.email = %v, want %q", user["email"], "a@x.com")
	}
	// パスワードハッシュが含まれないこと
	if _, ok := user["passwordHash"]; ok {
		t.Error("response contains password hash")
	}
	if strings.Contains(w.Body.String(), "secret-digest") {
		t.Error("response body leaks password digest")
	}
}

func TestAuthHandler_Register_ValidationError_ListsFields(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*model.User, string, error) {
			return nil, "", model.NewValidationError([]model.FieldViolation{
				{Field: "email", Message: "email is required"},
				{Field: "password", Message: "password is required"},
			})
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"alice"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	body := decodeBody(t, w)
	fields, ok := body["errors"].([]any)
	if !ok || len(fields) != 2 {
		t.Errorf("errors = %v, want 2 field violations", body["errors"])
	}
}

func TestAuthHandler_Register_DuplicateEmail_Conflict(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*model.User, string, error) {
			return nil, "", model.NewUserExistsError()
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"alice","email":"a@x.com","password":"secret123"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := decodeBody(t, w)
	if body["code"] != model.ErrCodeUserExists {
		t.Errorf("code = %v, want %q", body["code"], model.ErrCodeUserExists)
	}
}

func TestAuthHandler_Register_InvalidJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{not json`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Register_InternalError_GenericResponse(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, name, email, password string) (*model.User, string, error) {
			return nil, "", errors.New("pq: connection refused to 10.0.0.5")
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"alice","email":"a@x.com","password":"secret123"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	// 内部エラーの詳細がレスポンスに漏れないこと
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Error("response leaks internal error detail")
	}
}

// --- POST /api/auth/login テスト ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, string, error) {
			return testUser(), "fresh-token", nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@x.com","password":"secret123"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["token"] != "fresh-token" {
		t.Errorf("token = %v, want %q", body["token"], "fresh-token")
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, string, error) {
			return nil, "", model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@x.com","password":"wrong"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeBody(t, w)
	if body["code"] != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %v, want %q", body["code"], model.ErrCodeInvalidCredentials)
	}
}

// --- GET /api/auth/me テスト ---

func TestAuthHandler_Me_Success(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return testUser(), nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), testUser()))
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["name"] != "alice" {
		t.Errorf("name = %v, want %q", body["name"], "alice")
	}
}

func TestAuthHandler_Me_NoContextUser_Unauthorized(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_VanishedUser_NotFound(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), testUser()))
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- パスワードリセットテスト ---

func TestAuthHandler_RequestPasswordReset_Success(t *testing.T) {
	svc := &mockAuthService{
		requestResetFn: func(ctx context.Context, email string) (string, error) {
			return "Password reset link sent to your email", nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/request",
		strings.NewReader(`{"email":"a@x.com"}`))
	w := httptest.NewRecorder()

	h.RequestPasswordReset(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthHandler_RequestPasswordReset_UnknownEmail_NotFound(t *testing.T) {
	svc := &mockAuthService{
		requestResetFn: func(ctx context.Context, email string) (string, error) {
			return "", model.NewUserNotFoundError()
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/request",
		strings.NewReader(`{"email":"nobody@x.com"}`))
	w := httptest.NewRecorder()

	h.RequestPasswordReset(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuthHandler_ResetPassword_Stub(t *testing.T) {
	svc := &mockAuthService{
		resetPasswordFn: func(ctx context.Context, resetToken, newPassword string) (string, error) {
			return "Password reset successfully", nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/confirm",
		strings.NewReader(`{"token":"some-token","password":"newpassword"}`))
	w := httptest.NewRecorder()

	h.ResetPassword(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["message"] != "Password reset successfully" {
		t.Errorf("message = %v, want stub confirmation", body["message"])
	}
}
