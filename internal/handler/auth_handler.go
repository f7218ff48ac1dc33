// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/garaad/garaad-api/internal/middleware"
	"github.com/garaad/garaad-api/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error)
}

// AuthMetrics は認証ハンドラーが記録するメトリクスのインターフェース。
type AuthMetrics interface {
	RecordRegistration()
	RecordLogin(success bool)
}

// noopMetrics はメトリクス未設定時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordRegistration() {}
func (noopMetrics) RecordLogin(bool)    {}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics AuthMetrics
}

// NewAuthHandler はAuthHandlerを生成する。
// metricsがnilの場合は記録なしで動作する。
func NewAuthHandler(service AuthServiceInterface, metrics AuthMetrics) *AuthHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AuthHandler{
		service: service,
		metrics: metrics,
	}
}

// registerRequest はPOST /api/auth/registerのリクエストボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest はPOST /api/auth/loginのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// resetRequestBody はPOST /api/auth/password-reset/requestのリクエストボディ。
type resetRequestBody struct {
	Email string `json:"email"`
}

// resetConfirmBody はPOST /api/auth/password-reset/confirmのリクエストボディ。
type resetConfirmBody struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Register は新規ユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldViolation{
			{Field: "body", Message: "request body must be valid JSON"},
		}))
		return
	}

	user, tokenString, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.metrics.RecordRegistration()

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"token":   tokenString,
		"user":    user.Public(),
	})
}

// Login はユーザーを認証し、新しいトークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldViolation{
			{Field: "body", Message: "request body must be valid JSON"},
		}))
		return
	}

	user, tokenString, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(false)
		h.writeAuthError(w, err)
		return
	}

	h.metrics.RecordLogin(true)

	writeJSON(w, http.StatusOK, map[string]any{
		"token": tokenString,
		"user":  user.Public(),
	})
}

// Me は現在の認証済みユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	authUser, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// トークン検証後にレコードが削除された場合を検出するため再取得する
	user, err := h.service.CurrentUser(r.Context(), authUser.ID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}

// RequestPasswordReset はパスワードリセット依頼を受け付ける。
// POST /api/auth/password-reset/request
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldViolation{
			{Field: "body", Message: "request body must be valid JSON"},
		}))
		return
	}

	message, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// ResetPassword はリセットトークンによるパスワード更新を受け付ける。
// POST /api/auth/password-reset/confirm
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldViolation{
			{Field: "body", Message: "request body must be valid JSON"},
		}))
		return
	}

	message, err := h.service.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// writeAuthError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外の予期しないエラーは詳細をログにのみ記録し、500を返す。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, statusForCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("auth operation failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// statusForCode はエラーコードをHTTPステータスコードにマッピングする。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeUserExists:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
