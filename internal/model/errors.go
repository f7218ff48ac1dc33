package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string           // エラーコード
	Message  string           // エラーメッセージ
	Category string           // カテゴリ: auth, validation, system
	Action   string           // ユーザー向け対処方法
	Fields   []FieldViolation // バリデーション違反の詳細（該当する場合のみ）
}

// FieldViolation は入力バリデーション違反1件を表す。
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUserExists         = "USER_EXISTS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力バリデーションエラーを生成する。
// 違反したフィールドをすべて列挙する（最初の1件だけではない）。
func NewValidationError(fields []FieldViolation) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Invalid request body.",
		Category: "validation",
		Action:   "Fix the listed fields and try again.",
		Fields:   fields,
	}
}

// NewUserExistsError はメールアドレス重複エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "User already exists",
		Category: "validation",
		Action:   "Log in instead, or register with a different email address.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無を推測させないため、未登録メールと
// パスワード不一致のどちらでも同一のエラーを返すこと。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "Check your email address and password.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "Log in and supply a bearer token.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}
