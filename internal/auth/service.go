// Package auth は認証・認可のドメインロジックを提供する。
// パスワード認証、トークン発行、管理者アカウントのブートストラップを含む。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garaad/garaad-api/internal/model"
	"github.com/garaad/garaad-api/internal/repository"
)

// minPasswordLength は登録時に要求するパスワードの最小文字数。
const minPasswordLength = 6

// TokenIssuer はトークン発行のインターフェース。
// token.Serviceの部分集合として定義する。
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// PasswordHasher はパスワードのハッシュ化・検証のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Register は新規ユーザーを登録し、トークンを発行する。
// バリデーション違反はすべてのフィールドをまとめて返す。
// メールアドレス重複は事前チェックに加えてDBのUNIQUE制約でも検出するため、
// 同時登録の競合でも重複レコードは作られない。
func (s *Service) Register(ctx context.Context, name, email, pass string) (*model.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if violations := validateRegistration(name, email, pass); len(violations) > 0 {
		return nil, "", model.NewValidationError(violations)
	}

	// 事前チェック（早期リターン用。競合時の最終防衛線はUNIQUE制約）
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, "", model.NewUserExistsError()
	}

	digest, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		IsAdmin:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, "", model.NewUserExistsError()
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	tokenString, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return user, tokenString, nil
}

// Login はメールアドレスとパスワードでユーザーを認証し、新しいトークンを発行する。
// 未登録メールとパスワード不一致は同一のエラーを返す（メールアドレスの存在を
// 推測させないため、区別してはならない）。
func (s *Service) Login(ctx context.Context, email, pass string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil || !s.hasher.Verify(pass, user.PasswordHash) {
		return nil, "", model.NewInvalidCredentialsError()
	}

	tokenString, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return user, tokenString, nil
}

// CurrentUser は認証済みユーザーIDからユーザー情報を取得する。
// トークンは有効だがレコードが削除済みの場合はUserNotFoundを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// RequestPasswordReset はパスワードリセットの依頼を受け付ける。
// メール送信とワンタイムトークンの発行は外部システムの責務であり、
// ここでは対象ユーザーの存在確認のみを行うスタブ実装。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}

	slog.Info("password reset requested",
		slog.String("user_id", user.ID),
	)

	return "Password reset link sent to your email", nil
}

// ResetPassword はリセットトークンによるパスワード更新のスタブ実装。
// リセットトークンの検証・消費は外部システムの責務であり、ここでは実装しない。
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	return "Password reset successfully", nil
}

// validateRegistration は登録入力を検証し、違反をすべて列挙して返す。
func validateRegistration(name, email, pass string) []model.FieldViolation {
	var violations []model.FieldViolation

	if name == "" {
		violations = append(violations, model.FieldViolation{
			Field:   "username",
			Message: "username is required",
		})
	}

	if email == "" {
		violations = append(violations, model.FieldViolation{
			Field:   "email",
			Message: "email is required",
		})
	} else if _, err := mail.ParseAddress(email); err != nil {
		violations = append(violations, model.FieldViolation{
			Field:   "email",
			Message: "email must be a valid email address",
		})
	}

	if pass == "" {
		violations = append(violations, model.FieldViolation{
			Field:   "password",
			Message: "password is required",
		})
	} else if len(pass) < minPasswordLength {
		violations = append(violations, model.FieldViolation{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		})
	}

	return violations
}
