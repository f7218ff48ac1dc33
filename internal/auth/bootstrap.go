package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/garaad/garaad-api/internal/model"
	"github.com/garaad/garaad-api/internal/repository"
)

// BootstrapConfig は管理者アカウント初期化の設定。
type BootstrapConfig struct {
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// EnsureAdmin は既知のメールアドレスを持つ管理者アカウントが存在することを保証する。
// 起動シーケンスからリッスン開始前に明示的に1回呼び出すこと。
// 存在確認してから作成するため毎回の起動で安全に実行でき、複数レプリカの
// 同時起動で競合した場合もemailのUNIQUE制約が重複作成を防ぐ。
func EnsureAdmin(ctx context.Context, userRepo repository.UserRepository, hasher PasswordHasher, cfg BootstrapConfig) error {
	existing, err := userRepo.FindByEmail(ctx, cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	digest, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now()
	admin := &model.User{
		ID:           uuid.New().String(),
		Name:         cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: digest,
		IsAdmin:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := userRepo.Create(ctx, admin); err != nil {
		// 別レプリカが先に作成した場合は成功扱い
		if err == repository.ErrDuplicateEmail {
			return nil
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("default admin user created",
		slog.String("user_id", admin.ID),
	)

	return nil
}
