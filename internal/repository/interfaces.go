// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/garaad/garaad-api/internal/model"
)

// ErrDuplicateEmail はメールアドレスのUNIQUE制約違反を表す。
// 同時登録の競合でもDB側の制約により必ずこのエラーに収束する。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。
	// メールアドレスは保存時の表記そのままで完全一致比較する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CountAdmins は管理者フラグが立っているユーザー数を返す。
	CountAdmins(ctx context.Context) (int, error)
}
