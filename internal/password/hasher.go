// Package password はパスワードのハッシュ化と検証を提供する。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はbcryptによるパスワードハッシュ化を提供する。
// ソルトはbcryptが呼び出しごとに生成するため、同じ平文でもダイジェストは毎回異なる。
type Hasher struct {
	cost int
}

// NewHasher は指定コストのHasherを生成する。
// costがbcryptの有効範囲外の場合はデフォルトコストを使用する。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードをハッシュ化する。
// ハッシュ化に失敗した場合はエラーを返す。平文のまま扱いを続けてはならない。
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードとダイジェストを比較する。
// bcrypt内部の定数時間比較を使用するため、タイミング攻撃への耐性がある。
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
