// Package token は署名付きセッショントークンの発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 検証失敗の内部分類。ログ・診断用であり、HTTP境界ではすべて401に収束させる。
// クライアントに区別を返すとトークン偽造の手がかりになるため、外に漏らさないこと。
var (
	// ErrMalformed はトークンがJWTとしてパースできないことを表す。
	ErrMalformed = errors.New("token is malformed")
	// ErrSignatureInvalid は署名が一致しないこと（改ざんまたは別鍵）を表す。
	ErrSignatureInvalid = errors.New("token signature is invalid")
	// ErrExpired はトークンが有効期限切れであることを表す。
	ErrExpired = errors.New("token is expired")
)

// Claims はJWTのクレーム。標準クレームに加えてサブジェクトにユーザーIDを保持する。
type Claims struct {
	jwt.RegisteredClaims
}

// Service はHMAC-SHA256で署名したJWTの発行・検証を行う。
// トークンはステートレスであり、署名と有効期限のみで検証できる。
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService はServiceを生成する。
// secretは設定から渡された署名鍵であり、空であってはならない（config.Loadで検証済み）。
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue は指定ユーザーIDを紐付けた署名付きトークンを発行する。
func (s *Service) Issue(userID string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	})

	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify はトークンを検証し、有効であれば紐付いたユーザーIDを返す。
// 失敗時はErrMalformed、ErrSignatureInvalid、ErrExpiredのいずれかを返す。
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrSignatureInvalid
		default:
			return "", ErrMalformed
		}
	}

	if !t.Valid || claims.Subject == "" {
		return "", ErrMalformed
	}

	return claims.Subject, nil
}
