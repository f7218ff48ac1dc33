package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garaad/garaad-api/internal/metrics"
	"github.com/garaad/garaad-api/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	UserFinder        middleware.UserFinder
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface

	// 監視
	HealthChecker HealthChecker
	Metrics       *metrics.Collector
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → RateLimit
//
// レート制限は認証処理より前段に置き、制限超過時はパスワード検証も
// トークン検証も実行しない。
// 保護ルート（/api/auth/me）のみ認証ミドルウェアを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	var authMetrics AuthMetrics
	if deps.Metrics != nil {
		authMetrics = deps.Metrics
	}
	authHandler := NewAuthHandler(deps.AuthService, authMetrics)

	// --- 監視用ルート（レート制限の対象外）---

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- APIルート（クライアントアドレス別レート制限つき）---

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api/auth", func(r chi.Router) {
			// 認証不要
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/password-reset/request", authHandler.RequestPasswordReset)
			r.Post("/password-reset/confirm", authHandler.ResetPassword)

			// 認証必須
			r.With(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.UserFinder)).
				Get("/me", authHandler.Me)
		})
	})

	return r
}
