package handler

import (
	"context"
	"net/http"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler はヘルスチェックのHTTPハンドラーを返す。
// DB接続が確認できれば200、できなければ503を返す。
// GET /health
func NewHealthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		dbStatus := "connected"
		statusCode := http.StatusOK

		if err := db.PingContext(r.Context()); err != nil {
			status = "unhealthy"
			dbStatus = "disconnected"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, map[string]string{
			"status":   status,
			"database": dbStatus,
		})
	}
}
