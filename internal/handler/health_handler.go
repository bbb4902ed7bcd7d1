package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker はDB接続の疎通確認インターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// NewHealthHandler は/healthのハンドラーを返す。
// DBは任意依存のため、DBの状態にかかわらずプロセスが応答できれば200を返す。
func NewHealthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Database: "disabled"}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				resp.Database = "unavailable"
			} else {
				resp.Database = "ok"
			}
		}
		writeJSON(w, resp)
	}
}
