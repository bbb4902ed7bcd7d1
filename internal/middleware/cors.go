package middleware

import "net/http"

// NewCORSMiddleware はフロントエンド（CORS_ALLOWED_ORIGIN）向けのCORSヘッダーを付ける。
// 公開APIはGETのみでCookieを扱わない。フロントエンドがX-Request-IDと
// X-Sanad-Resultを読めるようにExpose-Headersに含める。
// OPTIONSプリフライトには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader+", "+ResultHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
