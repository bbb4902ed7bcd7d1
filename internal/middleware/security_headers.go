package middleware

import "net/http"

// apiContentSecurityPolicy はJSONのみを返すAPI向けのCSP。ブラウザでの描画・埋め込みを一切許可しない。
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
