package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// TestRequestIDMiddleware_GeneratesID はIDが無い場合に新規生成されることを検証する。
func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cases", nil))

	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("request id %q is not a UUID: %v", captured, err)
	}
	if got := w.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("%s = %q, want %q", RequestIDHeader, got, captured)
	}
}

// TestRequestIDMiddleware_PropagatesValidID は受信した有効なIDを引き継ぐことを検証する。
func TestRequestIDMiddleware_PropagatesValidID(t *testing.T) {
	incoming := uuid.New().String()
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	req.Header.Set(RequestIDHeader, incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != incoming {
		t.Errorf("request id = %q, want %q", captured, incoming)
	}
}

// TestRequestIDMiddleware_ReplacesInvalidID は不正なIDを置き換えることを検証する。
func TestRequestIDMiddleware_ReplacesInvalidID(t *testing.T) {
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured == "<script>" || captured == "" {
		t.Errorf("invalid incoming id should be replaced, got %q", captured)
	}
}

// TestRequestIDFromContext_Empty はIDが無いコンテキストで空文字を返すことを検証する。
func TestRequestIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(req.Context()); got != "" {
		t.Errorf("RequestIDFromContext() = %q, want empty", got)
	}
}
