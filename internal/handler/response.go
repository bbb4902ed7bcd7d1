package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alihajali918/sanadedu-sub000/internal/middleware"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// writeJSON は200でJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一フォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// setResult は集約処理の失敗種別をヘッダーに設定する。
func setResult(w http.ResponseWriter, kind model.FailureKind) {
	if kind == "" {
		kind = model.FailureNone
	}
	w.Header().Set(middleware.ResultHeader, string(kind))
}
