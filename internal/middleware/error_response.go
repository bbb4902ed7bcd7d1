package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// ResultHeader は集約処理の内部的な失敗種別を運用者向けに返すヘッダー。
// 本文は失敗時も空状態に畳み込まれるため、区別はこのヘッダーでのみ行う。
const ResultHeader = "X-Sanad-Result"

// ErrorResponseBody はAPIエラーの本文。
// message/actionはアラビア語でそのまま画面に表示され、codeはフロントエンドの分岐に使う。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// CASE_NOT_FOUND、INVALID_DOMAIN、HISTORY_UNAVAILABLE、RATE_LIMITEDなどで共通。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError はINTERNAL_ERRORの500を書き込む。原因は本文に含めない。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
