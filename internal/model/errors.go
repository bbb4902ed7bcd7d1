package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, case, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCaseNotFound       = "CASE_NOT_FOUND"
	ErrCodeInvalidCaseID      = "INVALID_CASE_ID"
	ErrCodeInvalidDomain      = "INVALID_DOMAIN"
	ErrCodeHistoryUnavailable = "HISTORY_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewCaseNotFoundError はCase未検出エラーを生成する。
// CMSの障害と本当に存在しない場合を区別しない（UIは同じ表示にする）。
func NewCaseNotFoundError(caseID int) *APIError {
	return &APIError{
		Code:     ErrCodeCaseNotFound,
		Message:  fmt.Sprintf("لم يتم العثور على الحالة: %d", caseID),
		Category: "case",
		Action:   "تحقق من رقم الحالة أو تصفح الحالات المتاحة.",
	}
}

// NewInvalidCaseIDError は不正なCase IDエラーを生成する。
func NewInvalidCaseIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCaseID,
		Message:  fmt.Sprintf("رقم الحالة غير صالح: %s", raw),
		Category: "validation",
		Action:   "يجب أن يكون رقم الحالة عدداً صحيحاً موجباً.",
	}
}

// NewInvalidDomainError は未知のNeedドメインエラーを生成する。
func NewInvalidDomainError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  fmt.Sprintf("نوع الاحتياجات غير معروف: %s", domain),
		Category: "validation",
		Action:   "استخدم school أو mosque.",
	}
}

// NewHistoryUnavailableError は履歴ストアが未構成の場合のエラーを生成する。
func NewHistoryUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeHistoryUnavailable,
		Message:  "سجل التمويل غير متاح حالياً.",
		Category: "system",
		Action:   "حاول مرة أخرى لاحقاً.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "عدد الطلبات كبير جداً.",
		Category: "system",
		Action:   "انتظر قليلاً ثم أعد المحاولة.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "حدث خطأ داخلي.",
		Category: "system",
		Action:   "حاول مرة أخرى بعد قليل.",
	}
}
