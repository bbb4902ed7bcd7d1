package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alihajali918/sanadedu-sub000/internal/cases"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// CaseServiceInterface はCaseハンドラーが必要とするサービスインターフェース。
// cases.Serviceが実装する。
type CaseServiceInterface interface {
	AllCases(ctx context.Context, filter cases.Filter) cases.Result[[]model.Case]
	CaseByID(ctx context.Context, id int) cases.Result[*model.Case]
	NeedsCatalog(ctx context.Context, domain model.Domain) cases.Result[[]model.Need]
}

// CaseHandler はCaseとNeedカタログのHTTPハンドラー。
type CaseHandler struct {
	service CaseServiceInterface
}

// NewCaseHandler はCaseHandlerを生成する。
func NewCaseHandler(service CaseServiceInterface) *CaseHandler {
	return &CaseHandler{service: service}
}

// caseListResponse はCase一覧のレスポンス。
type caseListResponse struct {
	Cases []model.Case `json:"cases"`
}

// needListResponse はNeedカタログのレスポンス。
type needListResponse struct {
	Domain model.Domain `json:"domain"`
	Needs  []model.Need `json:"needs"`
}

// ListCases はCase一覧を返す。取得に失敗しても200で空リストを返す。
// GET /api/cases?type=school|mosque|<教育段階>&governorate=xxx&urgent=true
func (h *CaseHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	urgent, _ := strconv.ParseBool(q.Get("urgent"))
	filter := cases.Filter{
		Type:        strings.TrimSpace(q.Get("type")),
		Governorate: strings.TrimSpace(q.Get("governorate")),
		UrgentOnly:  urgent,
	}

	res := h.service.AllCases(r.Context(), filter)

	setResult(w, res.Kind)
	writeJSON(w, caseListResponse{Cases: res.OrEmpty()})
}

// GetCase はCase詳細を返す。見つからない場合は（CMS障害を含め）404を返す。
// GET /api/cases/{id}
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	res := h.service.CaseByID(r.Context(), id)
	setResult(w, res.Kind)

	c := res.OrEmpty()
	if c == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCaseNotFoundError(id))
		return
	}
	writeJSON(w, c)
}

// ListNeeds はドメインのNeedカタログを返す。取得に失敗しても200で空リストを返す。
// GET /api/needs/{domain}
func (h *CaseHandler) ListNeeds(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "domain")
	domain, ok := model.ParseDomain(raw)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDomainError(raw))
		return
	}

	res := h.service.NeedsCatalog(r.Context(), domain)

	setResult(w, res.Kind)
	writeJSON(w, needListResponse{Domain: domain, Needs: res.OrEmpty()})
}

// parseCaseID はURLパラメータのCase IDを検証する。不正な場合は400を書き込みfalseを返す。
func parseCaseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCaseIDError(raw))
		return 0, false
	}
	return id, true
}
