package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryReaderInterface は資金スナップショットの読み取りインターフェース。
// repository.SnapshotRepositoryが実装する。
type HistoryReaderInterface interface {
	ListByCase(ctx context.Context, caseID int, limit int) ([]model.FundingSnapshot, error)
}

// HistoryHandler はCaseの資金推移のHTTPハンドラー。
type HistoryHandler struct {
	reader HistoryReaderInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。readerがnilの場合は常に503を返す。
func NewHistoryHandler(reader HistoryReaderInterface) *HistoryHandler {
	return &HistoryHandler{reader: reader}
}

// historyResponse は資金推移のレスポンス。新しい順。
type historyResponse struct {
	CaseID    int                     `json:"caseId"`
	Snapshots []model.FundingSnapshot `json:"snapshots"`
}

// GetHistory はCaseの資金スナップショットを返す。
// GET /api/cases/{id}/history?limit=100
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	if h.reader == nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewHistoryUnavailableError())
		return
	}

	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxHistoryLimit)
	}

	snapshots, err := h.reader.ListByCase(r.Context(), id, limit)
	if err != nil {
		slog.Error("資金スナップショットの取得に失敗しました",
			slog.Int("record_id", id),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewHistoryUnavailableError())
		return
	}
	if snapshots == nil {
		snapshots = []model.FundingSnapshot{}
	}

	writeJSON(w, historyResponse{CaseID: id, Snapshots: snapshots})
}
