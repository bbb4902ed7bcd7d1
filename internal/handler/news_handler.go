package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alihajali918/sanadedu-sub000/internal/model"
	"github.com/alihajali918/sanadedu-sub000/internal/news"
)

// NewsReaderInterface はお知らせの読み取りインターフェース。news.Readerが実装する。
type NewsReaderInterface interface {
	Latest(ctx context.Context) ([]model.NewsItem, error)
}

// NewsHandler はお知らせのHTTPハンドラー。
type NewsHandler struct {
	reader NewsReaderInterface
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(reader NewsReaderInterface) *NewsHandler {
	return &NewsHandler{reader: reader}
}

// newsResponse はお知らせ一覧のレスポンス。
type newsResponse struct {
	Items []model.NewsItem `json:"items"`
}

// ListNews は最新のお知らせを返す。取得に失敗しても200で空リストを返す。
// GET /api/news
func (h *NewsHandler) ListNews(w http.ResponseWriter, r *http.Request) {
	items, err := h.reader.Latest(r.Context())
	switch {
	case errors.Is(err, news.ErrNotConfigured):
		setResult(w, model.FailureConfigMissing)
		items = nil
	case err != nil:
		slog.Warn("お知らせの取得に失敗しました", slog.String("error", err.Error()))
		setResult(w, model.FailureTransport)
		items = nil
	default:
		setResult(w, model.FailureNone)
	}
	if items == nil {
		items = []model.NewsItem{}
	}

	writeJSON(w, newsResponse{Items: items})
}
