package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alihajali918/sanadedu-sub000/internal/metrics"
	"github.com/alihajali918/sanadedu-sub000/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker   HealthChecker       // nilの場合はDB無効として報告する
	MetricsGatherer prometheus.Gatherer // nilの場合は/metricsを公開しない

	// ドメイン
	CaseService   CaseServiceInterface
	NewsReader    NewsReaderInterface
	HistoryReader HistoryReaderInterface // nilの場合は履歴APIが503を返す
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	caseHandler := NewCaseHandler(deps.CaseService)
	newsHandler := NewNewsHandler(deps.NewsReader)
	historyHandler := NewHistoryHandler(deps.HistoryReader)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api/cases", func(r chi.Router) {
			r.Get("/", caseHandler.ListCases)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", caseHandler.GetCase)
				r.Get("/history", historyHandler.GetHistory)
			})
		})

		r.Get("/api/needs/{domain}", caseHandler.ListNeeds)
		r.Get("/api/news", newsHandler.ListNews)
	})

	return r
}
