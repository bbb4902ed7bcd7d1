package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alihajali918/sanadedu-sub000/internal/cache"
	"github.com/alihajali918/sanadedu-sub000/internal/cases"
	"github.com/alihajali918/sanadedu-sub000/internal/cms"
	"github.com/alihajali918/sanadedu-sub000/internal/config"
	"github.com/alihajali918/sanadedu-sub000/internal/database"
	"github.com/alihajali918/sanadedu-sub000/internal/format"
	"github.com/alihajali918/sanadedu-sub000/internal/handler"
	"github.com/alihajali918/sanadedu-sub000/internal/logger"
	"github.com/alihajali918/sanadedu-sub000/internal/metrics"
	"github.com/alihajali918/sanadedu-sub000/internal/middleware"
	"github.com/alihajali918/sanadedu-sub000/internal/news"
	"github.com/alihajali918/sanadedu-sub000/internal/repository"
	"github.com/alihajali918/sanadedu-sub000/internal/security"
	"github.com/alihajali918/sanadedu-sub000/internal/worker/cleanup"
	"github.com/alihajali918/sanadedu-sub000/internal/worker/snapshot"
)

const (
	cleanupInterval    = 24 * time.Hour
	cachePruneInterval = 10 * time.Minute
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もJSONで記録できるよう、先にInfoレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if cmd.RequiresDatabase() {
		if err := cfg.RequireDatabase(); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("cms_configured", cfg.CMSBaseURL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components はserveとworkerで共有する読み取り経路の依存関係。
type components struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	cases     *cases.Service
	news      *news.Reader
	stores    []*cache.Store
}

// startCachePruning はキャッシュの期限切れエントリ削除をctxの終了まで続ける。
func (c *components) startCachePruning(ctx context.Context, interval time.Duration) {
	for _, store := range c.stores {
		go store.StartPruning(ctx, interval)
	}
}

// buildComponents はCMSクライアントから集約サービスまでを組み立てる。
// CMS_BASE_URLが未設定でもエラーにしない（呼び出し時にconfig_missingになる）。
func buildComponents(cfg *config.Config, log *slog.Logger) (*components, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	httpClient := &http.Client{Timeout: cfg.CMSTimeout}
	if cfg.CMSSSRFGuard {
		guard := security.NewSSRFGuard()
		for _, raw := range []string{cfg.CMSBaseURL, cfg.NewsFeedURL} {
			if raw == "" {
				continue
			}
			if err := guard.ValidateURL(raw); err != nil {
				return nil, fmt.Errorf("unsafe upstream URL %s: %w", redactURL(raw), err)
			}
		}
		httpClient = guard.NewSafeClient(cfg.CMSTimeout)
	}

	store := cache.New(cache.WithObserver(collector))
	responses := cache.New()
	text := security.NewTextSanitizer()

	client := cms.NewClient(httpClient, log, cms.Config{
		BaseURL:    cfg.CMSBaseURL,
		Revalidate: cfg.CMSRevalidate,
		Responses:  responses,
	}, collector)

	service := cases.NewService(client, format.New(text), store, collector, log, cases.Options{
		PerPage: cfg.CMSPerPage,
		TTL:     cfg.CMSRevalidate,
	})

	reader := news.NewReader(httpClient, log, text, store, cfg.NewsFeedURL, cfg.CMSRevalidate, cfg.NewsLimit)

	return &components{
		registry:  registry,
		collector: collector,
		cases:     service,
		news:      reader,
		stores:    []*cache.Store{store, responses},
	}, nil
}

// newRouter はHTTPルーターを構築する。dbがnilの場合、履歴APIは503を返す。
// 返り値の関数でレートリミッターのバックグラウンド処理を停止する。
func newRouter(cfg *config.Config, comp *components, db *sql.DB, log *slog.Logger) (http.Handler, func()) {
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral), log)

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		MetricsGatherer:   comp.registry,
		CaseService:       comp.cases,
		NewsReader:        comp.news,
	}
	// nilの*sql.DBをインターフェースに入れると非nil扱いになるため、設定時のみ代入する
	if db != nil {
		deps.HealthChecker = db
		deps.HistoryReader = repository.NewPostgresSnapshotRepo(db)
	}

	return handler.NewRouter(deps), rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// DATABASE_URLは任意で、接続できない場合も履歴API以外は提供を続ける。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	comp, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}

	db := openOptionalDB(ctx, cfg, log)
	if db != nil {
		defer db.Close()
	}

	router, stopRouter := newRouter(cfg, comp, db, log)
	defer stopRouter()

	comp.startCachePruning(ctx, cachePruneInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// openOptionalDB はDATABASE_URLが設定されていれば接続する。失敗時は警告を出してnilを返す。
func openOptionalDB(ctx context.Context, cfg *config.Config, log *slog.Logger) *sql.DB {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL is not set; funding history is disabled")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	db, err := database.OpenAndPing(pingCtx, cfg.DatabaseURL)
	if err != nil {
		log.Warn("database unavailable; funding history is disabled",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	log.Info("database connection established")
	return db
}

// runWorker はワーカーモードで起動する。
// スナップショットの定期記録と、保持期間を超えたスナップショットの日次削除を行う。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	log := slog.Default()

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	db, err := database.OpenAndPing(pingCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	comp, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}

	snapshots := repository.NewPostgresSnapshotRepo(db)
	scheduler := snapshot.NewScheduler(comp.cases, snapshots, comp.collector, log)
	cleanupJob := cleanup.NewCleanupJob(snapshots, log, cfg.SnapshotRetentionDays)

	slog.Info("worker starting",
		slog.Duration("snapshot_interval", cfg.SnapshotInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	go cleanupJob.Start(ctx, cleanupInterval)
	comp.startCachePruning(ctx, cachePruneInterval)

	// スナップショットスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SnapshotInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}

// redactURL はログ用にURLからクエリと認証情報を取り除く。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
