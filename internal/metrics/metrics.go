// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// CMSクライアント、キャッシュ、集約サービスから利用する。
type MetricsCollector interface {
	RecordCMSRequest(endpoint string, statusCode int)
	RecordCMSFailure(endpoint string, kind string)
	RecordCMSLatency(duration time.Duration)
	RecordCacheHit(key string)
	RecordCacheMiss(key string)
	RecordAggregateFailure(operation string, kind string)
	RecordSnapshotsWritten(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cmsRequests      *prometheus.CounterVec
	cmsFailures      *prometheus.CounterVec
	cmsLatency       prometheus.Histogram
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	aggregateFail    *prometheus.CounterVec
	snapshotsWritten prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cmsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_cms_requests_total",
			Help: "CMSへのリクエスト数（ステータスコード別）",
		}, []string{"endpoint", "status_code"}),
		cmsFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_cms_failures_total",
			Help: "CMSリクエストの失敗数（失敗種別ごと）",
		}, []string{"endpoint", "kind"}),
		cmsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanad_cms_latency_seconds",
			Help:    "CMSリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_cache_hits_total",
			Help: "キャッシュヒット数",
		}, []string{"key"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_cache_misses_total",
			Help: "キャッシュミス数",
		}, []string{"key"}),
		aggregateFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_aggregate_failures_total",
			Help: "集約処理の失敗数（処理・失敗種別ごと）",
		}, []string{"operation", "kind"}),
		snapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sanad_snapshots_written_total",
			Help: "保存した資金スナップショットの合計数",
		}),
	}

	reg.MustRegister(
		c.cmsRequests,
		c.cmsFailures,
		c.cmsLatency,
		c.cacheHits,
		c.cacheMisses,
		c.aggregateFail,
		c.snapshotsWritten,
	)

	return c
}

// RecordCMSRequest はCMSリクエストの応答ステータスを記録する。
func (c *Collector) RecordCMSRequest(endpoint string, statusCode int) {
	c.cmsRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordCMSFailure はCMSリクエストの失敗を記録する。
func (c *Collector) RecordCMSFailure(endpoint string, kind string) {
	c.cmsFailures.WithLabelValues(endpoint, kind).Inc()
}

// RecordCMSLatency はCMSリクエストのレイテンシを記録する。
func (c *Collector) RecordCMSLatency(duration time.Duration) {
	c.cmsLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(key string) {
	c.cacheHits.WithLabelValues(key).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(key string) {
	c.cacheMisses.WithLabelValues(key).Inc()
}

// RecordAggregateFailure は集約処理の失敗を記録する。
func (c *Collector) RecordAggregateFailure(operation string, kind string) {
	c.aggregateFail.WithLabelValues(operation, kind).Inc()
}

// RecordSnapshotsWritten は保存したスナップショット数を記録する。
func (c *Collector) RecordSnapshotsWritten(count int) {
	c.snapshotsWritten.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordCMSRequest(string, int)          {}
func (Nop) RecordCMSFailure(string, string)       {}
func (Nop) RecordCMSLatency(time.Duration)        {}
func (Nop) RecordCacheHit(string)                 {}
func (Nop) RecordCacheMiss(string)                {}
func (Nop) RecordAggregateFailure(string, string) {}
func (Nop) RecordSnapshotsWritten(int)            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
