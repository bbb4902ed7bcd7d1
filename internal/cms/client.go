// Package cms はヘッドレスCMS（WordPress REST API）からのデータ取得を提供する。
// 取得に失敗しても例外的な終了はせず、失敗種別付きのエラーを返す。
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alihajali918/sanadedu-sub000/internal/cache"
	"github.com/alihajali918/sanadedu-sub000/internal/metrics"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// CMSのリソースパス。
const (
	ResourceSchools     = "schools"
	ResourceMosques     = "mosques"
	ResourceSchoolNeeds = "school-needs"
	ResourceMosqueNeeds = "mosque-needs"
)

const (
	// defaultRevalidate はレスポンスキャッシュの再検証間隔。
	defaultRevalidate = time.Hour
	// maxBodySize はレスポンスボディの最大読み取りサイズ（10MB）。
	maxBodySize = 10 << 20
	userAgent   = "Sanad/1.0 (+cms-client)"
)

// FetchError はCMS取得失敗を表す。Kindで失敗の種類を判別できる。
type FetchError struct {
	Kind       model.FailureKind
	Endpoint   string
	StatusCode int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("cms %s: %s (status %d)", e.Endpoint, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("cms %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("cms %s: %s", e.Endpoint, e.Kind)
	}
}

// Unwrap は原因エラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf はエラーからFailureKindを取り出す。FetchError以外はtransportとみなす。
func KindOf(err error) model.FailureKind {
	if err == nil {
		return model.FailureNone
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return model.FailureTransport
}

// IsNotFound はCMSがリソースの不在（404）を返したエラーかを判定する。
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == model.FailureUpstreamStatus && fe.StatusCode == http.StatusNotFound
}

// Config はClientの設定。
type Config struct {
	// BaseURL はREST APIのベースURL（例: https://cms.example.org/wp-json/wp/v2）。
	// 空の場合は各呼び出しがconfig_missingで失敗する。
	BaseURL string
	// Revalidate は成功レスポンスをキャッシュする期間。0以下の場合は1時間。
	Revalidate time.Duration
	// Responses はレスポンスキャッシュ。nilの場合はClient専用のStoreを作る。
	// 期限切れエントリの削除は呼び出し側がStartPruningで行う。
	Responses *cache.Store
}

// Client はCMSのREST APIクライアント。
// 成功レスポンスはURL単位でRevalidateの間キャッシュされる。リトライは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	revalidate time.Duration
	responses  *cache.Store
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config, collector metrics.MetricsCollector) *Client {
	if collector == nil {
		collector = metrics.Nop{}
	}
	revalidate := cfg.Revalidate
	if revalidate <= 0 {
		revalidate = defaultRevalidate
	}
	responses := cfg.Responses
	if responses == nil {
		responses = cache.New()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		revalidate: revalidate,
		responses:  responses,
		metrics:    collector,
	}
}

// FetchRaw はresourcePathに対してGETを発行し、JSONボディをそのまま返す。
// 失敗時はログに記録したうえで*FetchErrorを返す（panicしない）。
func (c *Client) FetchRaw(ctx context.Context, resourcePath string, query url.Values) (json.RawMessage, error) {
	endpoint := strings.Trim(resourcePath, "/")

	if c.baseURL == "" {
		c.logger.Error("CMSのベースURLが設定されていません",
			slog.String("endpoint", endpoint),
		)
		c.metrics.RecordCMSFailure(metricsEndpoint(endpoint), string(model.FailureConfigMissing))
		return nil, &FetchError{Kind: model.FailureConfigMissing, Endpoint: endpoint}
	}

	reqURL := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	return cache.GetOrCompute(ctx, c.responses, reqURL, c.revalidate, func(ctx context.Context) (json.RawMessage, error) {
		return c.get(ctx, endpoint, reqURL)
	})
}

// get は1回だけHTTP GETを実行する。
func (c *Client) get(ctx context.Context, endpoint, reqURL string) (json.RawMessage, error) {
	label := metricsEndpoint(endpoint)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Error("CMSリクエストの作成に失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordCMSFailure(label, string(model.FailureTransport))
		return nil, &FetchError{Kind: model.FailureTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// 呼び出し元が取り消した場合は障害として扱わない
			c.logger.Debug("CMSリクエストがキャンセルされました",
				slog.String("endpoint", endpoint),
			)
			return nil, &FetchError{Kind: model.FailureTransport, Endpoint: endpoint, Err: ctx.Err()}
		}
		c.logger.Error("CMSへのリクエストに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordCMSFailure(label, string(model.FailureTransport))
		return nil, &FetchError{Kind: model.FailureTransport, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordCMSLatency(time.Since(start))
	c.metrics.RecordCMSRequest(label, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("CMSがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		c.metrics.RecordCMSFailure(label, string(model.FailureUpstreamStatus))
		return nil, &FetchError{Kind: model.FailureUpstreamStatus, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.logger.Error("CMSレスポンスの読み取りに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordCMSFailure(label, string(model.FailureTransport))
		return nil, &FetchError{Kind: model.FailureTransport, Endpoint: endpoint, Err: err}
	}

	if !json.Valid(body) {
		c.logger.Error("CMSレスポンスがJSONではありません",
			slog.String("endpoint", endpoint),
			slog.Int("body_size", len(body)),
		)
		c.metrics.RecordCMSFailure(label, string(model.FailureTransport))
		return nil, &FetchError{Kind: model.FailureTransport, Endpoint: endpoint, Err: errors.New("invalid JSON body")}
	}

	c.logger.Debug("CMSからの取得が完了しました",
		slog.String("endpoint", endpoint),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("body_size", len(body)),
	)

	return json.RawMessage(body), nil
}

// metricsEndpoint はメトリクスラベル用にパスの先頭セグメントだけを返す。
// 単一リソースのID（schools/123）でラベルが増え続けるのを防ぐ。
func metricsEndpoint(endpoint string) string {
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// CollectionQuery はコレクション取得用のクエリ（関連データ埋め込み付き）を返す。
func CollectionQuery(perPage int) url.Values {
	q := EmbedQuery()
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}

// EmbedQuery は関連データ（メディア、タクソノミー）を埋め込むクエリを返す。
func EmbedQuery() url.Values {
	q := url.Values{}
	q.Set("_embed", "1")
	return q
}

// SinglePath は単一リソースのパスを返す。
func SinglePath(resource string, id int) string {
	return resource + "/" + strconv.Itoa(id)
}
