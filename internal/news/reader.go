// Package news はCMS（WordPress）のRSSフィードから最新のお知らせを読み込む。
package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/alihajali918/sanadedu-sub000/internal/cache"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
	"github.com/alihajali918/sanadedu-sub000/internal/security"
)

const (
	defaultLimit = 10
	// maxSummaryRunes は要約の最大文字数。
	maxSummaryRunes = 200
	// maxFeedSize はフィードの最大読み取りサイズ（5MB）。
	maxFeedSize = 5 << 20
	cacheKeyBase = "news:"
)

// ErrNotConfigured はフィードURLが設定されていないことを示す。
var ErrNotConfigured = errors.New("news feed URL is not configured")

// Reader はRSSフィードの読み込みを行う。結果はTTLの間キャッシュされる。
// feedURLにサイトのページを指定した場合は、初回にページからフィードを検出して以後はそれを使う。
type Reader struct {
	mu          sync.Mutex
	resolvedURL string

	httpClient *http.Client
	logger     *slog.Logger
	text       security.TextSanitizerService
	cache      *cache.Store
	feedURL    string
	ttl        time.Duration
	limit      int
}

// NewReader はReaderの新しいインスタンスを生成する。limitが0以下なら10件。
func NewReader(httpClient *http.Client, logger *slog.Logger, text security.TextSanitizerService, store *cache.Store, feedURL string, ttl time.Duration, limit int) *Reader {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Reader{
		httpClient: httpClient,
		logger:     logger,
		text:       text,
		cache:      store,
		feedURL:    feedURL,
		ttl:        ttl,
		limit:      limit,
	}
}

// Latest は新しい順に最大limit件のお知らせを返す。
func (r *Reader) Latest(ctx context.Context) ([]model.NewsItem, error) {
	if r.feedURL == "" {
		return nil, ErrNotConfigured
	}
	return cache.GetOrCompute(ctx, r.cache, cacheKeyBase+r.feedURL, r.ttl, r.fetch)
}

func (r *Reader) fetch(ctx context.Context) ([]model.NewsItem, error) {
	feedURL := r.currentFeedURL()

	body, contentType, err := r.download(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	// サイトのURLが設定されている場合はheadのalternateリンクからフィードを探す
	if !isFeedDocument(contentType, body) && isHTML(contentType) {
		link := discoverFeedLink(body, feedURL)
		if link == "" {
			r.logger.Error("ページからフィードを検出できませんでした",
				slog.String("feed_url", feedURL),
			)
			return nil, fmt.Errorf("フィードが見つかりません: %s", feedURL)
		}
		r.logger.Info("ページからフィードを検出しました",
			slog.String("page_url", feedURL),
			slog.String("feed_url", link),
		)
		feedURL = link
		if body, _, err = r.download(ctx, feedURL); err != nil {
			return nil, err
		}
		r.setResolvedURL(feedURL)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		r.logger.Error("ニュースフィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ニュースフィードのパースに失敗しました: %w", err)
	}

	items := r.convertItems(parsed.Items)
	r.logger.Info("ニュースフィードを取得しました",
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(items)),
	)
	return items, nil
}

// download はURLを取得し、ボディとContent-Typeを返す。
func (r *Reader) download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("ニュースフィードの取得に失敗しました",
			slog.String("feed_url", target),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("ニュースフィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("ニュースフィードがエラーステータスを返しました",
			slog.String("feed_url", target),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, "", fmt.Errorf("ニュースフィードのステータスが不正です: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// currentFeedURL は検出済みのフィードURLがあればそれを、なければ設定値を返す。
func (r *Reader) currentFeedURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolvedURL != "" {
		return r.resolvedURL
	}
	return r.feedURL
}

func (r *Reader) setResolvedURL(u string) {
	r.mu.Lock()
	r.resolvedURL = u
	r.mu.Unlock()
}

// convertItems はgofeedの記事をNewsItemに変換する。
func (r *Reader) convertItems(items []*gofeed.Item) []model.NewsItem {
	out := make([]model.NewsItem, 0, min(len(items), r.limit))
	for _, item := range items {
		if item == nil {
			continue
		}
		if len(out) == r.limit {
			break
		}

		n := model.NewsItem{
			Title: r.text.PlainText(item.Title),
			Link:  item.Link,
			Image: itemImage(item),
		}
		if n.Title == "" {
			n.Title = model.FallbackTitle
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		n.Summary = truncate(r.text.PlainText(summary), maxSummaryRunes)

		if item.PublishedParsed != nil {
			n.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			n.PublishedAt = *item.UpdatedParsed
		}

		out = append(out, n)
	}
	return out
}

// itemImage はフィード画像、画像のenclosure、本文中の最初のimgの順に画像URLを探す。
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if src := firstImageSrc(item.Content); src != "" {
		return src
	}
	if src := firstImageSrc(item.Description); src != "" {
		return src
	}
	return model.PlaceholderImage
}

// firstImageSrc はHTML中の最初のimg要素のsrcを返す。
func firstImageSrc(body string) string {
	if body == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(body)))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.ToLower(string(key)) == "src" && len(val) > 0 {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

// truncate はn文字を超える場合に切り詰めて省略記号を付ける。
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
