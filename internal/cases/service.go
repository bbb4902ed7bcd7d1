// Package cases はCMSの学校・モスク・Needを取得し、正規化して集約する。
package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alihajali918/sanadedu-sub000/internal/cache"
	"github.com/alihajali918/sanadedu-sub000/internal/cms"
	"github.com/alihajali918/sanadedu-sub000/internal/cms/schema"
	"github.com/alihajali918/sanadedu-sub000/internal/format"
	"github.com/alihajali918/sanadedu-sub000/internal/metrics"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// キャッシュキー。
const (
	allCasesKey         = "all-cases"
	needsCatalogKeyBase = "needs-catalog:"
)

// 処理名（ログ・メトリクスのラベル）。
const (
	opNeedsCatalog = "needs_catalog"
	opAllCases     = "all_cases"
	opCaseByID     = "case_by_id"
)

const (
	defaultTTL     = time.Hour
	defaultPerPage = 100

	// formatConcurrency は1ドメインあたりの同時整形数の上限。
	formatConcurrency = 16
)

// Fetcher はCMSからJSONを取得するインターフェース。cms.Clientが実装する。
type Fetcher interface {
	FetchRaw(ctx context.Context, resourcePath string, query url.Values) (json.RawMessage, error)
}

// Options はServiceの設定。
type Options struct {
	// PerPage はコレクション取得時の1ページの件数。
	PerPage int
	// TTL は集約結果をキャッシュする期間。
	TTL time.Duration
}

// Service は集約処理を提供する。
type Service struct {
	fetcher   Fetcher
	formatter *format.Formatter
	cache     *cache.Store
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	perPage   int
	ttl       time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(fetcher Fetcher, formatter *format.Formatter, store *cache.Store, collector metrics.MetricsCollector, logger *slog.Logger, opts Options) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Service{
		fetcher:   fetcher,
		formatter: formatter,
		cache:     store,
		metrics:   collector,
		logger:    logger,
		perPage:   opts.PerPage,
		ttl:       opts.TTL,
	}
}

// NeedsCatalog はドメインのNeedカタログを返す。
// レコードが1件でも検証に失敗した場合はカタログ全体を失敗とする。
func (s *Service) NeedsCatalog(ctx context.Context, domain model.Domain) Result[[]model.Need] {
	resource, ok := needsResource(domain)
	if !ok {
		return fail([]model.Need{}, model.FailureValidation, fmt.Errorf("unknown need domain %q", domain))
	}

	needs, err := cache.GetOrCompute(ctx, s.cache, needsCatalogKeyBase+string(domain), s.ttl, func(ctx context.Context) ([]model.Need, error) {
		raw, err := s.fetcher.FetchRaw(ctx, resource, cms.CollectionQuery(s.perPage))
		if err != nil {
			return nil, err
		}
		records, err := schema.ParseNeedList(raw)
		if err != nil {
			s.logger.Error("Needカタログの検証に失敗しました",
				slog.String("domain", string(domain)),
				slog.String("endpoint", resource),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		needs := make([]model.Need, 0, len(records))
		for _, rec := range records {
			needs = append(needs, s.formatter.Need(rec))
		}
		return needs, nil
	})
	if err != nil {
		kind := failureKind(err)
		s.metrics.RecordAggregateFailure(opNeedsCatalog, string(kind))
		return fail([]model.Need{}, kind, err)
	}
	return succeed(needs)
}

// Catalog はformat.CatalogSourceを実装する。失敗時は空のカタログを返す。
func (s *Service) Catalog(ctx context.Context, domain model.Domain) []model.Need {
	return s.NeedsCatalog(ctx, domain).OrEmpty()
}

// Filter はCase一覧の絞り込み条件。ゼロ値は全件を意味する。
type Filter struct {
	// Type はCaseTypeまたは種別文字列（教育段階など）に一致するCaseに絞る。
	Type string
	// Governorate は県名に一致するCaseに絞る。
	Governorate string
	// UrgentOnly がtrueなら緊急のCaseだけにする。
	UrgentOnly bool
}

// IsZero は絞り込み条件が無いかを返す。
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match はCaseが条件に一致するかを返す。
func (f Filter) Match(c model.Case) bool {
	if f.Type != "" && string(c.Kind) != f.Type && c.Type != f.Type {
		return false
	}
	if f.Governorate != "" && c.Governorate != f.Governorate {
		return false
	}
	if f.UrgentOnly && !c.IsUrgent {
		return false
	}
	return true
}

// AllCases は学校とモスクのCaseを並行に取得し、学校、モスクの順に連結して返す。
// 一方のドメインが失敗しても他方の結果は返す（Kindはpartial）。
// 両方成功した集約結果だけをキャッシュし、絞り込みはキャッシュ済みの結果に適用する。
func (s *Service) AllCases(ctx context.Context, filter Filter) Result[[]model.Case] {
	all, err := cache.GetOrCompute(ctx, s.cache, allCasesKey, s.ttl, s.collectCases)

	kind := model.FailureNone
	if err != nil {
		kind = failureKind(err)
		s.metrics.RecordAggregateFailure(opAllCases, string(kind))
	}

	cases := make([]model.Case, 0, len(all))
	for _, c := range all {
		if filter.Match(c) {
			cases = append(cases, c)
		}
	}
	return Result[[]model.Case]{Value: cases, Kind: kind, Err: err}
}

// collectCases は両ドメインを取得・整形する。失敗したドメインがあれば
// 残りの結果と一緒に*PartialErrorを返す。
func (s *Service) collectCases(ctx context.Context) ([]model.Case, error) {
	var schools, mosques []model.Case
	var schoolErr, mosqueErr error

	// ドメインごとに独立して失敗させるため、エラーで他方を打ち切らない
	var wg sync.WaitGroup
	wg.Go(func() {
		schools, schoolErr = s.schoolCases(ctx)
	})
	wg.Go(func() {
		mosques, mosqueErr = s.mosqueCases(ctx)
	})
	wg.Wait()

	all := make([]model.Case, 0, len(schools)+len(mosques))
	all = append(all, schools...)
	all = append(all, mosques...)

	if schoolErr == nil && mosqueErr == nil {
		return all, nil
	}
	pe := &PartialError{}
	if schoolErr != nil {
		pe.Failures = append(pe.Failures, DomainFailure{Domain: model.DomainSchool, Kind: failureKind(schoolErr), Err: schoolErr})
	}
	if mosqueErr != nil {
		pe.Failures = append(pe.Failures, DomainFailure{Domain: model.DomainMosque, Kind: failureKind(mosqueErr), Err: mosqueErr})
	}
	return all, pe
}

func (s *Service) schoolCases(ctx context.Context) ([]model.Case, error) {
	raw, err := s.fetcher.FetchRaw(ctx, cms.ResourceSchools, cms.CollectionQuery(s.perPage))
	if err != nil {
		return nil, err
	}
	records, err := schema.ParseSchoolList(raw)
	if err != nil {
		s.logValidationFailure(model.DomainSchool, cms.ResourceSchools, err)
		return nil, err
	}
	catalog := s.sharedCatalog(ctx, model.DomainSchool, slices.ContainsFunc(records, func(rec schema.SchoolRecord) bool {
		return len(rec.ACF.SelectedNeeds) > 0
	}))
	return formatAll(ctx, records, func(ctx context.Context, rec schema.SchoolRecord) model.Case {
		return s.formatter.School(ctx, rec, catalog)
	})
}

func (s *Service) mosqueCases(ctx context.Context) ([]model.Case, error) {
	raw, err := s.fetcher.FetchRaw(ctx, cms.ResourceMosques, cms.CollectionQuery(s.perPage))
	if err != nil {
		return nil, err
	}
	records, err := schema.ParseMosqueList(raw)
	if err != nil {
		s.logValidationFailure(model.DomainMosque, cms.ResourceMosques, err)
		return nil, err
	}
	catalog := s.sharedCatalog(ctx, model.DomainMosque, slices.ContainsFunc(records, func(rec schema.MosqueRecord) bool {
		return len(rec.ACF.SelectedNeeds) > 0
	}))
	return formatAll(ctx, records, func(ctx context.Context, rec schema.MosqueRecord) model.Case {
		return s.formatter.Mosque(ctx, rec, catalog)
	})
}

// sharedCatalog は一覧の整形で全レコードが共有するカタログを返す。
// 選択済みNeedを持つレコードが無ければ取得しない。
func (s *Service) sharedCatalog(ctx context.Context, domain model.Domain, needed bool) format.CatalogSource {
	if !needed {
		return nil
	}
	needs := s.Catalog(ctx, domain)
	return format.CatalogFunc(func(context.Context, model.Domain) []model.Need {
		return needs
	})
}

// formatAll はレコードを並行に整形し、入力順のまま返す。
// ctxがキャンセルされたら残りの整形を打ち切ってエラーを返す。
func formatAll[R any](ctx context.Context, records []R, fn func(context.Context, R) model.Case) ([]model.Case, error) {
	out := make([]model.Case, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(formatConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = fn(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// probe は単一リソース取得の結果。
type probe struct {
	domain model.Domain
	c      *model.Case
	err    error
}

// CaseByID はIDに一致するCaseを返す。
// 学校とモスクを同時に問い合わせ、先に見つかった方を採用してもう一方を取り消す。
// 両方がCMSの404で終わった場合だけnot_foundとし、それ以外は学校、モスクの順で
// 最初の404以外の失敗種別を返す。
func (s *Service) CaseByID(ctx context.Context, id int) Result[*model.Case] {
	if id <= 0 {
		return fail[*model.Case](nil, model.FailureNotFound, fmt.Errorf("invalid case id %d", id))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan probe, 2)
	go func() {
		c, err := s.schoolByID(ctx, id)
		results <- probe{domain: model.DomainSchool, c: c, err: err}
	}()
	go func() {
		c, err := s.mosqueByID(ctx, id)
		results <- probe{domain: model.DomainMosque, c: c, err: err}
	}()

	failed := make(map[model.Domain]error, 2)
	for range 2 {
		p := <-results
		if p.err == nil {
			return succeed(p.c)
		}
		failed[p.domain] = p.err
	}

	kind := model.FailureNotFound
	errs := make([]error, 0, 2)
	for _, domain := range []model.Domain{model.DomainSchool, model.DomainMosque} {
		err := failed[domain]
		errs = append(errs, fmt.Errorf("%s: %w", domain, err))
		if kind == model.FailureNotFound && !cms.IsNotFound(err) {
			kind = failureKind(err)
		}
	}

	err := errors.Join(errs...)
	s.logger.Warn("Caseを取得できませんでした",
		slog.Int("record_id", id),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordAggregateFailure(opCaseByID, string(kind))
	return fail[*model.Case](nil, kind, err)
}

func (s *Service) schoolByID(ctx context.Context, id int) (*model.Case, error) {
	raw, err := s.fetcher.FetchRaw(ctx, cms.SinglePath(cms.ResourceSchools, id), cms.EmbedQuery())
	if err != nil {
		return nil, err
	}
	rec, err := schema.ParseSchool(raw)
	if err != nil {
		s.logRecordFailure(model.DomainSchool, id, err)
		return nil, err
	}
	c := s.formatter.School(ctx, rec, s)
	return &c, nil
}

func (s *Service) mosqueByID(ctx context.Context, id int) (*model.Case, error) {
	raw, err := s.fetcher.FetchRaw(ctx, cms.SinglePath(cms.ResourceMosques, id), cms.EmbedQuery())
	if err != nil {
		return nil, err
	}
	rec, err := schema.ParseMosque(raw)
	if err != nil {
		s.logRecordFailure(model.DomainMosque, id, err)
		return nil, err
	}
	c := s.formatter.Mosque(ctx, rec, s)
	return &c, nil
}

func (s *Service) logValidationFailure(domain model.Domain, endpoint string, err error) {
	s.logger.Error("Case一覧の検証に失敗しました",
		slog.String("domain", string(domain)),
		slog.String("endpoint", endpoint),
		slog.String("kind", string(model.FailureValidation)),
		slog.String("error", err.Error()),
	)
}

func (s *Service) logRecordFailure(domain model.Domain, id int, err error) {
	s.logger.Error("Caseレコードの検証に失敗しました",
		slog.String("domain", string(domain)),
		slog.Int("record_id", id),
		slog.String("kind", string(model.FailureValidation)),
		slog.String("error", err.Error()),
	)
}

func needsResource(domain model.Domain) (string, bool) {
	switch domain {
	case model.DomainSchool:
		return cms.ResourceSchoolNeeds, true
	case model.DomainMosque:
		return cms.ResourceMosqueNeeds, true
	default:
		return "", false
	}
}

// DomainFailure は1ドメイン分の取得失敗。
type DomainFailure struct {
	Domain model.Domain
	Kind   model.FailureKind
	Err    error
}

// PartialError はCase一覧で失敗したドメインを表す。
type PartialError struct {
	Failures []DomainFailure
}

// Error はerrorインターフェースを実装する。
func (e *PartialError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Domain, f.Err))
	}
	return "cases: " + strings.Join(parts, "; ")
}

// Unwrap は各ドメインの原因エラーを返す。
func (e *PartialError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// kind は1ドメインだけの失敗ならpartial、全ドメインの失敗なら最初のドメインの種別を返す。
func (e *PartialError) kind() model.FailureKind {
	if len(e.Failures) == 0 {
		return model.FailureNone
	}
	if len(e.Failures) == 1 {
		return model.FailurePartial
	}
	return e.Failures[0].Kind
}
