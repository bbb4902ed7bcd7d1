package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alihajali918/sanadedu-sub000/internal/cache"
	"github.com/alihajali918/sanadedu-sub000/internal/cms"
	"github.com/alihajali918/sanadedu-sub000/internal/format"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
	"github.com/alihajali918/sanadedu-sub000/internal/security"
)

// mockFetcher はFetcherのモック実装。
type mockFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	fetchFn func(ctx context.Context, resourcePath string, query url.Values) (json.RawMessage, error)
}

func (m *mockFetcher) FetchRaw(ctx context.Context, resourcePath string, query url.Values) (json.RawMessage, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[resourcePath]++
	m.mu.Unlock()
	return m.fetchFn(ctx, resourcePath, query)
}

func (m *mockFetcher) count(resourcePath string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[resourcePath]
}

// routes はパスごとの固定レスポンスを返すfetchFnを作る。未登録のパスは404。
func routes(bodies map[string]string) func(context.Context, string, url.Values) (json.RawMessage, error) {
	return func(_ context.Context, path string, _ url.Values) (json.RawMessage, error) {
		body, ok := bodies[path]
		if !ok {
			return nil, &cms.FetchError{Kind: model.FailureUpstreamStatus, Endpoint: path, StatusCode: http.StatusNotFound}
		}
		return json.RawMessage(body), nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(f Fetcher) *Service {
	return NewService(f, format.New(security.NewTextSanitizer()), cache.New(), nil, testLogger(), Options{})
}

const (
	schoolsJSON = `[
		{"id": 1, "title": {"rendered": "مدرسة الأمل"}, "acf": {"need_level": "عالي", "selected_needs": [{"id": 5, "label": "مقاعد"}], "needs_quantities": "5=10", "total_needed": "15000", "total_donated": 11250},
		 "_embedded": {"wp:term": [[{"id": 1, "name": "إدلب", "taxonomy": "location"}]]}},
		{"id": 2, "title": {"rendered": "مدرسة الفجر"}, "acf": {"education_level": "ثانوي"},
		 "_embedded": {"wp:term": [[{"id": 2, "name": "حلب", "taxonomy": "location"}]]}}
	]`
	mosquesJSON     = `[{"id": 10, "title": {"rendered": "مسجد التقوى"}, "acf": {"need_level": "عالي", "total_needed": 0, "total_donated": 50}}]`
	schoolNeedsJSON = `[{"id": 5, "title": {"rendered": "مقاعد"}, "acf": {"unit_price": "40"}}]`
)

func fullCMS() map[string]string {
	return map[string]string{
		cms.ResourceSchools:     schoolsJSON,
		cms.ResourceMosques:     mosquesJSON,
		cms.ResourceSchoolNeeds: schoolNeedsJSON,
		cms.ResourceMosqueNeeds: `[]`,
	}
}

func caseIDs(cases []model.Case) []int {
	ids := make([]int, 0, len(cases))
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	return ids
}

// TestAllCases_SchoolsThenMosques は学校、モスクの順に連結されることを検証する。
func TestAllCases_SchoolsThenMosques(t *testing.T) {
	svc := newTestService(&mockFetcher{fetchFn: routes(fullCMS())})

	res := svc.AllCases(context.Background(), Filter{})

	if res.Kind != model.FailureNone || res.Err != nil {
		t.Fatalf("Kind = %q, Err = %v, want none", res.Kind, res.Err)
	}
	if diff := cmp.Diff([]int{1, 2, 10}, caseIDs(res.Value)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	first := res.Value[0]
	if first.Progress != 75 {
		t.Errorf("Progress = %d, want 75", first.Progress)
	}
	want := []model.CaseNeed{{
		Need: model.Need{
			ID:          5,
			Item:        "مقاعد",
			UnitPrice:   40,
			Description: model.FallbackDescription,
			Image:       model.PlaceholderImage,
			Category:    model.Unspecified,
			Icon:        model.DefaultNeedIcon,
		},
		Quantity: 10,
	}}
	if diff := cmp.Diff(want, first.Needs); diff != "" {
		t.Errorf("Needs mismatch (-want +got):\n%s", diff)
	}
	if res.Value[2].Progress != 0 {
		t.Errorf("mosque Progress = %d, want 0 when nothing is needed", res.Value[2].Progress)
	}
}

// TestAllCases_Cached は2回目の呼び出しでCMSに問い合わせないことを検証する。
func TestAllCases_Cached(t *testing.T) {
	f := &mockFetcher{fetchFn: routes(fullCMS())}
	svc := newTestService(f)

	svc.AllCases(context.Background(), Filter{})
	res := svc.AllCases(context.Background(), Filter{UrgentOnly: true})

	if f.count(cms.ResourceSchools) != 1 || f.count(cms.ResourceMosques) != 1 {
		t.Errorf("schools = %d, mosques = %d calls, want 1 each",
			f.count(cms.ResourceSchools), f.count(cms.ResourceMosques))
	}
	if diff := cmp.Diff([]int{1, 10}, caseIDs(res.Value)); diff != "" {
		t.Errorf("urgent ids mismatch (-want +got):\n%s", diff)
	}
}

// TestAllCases_Filter は絞り込み条件を検証する。
func TestAllCases_Filter(t *testing.T) {
	svc := newTestService(&mockFetcher{fetchFn: routes(fullCMS())})

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"条件なし", Filter{}, []int{1, 2, 10}},
		{"学校", Filter{Type: "school"}, []int{1, 2}},
		{"教育段階", Filter{Type: "ثانوي"}, []int{2}},
		{"モスク", Filter{Type: "mosque"}, []int{10}},
		{"県", Filter{Governorate: "حلب"}, []int{2}},
		{"緊急の学校", Filter{Type: "school", UrgentOnly: true}, []int{1}},
		{"該当なし", Filter{Governorate: "دمشق"}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.AllCases(context.Background(), tt.filter)
			if diff := cmp.Diff(tt.want, caseIDs(res.Value)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestAllCases_MosquesUpstreamFailure はモスクが500でも学校だけを返すことを検証する。
// 実際のcms.Clientとテストサーバーを使う。
func TestAllCases_MosquesUpstreamFailure(t *testing.T) {
	var mosqueHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/schools", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_embed") != "1" {
			t.Errorf("expected _embed=1, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, schoolsJSON)
	})
	mux.HandleFunc("/mosques", func(w http.ResponseWriter, r *http.Request) {
		mosqueHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/school-needs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, schoolNeedsJSON)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := cms.NewClient(ts.Client(), testLogger(), cms.Config{BaseURL: ts.URL}, nil)
	svc := newTestService(client)

	res := svc.AllCases(context.Background(), Filter{})

	if res.Kind != model.FailurePartial {
		t.Errorf("Kind = %q, want %q", res.Kind, model.FailurePartial)
	}
	if !res.OK() {
		t.Error("partial result should be usable")
	}
	if diff := cmp.Diff([]int{1, 2}, caseIDs(res.OrEmpty())); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	var pe *PartialError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("Err = %v, want *PartialError", res.Err)
	}
	if len(pe.Failures) != 1 || pe.Failures[0].Domain != model.DomainMosque || pe.Failures[0].Kind != model.FailureUpstreamStatus {
		t.Errorf("Failures = %+v, want one mosque upstream_status failure", pe.Failures)
	}

	// 部分的な結果はキャッシュしない
	svc.AllCases(context.Background(), Filter{})
	if got := mosqueHits.Load(); got != 2 {
		t.Errorf("mosque endpoint hit %d times, want 2", got)
	}
}

// TestAllCases_SchoolsValidationFailure は学校一覧の検証失敗がpartialになることを検証する。
func TestAllCases_SchoolsValidationFailure(t *testing.T) {
	bodies := fullCMS()
	bodies[cms.ResourceSchools] = `[{"id": 1}, {"id": "two"}]`
	svc := newTestService(&mockFetcher{fetchFn: routes(bodies)})

	res := svc.AllCases(context.Background(), Filter{})

	if res.Kind != model.FailurePartial {
		t.Errorf("Kind = %q, want partial", res.Kind)
	}
	if diff := cmp.Diff([]int{10}, caseIDs(res.Value)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	var pe *PartialError
	if errors.As(res.Err, &pe) && pe.Failures[0].Kind != model.FailureValidation {
		t.Errorf("failure kind = %q, want validation", pe.Failures[0].Kind)
	}
}

// TestAllCases_BothFail は両ドメインが失敗した場合に空リストとなることを検証する。
func TestAllCases_BothFail(t *testing.T) {
	svc := newTestService(&mockFetcher{fetchFn: routes(map[string]string{})})

	res := svc.AllCases(context.Background(), Filter{})

	if res.Kind != model.FailureUpstreamStatus {
		t.Errorf("Kind = %q, want upstream_status", res.Kind)
	}
	if res.OK() {
		t.Error("OK() should be false when every domain failed")
	}
	if res.OrEmpty() == nil || len(res.OrEmpty()) != 0 {
		t.Errorf("OrEmpty() = %#v, want empty non-nil slice", res.OrEmpty())
	}
}

// TestAllCases_ConfigMissing はベースURL未設定時にconfig_missingとなることを検証する。
func TestAllCases_ConfigMissing(t *testing.T) {
	client := cms.NewClient(http.DefaultClient, testLogger(), cms.Config{}, nil)
	svc := newTestService(client)

	res := svc.AllCases(context.Background(), Filter{})
	if res.Kind != model.FailureConfigMissing {
		t.Errorf("Kind = %q, want config_missing", res.Kind)
	}
	if len(res.OrEmpty()) != 0 {
		t.Errorf("expected empty list, got %d cases", len(res.OrEmpty()))
	}
}

// TestNeedsCatalog はカタログの取得とキャッシュを検証する。
func TestNeedsCatalog(t *testing.T) {
	f := &mockFetcher{fetchFn: routes(fullCMS())}
	svc := newTestService(f)

	res := svc.NeedsCatalog(context.Background(), model.DomainSchool)
	if res.Kind != model.FailureNone {
		t.Fatalf("Kind = %q, Err = %v", res.Kind, res.Err)
	}
	if len(res.Value) != 1 || res.Value[0].UnitPrice != 40 {
		t.Errorf("Value = %+v, want one need priced 40", res.Value)
	}

	svc.NeedsCatalog(context.Background(), model.DomainSchool)
	if got := f.count(cms.ResourceSchoolNeeds); got != 1 {
		t.Errorf("school-needs fetched %d times, want 1", got)
	}

	mosque := svc.NeedsCatalog(context.Background(), model.DomainMosque)
	if mosque.Kind != model.FailureNone || len(mosque.Value) != 0 || mosque.Value == nil {
		t.Errorf("mosque catalog = %+v, want empty success", mosque)
	}
}

// TestNeedsCatalog_WholeListFailure は1件でも不正ならカタログ全体が失敗することを検証する。
func TestNeedsCatalog_WholeListFailure(t *testing.T) {
	bodies := fullCMS()
	bodies[cms.ResourceSchoolNeeds] = `[{"id": 5, "acf": {"unit_price": 4}}, {"title": "no id"}]`
	f := &mockFetcher{fetchFn: routes(bodies)}
	svc := newTestService(f)

	res := svc.NeedsCatalog(context.Background(), model.DomainSchool)
	if res.Kind != model.FailureValidation {
		t.Errorf("Kind = %q, want validation", res.Kind)
	}
	if res.Value == nil || len(res.Value) != 0 {
		t.Errorf("Value = %#v, want empty non-nil slice", res.Value)
	}

	// 失敗はキャッシュしない
	svc.NeedsCatalog(context.Background(), model.DomainSchool)
	if got := f.count(cms.ResourceSchoolNeeds); got != 2 {
		t.Errorf("school-needs fetched %d times, want 2", got)
	}
}

// TestNeedsCatalog_UnknownDomain は未知のドメインを拒否することを検証する。
func TestNeedsCatalog_UnknownDomain(t *testing.T) {
	f := &mockFetcher{fetchFn: routes(fullCMS())}
	svc := newTestService(f)

	res := svc.NeedsCatalog(context.Background(), model.Domain("hospital"))
	if res.Kind != model.FailureValidation || res.Err == nil {
		t.Errorf("Kind = %q, Err = %v, want validation error", res.Kind, res.Err)
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected CMS calls: %v", f.calls)
	}
}

// TestCaseByID_FoundInMosques は学校側が404でもモスク側で見つかれば成功することを検証する。
func TestCaseByID_FoundInMosques(t *testing.T) {
	bodies := fullCMS()
	bodies[cms.SinglePath(cms.ResourceMosques, 10)] = `{"id": 10, "title": "مسجد التقوى"}`
	svc := newTestService(&mockFetcher{fetchFn: routes(bodies)})

	res := svc.CaseByID(context.Background(), 10)

	if res.Kind != model.FailureNone || res.Value == nil {
		t.Fatalf("Kind = %q, Err = %v, want found", res.Kind, res.Err)
	}
	if res.Value.ID != 10 || res.Value.Kind != model.CaseTypeMosque {
		t.Errorf("got id=%d kind=%q, want 10 mosque", res.Value.ID, res.Value.Kind)
	}
}

// TestCaseByID_NotFound は両方で見つからない場合にnot_foundとなることを検証する。
func TestCaseByID_NotFound(t *testing.T) {
	svc := newTestService(&mockFetcher{fetchFn: routes(fullCMS())})

	res := svc.CaseByID(context.Background(), 999)

	if res.Kind != model.FailureNotFound {
		t.Errorf("Kind = %q, want not_found", res.Kind)
	}
	if res.OrEmpty() != nil {
		t.Errorf("OrEmpty() = %+v, want nil", res.OrEmpty())
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "school") || !strings.Contains(res.Err.Error(), "mosque") {
		t.Errorf("Err = %v, want both probe errors", res.Err)
	}
}

// TestCaseByID_InvalidRecord は検証に失敗したレコードを採用せず、validationとして報告することを検証する。
func TestCaseByID_InvalidRecord(t *testing.T) {
	bodies := fullCMS()
	bodies[cms.SinglePath(cms.ResourceSchools, 7)] = `{"id": "7"}`
	svc := newTestService(&mockFetcher{fetchFn: routes(bodies)})

	res := svc.CaseByID(context.Background(), 7)
	if res.Kind != model.FailureValidation {
		t.Errorf("Kind = %q, want validation", res.Kind)
	}
	if res.OrEmpty() != nil {
		t.Errorf("OrEmpty() = %+v, want nil", res.OrEmpty())
	}
}

// TestCaseByID_TransportFailureKind はCMS障害を不在と区別して報告することを検証する。
func TestCaseByID_TransportFailureKind(t *testing.T) {
	tests := []struct {
		name   string
		school error
		mosque error
		want   model.FailureKind
	}{
		{
			name:   "config missing on both",
			school: &cms.FetchError{Kind: model.FailureConfigMissing, Endpoint: "schools/1"},
			mosque: &cms.FetchError{Kind: model.FailureConfigMissing, Endpoint: "mosques/1"},
			want:   model.FailureConfigMissing,
		},
		{
			name:   "school 404, mosque transport",
			school: &cms.FetchError{Kind: model.FailureUpstreamStatus, Endpoint: "schools/1", StatusCode: http.StatusNotFound},
			mosque: &cms.FetchError{Kind: model.FailureTransport, Endpoint: "mosques/1", Err: errors.New("connection refused")},
			want:   model.FailureTransport,
		},
		{
			name:   "school 503 reported before mosque transport",
			school: &cms.FetchError{Kind: model.FailureUpstreamStatus, Endpoint: "schools/1", StatusCode: http.StatusServiceUnavailable},
			mosque: &cms.FetchError{Kind: model.FailureTransport, Endpoint: "mosques/1", Err: errors.New("timeout")},
			want:   model.FailureUpstreamStatus,
		},
		{
			name:   "404 on both",
			school: &cms.FetchError{Kind: model.FailureUpstreamStatus, Endpoint: "schools/1", StatusCode: http.StatusNotFound},
			mosque: &cms.FetchError{Kind: model.FailureUpstreamStatus, Endpoint: "mosques/1", StatusCode: http.StatusNotFound},
			want:   model.FailureNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &mockFetcher{fetchFn: func(_ context.Context, path string, _ url.Values) (json.RawMessage, error) {
				if path == cms.SinglePath(cms.ResourceSchools, 1) {
					return nil, tt.school
				}
				return nil, tt.mosque
			}}
			svc := newTestService(f)

			res := svc.CaseByID(context.Background(), 1)
			if res.Kind != tt.want {
				t.Errorf("Kind = %q, want %q (err = %v)", res.Kind, tt.want, res.Err)
			}
			if res.Value != nil {
				t.Errorf("Value = %+v, want nil", res.Value)
			}
		})
	}
}

// TestCaseByID_NonPositive は0以下のIDでCMSに問い合わせないことを検証する。
func TestCaseByID_NonPositive(t *testing.T) {
	f := &mockFetcher{fetchFn: routes(fullCMS())}
	svc := newTestService(f)

	res := svc.CaseByID(context.Background(), 0)
	if res.Kind != model.FailureNotFound {
		t.Errorf("Kind = %q, want not_found", res.Kind)
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected CMS calls: %v", f.calls)
	}
}

// TestCaseByID_CancelsSlowerProbe は先に見つかった時点で他方の問い合わせを取り消すことを検証する。
func TestCaseByID_CancelsSlowerProbe(t *testing.T) {
	canceled := make(chan struct{})
	f := &mockFetcher{fetchFn: func(ctx context.Context, path string, _ url.Values) (json.RawMessage, error) {
		switch path {
		case cms.SinglePath(cms.ResourceSchools, 3):
			return json.RawMessage(`{"id": 3, "title": "مدرسة"}`), nil
		case cms.SinglePath(cms.ResourceMosques, 3):
			<-ctx.Done()
			close(canceled)
			return nil, &cms.FetchError{Kind: model.FailureTransport, Endpoint: path, Err: ctx.Err()}
		default:
			return json.RawMessage(`[]`), nil
		}
	}}
	svc := newTestService(f)

	res := svc.CaseByID(context.Background(), 3)
	if res.Kind != model.FailureNone || res.Value.Kind != model.CaseTypeSchool {
		t.Fatalf("Kind = %q, Err = %v, want school", res.Kind, res.Err)
	}

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("mosque probe was not canceled")
	}
}

// TestAllCases_CatalogFetchedOncePerDomain はキャッシュが空でもカタログを1回だけ取得することを検証する。
func TestAllCases_CatalogFetchedOncePerDomain(t *testing.T) {
	var schools strings.Builder
	schools.WriteString("[")
	for i := 1; i <= 50; i++ {
		if i > 1 {
			schools.WriteString(",")
		}
		fmt.Fprintf(&schools, `{"id": %d, "acf": {"selected_needs": [{"id": 5, "label": "مقاعد"}], "needs_quantities": "5=2"}}`, i)
	}
	schools.WriteString("]")

	bodies := fullCMS()
	bodies[cms.ResourceSchools] = schools.String()
	serve := routes(bodies)
	f := &mockFetcher{fetchFn: func(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
		if path == cms.ResourceSchoolNeeds {
			time.Sleep(20 * time.Millisecond)
		}
		return serve(ctx, path, q)
	}}
	svc := newTestService(f)

	res := svc.AllCases(context.Background(), Filter{})
	if res.Kind != model.FailureNone {
		t.Fatalf("Kind = %q, Err = %v", res.Kind, res.Err)
	}
	if len(res.Value) != 51 {
		t.Fatalf("got %d cases, want 51", len(res.Value))
	}
	if got := f.count(cms.ResourceSchoolNeeds); got != 1 {
		t.Errorf("school-needs fetched %d times, want 1", got)
	}
	if got := f.count(cms.ResourceMosqueNeeds); got != 0 {
		t.Errorf("mosque-needs fetched %d times, want 0 (no mosque selects needs)", got)
	}
	for _, c := range res.Value[:50] {
		if len(c.Needs) != 1 || c.Needs[0].Item != "مقاعد" || c.Needs[0].UnitPrice != 40 || c.Needs[0].Quantity != 2 {
			t.Fatalf("case %d needs = %+v, want catalog need with quantity 2", c.ID, c.Needs)
		}
	}
}

// TestFormatAll_Canceled はキャンセル済みのctxで整形を打ち切ることを検証する。
func TestFormatAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	out, err := formatAll(ctx, []int{1, 2, 3}, func(_ context.Context, id int) model.Case {
		calls.Add(1)
		return model.Case{ID: id}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out != nil {
		t.Errorf("out = %+v, want nil", out)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("formatted %d records after cancel, want 0", got)
	}
}

// TestFormatAll_KeepsOrder は並行整形でも入力順を保つことを検証する。
func TestFormatAll_KeepsOrder(t *testing.T) {
	ids := make([]int, 100)
	for i := range ids {
		ids[i] = i + 1
	}
	out, err := formatAll(context.Background(), ids, func(_ context.Context, id int) model.Case {
		return model.Case{ID: id}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(ids, caseIDs(out)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

// TestFilter_IsZero はゼロ値の判定を検証する。
func TestFilter_IsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("zero Filter should report IsZero")
	}
	if (Filter{UrgentOnly: true}).IsZero() {
		t.Error("UrgentOnly filter should not be zero")
	}
}
