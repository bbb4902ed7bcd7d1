// Package format は検証済みのCMSレコードを表示用のCase/Needに変換する。
//
// 変換は入力以外に依存しない。例外はCaseの選択済みNeedを解決するための
// カタログ参照で、これはCatalogSource経由で注入する。
package format

import (
	"context"
	"strconv"
	"strings"

	"github.com/alihajali918/sanadedu-sub000/internal/cms/schema"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
	"github.com/alihajali918/sanadedu-sub000/internal/security"
)

// タクソノミー名。
const (
	TaxonomyLocation     = "location"
	TaxonomyNeedCategory = "need_category"
)

// CatalogSource はドメインごとのNeedカタログを返す。
// 取得に失敗した場合は空のリストを返す。
type CatalogSource interface {
	Catalog(ctx context.Context, domain model.Domain) []model.Need
}

// CatalogFunc は関数をCatalogSourceとして使うためのアダプタ。
type CatalogFunc func(ctx context.Context, domain model.Domain) []model.Need

// Catalog はCatalogSourceを実装する。
func (f CatalogFunc) Catalog(ctx context.Context, domain model.Domain) []model.Need {
	return f(ctx, domain)
}

// Formatter はCMSレコードの変換器。並行に呼び出してよい。
type Formatter struct {
	text security.TextSanitizerService
}

// New はFormatterの新しいインスタンスを生成する。
func New(text security.TextSanitizerService) *Formatter {
	return &Formatter{text: text}
}

// Need はカタログのNeedレコードを変換する。
func (f *Formatter) Need(rec schema.NeedRecord) model.Need {
	image := resolveImage(rec.ACF.Image)
	if image == "" {
		image = firstNonEmpty(rec.Embedded.FeaturedMedia)
	}
	if image == "" {
		image = model.PlaceholderImage
	}

	return model.Need{
		ID:          rec.ID,
		Item:        f.title(rec.Title),
		UnitPrice:   rec.ACF.UnitPrice.OrZero(),
		Description: f.description(rec.ACF.Description, rec.Content),
		Image:       image,
		Category:    termAt(rec.Embedded.Terms, TaxonomyNeedCategory, 0),
		Icon:        model.DefaultNeedIcon,
	}
}

// School は学校レコードを変換する。種別は教育段階、未設定なら"school"。
func (f *Formatter) School(ctx context.Context, rec schema.SchoolRecord, catalog CatalogSource) model.Case {
	c := f.buildCase(ctx, caseSource{
		id:       rec.ID,
		title:    rec.Title,
		content:  rec.Content,
		fields:   rec.ACF.CaseFields,
		embedded: rec.Embedded,
	}, model.DomainSchool, catalog)

	c.Kind = model.CaseTypeSchool
	c.Type = strings.TrimSpace(rec.ACF.EducationLevel)
	if c.Type == "" {
		c.Type = string(model.CaseTypeSchool)
	}
	return c
}

// Mosque はモスクレコードを変換する。
func (f *Formatter) Mosque(ctx context.Context, rec schema.MosqueRecord, catalog CatalogSource) model.Case {
	c := f.buildCase(ctx, caseSource{
		id:       rec.ID,
		title:    rec.Title,
		content:  rec.Content,
		fields:   rec.ACF,
		embedded: rec.Embedded,
	}, model.DomainMosque, catalog)

	c.Kind = model.CaseTypeMosque
	c.Type = string(model.CaseTypeMosque)
	return c
}

// caseSource は学校・モスク共通の変換入力。
type caseSource struct {
	id       int
	title    string
	content  string
	fields   schema.CaseFields
	embedded schema.Embedded
}

func (f *Formatter) buildCase(ctx context.Context, src caseSource, domain model.Domain, catalog CatalogSource) model.Case {
	needed := src.fields.TotalNeeded.OrZero()
	raised := src.fields.TotalDonated.OrZero()
	needLevel := strings.TrimSpace(src.fields.NeedLevel)

	return model.Case{
		ID:          src.id,
		Title:       f.title(src.title),
		Description: f.description(src.fields.Description, src.content),
		Governorate: termAt(src.embedded.Terms, TaxonomyLocation, 0),
		City:        termAt(src.embedded.Terms, TaxonomyLocation, 1),
		NeedLevel:   needLevel,
		IsUrgent:    needLevel == model.UrgentNeedLevel,
		Needs:       f.caseNeeds(ctx, src.fields, domain, catalog),
		FundNeeded:  needed,
		FundRaised:  raised,
		Progress:    Progress(raised, needed),
		Images:      caseImages(src.embedded.FeaturedMedia, src.fields.Gallery),
	}
}

// caseNeeds は選択済みNeedをカタログと突き合わせる。
// カタログに無いIDもラベルだけで残す。
func (f *Formatter) caseNeeds(ctx context.Context, fields schema.CaseFields, domain model.Domain, catalog CatalogSource) []model.CaseNeed {
	needs := make([]model.CaseNeed, 0, len(fields.SelectedNeeds))
	if len(fields.SelectedNeeds) == 0 {
		return needs
	}

	byID := make(map[string]model.Need)
	if catalog != nil {
		for _, n := range catalog.Catalog(ctx, domain) {
			byID[strconv.Itoa(n.ID)] = n
		}
	}
	quantities := ParseQuantities(fields.NeedsQuantities)

	for _, sel := range fields.SelectedNeeds {
		need, ok := byID[sel.ID]
		if !ok {
			need = unmatchedNeed(sel, f.title(sel.Label))
		}
		needs = append(needs, model.CaseNeed{
			Need:     need,
			Quantity: quantities[sel.ID],
		})
	}
	return needs
}

func unmatchedNeed(sel schema.SelectedNeed, label string) model.Need {
	id, _ := strconv.Atoi(sel.ID)
	return model.Need{
		ID:       id,
		Item:     label,
		Image:    model.PlaceholderImage,
		Category: model.Unspecified,
		Icon:     model.DefaultNeedIcon,
	}
}

func (f *Formatter) title(rendered string) string {
	if t := f.text.PlainText(rendered); t != "" {
		return t
	}
	return model.FallbackTitle
}

// description はカスタムフィールドの説明、本文、固定文言の順に採用する。
func (f *Formatter) description(custom, content string) string {
	if d := f.text.PlainText(custom); d != "" {
		return d
	}
	if d := f.text.PlainText(content); d != "" {
		return d
	}
	return model.FallbackDescription
}
