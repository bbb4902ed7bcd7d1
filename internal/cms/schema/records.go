package schema

import (
	"encoding/json"
	"slices"
)

// Term は埋め込まれたタクソノミー項目。
type Term struct {
	ID       int
	Name     string
	Slug     string
	Taxonomy string
}

// Embedded は _embed=1 で埋め込まれる関連データ。
type Embedded struct {
	// FeaturedMedia はアイキャッチ画像のURL（wp:featuredmediaの要素順）。
	FeaturedMedia []string
	// Terms はタクソノミーごとの項目配列（wp:termの配列の配列）。
	Terms [][]Term
}

// NeedFields はNeedレコードのカスタムフィールド。
type NeedFields struct {
	UnitPrice   Number
	Description string
	Image       Image
	Extra       map[string]json.RawMessage
}

// NeedRecord はNeedカタログの1レコード。
type NeedRecord struct {
	ID       int
	Title    string
	Content  string
	ACF      NeedFields
	Embedded Embedded
}

// CaseFields は学校・モスク共通のカスタムフィールド。
type CaseFields struct {
	Description     string
	NeedLevel       string
	SelectedNeeds   []SelectedNeed
	NeedsQuantities string
	TotalNeeded     Number
	TotalDonated    Number
	Gallery         []Image
	Extra           map[string]json.RawMessage
}

// SchoolFields は学校レコードのカスタムフィールド。
type SchoolFields struct {
	CaseFields
	EducationLevel string
}

// SchoolRecord は学校Caseの1レコード。
type SchoolRecord struct {
	ID       int
	Title    string
	Content  string
	ACF      SchoolFields
	Embedded Embedded
}

// MosqueRecord はモスクCaseの1レコード。
type MosqueRecord struct {
	ID       int
	Title    string
	Content  string
	ACF      CaseFields
	Embedded Embedded
}

// Record names used in ValidationError.
const (
	recordNeed   = "need"
	recordSchool = "school"
	recordMosque = "mosque"
)

// ParseNeedList はNeedカタログのコレクションを検証する。
// 1件でも不正なレコードがあればリスト全体を失敗とする。
func ParseNeedList(raw json.RawMessage) ([]NeedRecord, error) {
	d := &decoder{}
	items, ok := decodeArray(d, "$", raw)
	if !ok {
		return nil, d.err(recordNeed)
	}
	records := make([]NeedRecord, 0, len(items))
	for i, item := range items {
		records = append(records, decodeNeed(d, index("$", i), item))
	}
	if err := d.err(recordNeed); err != nil {
		return nil, err
	}
	return records, nil
}

// ParseNeed は単一のNeedレコードを検証する。
func ParseNeed(raw json.RawMessage) (NeedRecord, error) {
	d := &decoder{}
	rec := decodeNeed(d, "", raw)
	if err := d.err(recordNeed); err != nil {
		return NeedRecord{}, err
	}
	return rec, nil
}

// ParseSchool は単一の学校レコードを検証する。
func ParseSchool(raw json.RawMessage) (SchoolRecord, error) {
	d := &decoder{}
	rec := decodeSchool(d, "", raw)
	if err := d.err(recordSchool); err != nil {
		return SchoolRecord{}, err
	}
	return rec, nil
}

// ParseSchoolList は学校コレクションを検証する。
func ParseSchoolList(raw json.RawMessage) ([]SchoolRecord, error) {
	d := &decoder{}
	items, ok := decodeArray(d, "$", raw)
	if !ok {
		return nil, d.err(recordSchool)
	}
	records := make([]SchoolRecord, 0, len(items))
	for i, item := range items {
		records = append(records, decodeSchool(d, index("$", i), item))
	}
	if err := d.err(recordSchool); err != nil {
		return nil, err
	}
	return records, nil
}

// ParseMosque は単一のモスクレコードを検証する。
func ParseMosque(raw json.RawMessage) (MosqueRecord, error) {
	d := &decoder{}
	rec := decodeMosque(d, "", raw)
	if err := d.err(recordMosque); err != nil {
		return MosqueRecord{}, err
	}
	return rec, nil
}

// ParseMosqueList はモスクコレクションを検証する。
func ParseMosqueList(raw json.RawMessage) ([]MosqueRecord, error) {
	d := &decoder{}
	items, ok := decodeArray(d, "$", raw)
	if !ok {
		return nil, d.err(recordMosque)
	}
	records := make([]MosqueRecord, 0, len(items))
	for i, item := range items {
		records = append(records, decodeMosque(d, index("$", i), item))
	}
	if err := d.err(recordMosque); err != nil {
		return nil, err
	}
	return records, nil
}

// post はWordPress投稿の共通部分。
type post struct {
	id       int
	title    string
	content  string
	acf      map[string]json.RawMessage
	embedded Embedded
}

func decodePost(d *decoder, path string, raw json.RawMessage) post {
	fields, ok := decodeObject(d, rootPath(path), raw)
	if !ok {
		return post{}
	}
	return post{
		id:       decodeID(d, join(path, "id"), fields["id"]),
		title:    decodeRendered(d, join(path, "title"), fields["title"]),
		content:  decodeRendered(d, join(path, "content"), fields["content"]),
		acf:      decodeACF(d, join(path, "acf"), fields["acf"]),
		embedded: decodeEmbedded(d, join(path, "_embedded"), fields["_embedded"]),
	}
}

func rootPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

// decodeACF はカスタムフィールドの袋を受け入れる。
// フィールドが1つもない場合WordPressは空配列を返すため、配列は空の袋として扱う。
func decodeACF(d *decoder, path string, raw json.RawMessage) map[string]json.RawMessage {
	switch kindOf(raw) {
	case kindAbsent, kindNull, kindBool:
		return map[string]json.RawMessage{}
	case kindArray:
		items, ok := decodeArray(d, path, raw)
		if ok && len(items) > 0 {
			d.add(path, "expected object, got non-empty array")
		}
		return map[string]json.RawMessage{}
	case kindObject:
		fields, ok := decodeObject(d, path, raw)
		if !ok {
			return map[string]json.RawMessage{}
		}
		return fields
	default:
		d.add(path, "expected object, got %s", kindOf(raw))
		return map[string]json.RawMessage{}
	}
}

// extra は既知のキーを除いたフィールドを返す。
func extra(fields map[string]json.RawMessage, known ...string) map[string]json.RawMessage {
	rest := make(map[string]json.RawMessage)
	for k, v := range fields {
		rest[k] = v
	}
	for _, k := range known {
		delete(rest, k)
	}
	if len(rest) == 0 {
		return nil
	}
	return rest
}

func decodeEmbedded(d *decoder, path string, raw json.RawMessage) Embedded {
	if isBlank(raw) {
		return Embedded{}
	}
	fields, ok := decodeObject(d, path, raw)
	if !ok {
		return Embedded{}
	}

	var emb Embedded

	if media := fields["wp:featuredmedia"]; !isBlank(media) {
		p := join(path, "wp:featuredmedia")
		items, ok := decodeArray(d, p, media)
		if ok {
			for i, item := range items {
				if kindOf(item) != kindObject {
					d.add(index(p, i), "expected object, got %s", kindOf(item))
					continue
				}
				obj := decodeImageObject(d, index(p, i), item)
				emb.FeaturedMedia = append(emb.FeaturedMedia, obj.URL)
			}
		}
	}

	if terms := fields["wp:term"]; !isBlank(terms) {
		p := join(path, "wp:term")
		groups, ok := decodeArray(d, p, terms)
		if ok {
			for i, group := range groups {
				gp := index(p, i)
				items, ok := decodeArray(d, gp, group)
				if !ok {
					continue
				}
				list := make([]Term, 0, len(items))
				for j, item := range items {
					tp := index(gp, j)
					tf, ok := decodeObject(d, tp, item)
					if !ok {
						continue
					}
					list = append(list, Term{
						ID:       int(decodeNumber(d, join(tp, "id"), tf["id"]).OrZero()),
						Name:     decodeText(d, join(tp, "name"), tf["name"]),
						Slug:     decodeText(d, join(tp, "slug"), tf["slug"]),
						Taxonomy: decodeText(d, join(tp, "taxonomy"), tf["taxonomy"]),
					})
				}
				emb.Terms = append(emb.Terms, list)
			}
		}
	}

	return emb
}

var needKnownFields = []string{"unit_price", "price", "description", "image"}

func decodeNeed(d *decoder, path string, raw json.RawMessage) NeedRecord {
	p := decodePost(d, path, raw)
	acfPath := join(path, "acf")

	priceRaw, ok := p.acf["unit_price"]
	pricePath := join(acfPath, "unit_price")
	if !ok {
		priceRaw = p.acf["price"]
		pricePath = join(acfPath, "price")
	}

	return NeedRecord{
		ID:      p.id,
		Title:   p.title,
		Content: p.content,
		ACF: NeedFields{
			UnitPrice:   decodeNumber(d, pricePath, priceRaw),
			Description: decodeText(d, join(acfPath, "description"), p.acf["description"]),
			Image:       decodeImage(d, join(acfPath, "image"), p.acf["image"]),
			Extra:       extra(p.acf, needKnownFields...),
		},
		Embedded: p.embedded,
	}
}

var caseKnownFields = []string{
	"description", "need_level", "selected_needs", "needs_quantities",
	"total_needed", "total_donated", "gallery_images",
}

func decodeCaseFields(d *decoder, acfPath string, acf map[string]json.RawMessage, known ...string) CaseFields {
	return CaseFields{
		Description:     decodeText(d, join(acfPath, "description"), acf["description"]),
		NeedLevel:       decodeText(d, join(acfPath, "need_level"), acf["need_level"]),
		SelectedNeeds:   decodeSelectedNeeds(d, join(acfPath, "selected_needs"), acf["selected_needs"]),
		NeedsQuantities: decodeText(d, join(acfPath, "needs_quantities"), acf["needs_quantities"]),
		TotalNeeded:     decodeNumber(d, join(acfPath, "total_needed"), acf["total_needed"]),
		TotalDonated:    decodeNumber(d, join(acfPath, "total_donated"), acf["total_donated"]),
		Gallery:         decodeGallery(d, join(acfPath, "gallery_images"), acf["gallery_images"]),
		Extra:           extra(acf, slices.Concat(caseKnownFields, known)...),
	}
}

func decodeSchool(d *decoder, path string, raw json.RawMessage) SchoolRecord {
	p := decodePost(d, path, raw)
	acfPath := join(path, "acf")
	return SchoolRecord{
		ID:      p.id,
		Title:   p.title,
		Content: p.content,
		ACF: SchoolFields{
			CaseFields:     decodeCaseFields(d, acfPath, p.acf, "education_level"),
			EducationLevel: decodeText(d, join(acfPath, "education_level"), p.acf["education_level"]),
		},
		Embedded: p.embedded,
	}
}

func decodeMosque(d *decoder, path string, raw json.RawMessage) MosqueRecord {
	p := decodePost(d, path, raw)
	return MosqueRecord{
		ID:       p.id,
		Title:    p.title,
		Content:  p.content,
		ACF:      decodeCaseFields(d, join(path, "acf"), p.acf),
		Embedded: p.embedded,
	}
}
