// Package model はドメインモデルを定義する。
package model

// 表示用の固定値。CMS側で値が欠けている場合のフォールバックに使う。
const (
	// FallbackTitle はタイトル未設定時の表示文字列。
	FallbackTitle = "بدون عنوان"
	// FallbackDescription は説明未設定時の表示文字列。
	FallbackDescription = "لا يوجد وصف متاح"
	// Unspecified は所在地・カテゴリ未設定時の表示文字列（"未指定"）。
	Unspecified = "غير محدد"
	// PlaceholderImage は画像が1枚もない場合に使う画像URL。
	PlaceholderImage = "/images/placeholder.jpg"
	// DefaultNeedIcon はNeedの既定アイコン。
	DefaultNeedIcon = "📦"
	// UrgentNeedLevel は緊急とみなすneedLevelの値（"高"）。
	UrgentNeedLevel = "عالي"
)

// CaseType はCaseの分類タグ。
type CaseType string

const (
	CaseTypeSchool  CaseType = "school"
	CaseTypeMosque  CaseType = "mosque"
	CaseTypeGeneral CaseType = "general"
)

// Domain はNeedカタログの所属ドメイン。
type Domain string

const (
	// DomainSchool は学校向けのNeedカタログ。
	DomainSchool Domain = "school"
	// DomainMosque はモスク向けのNeedカタログ。
	DomainMosque Domain = "mosque"
)

// ParseDomain は文字列をDomainに変換する。未知の値の場合はfalseを返す。
func ParseDomain(s string) (Domain, bool) {
	switch Domain(s) {
	case DomainSchool, DomainMosque:
		return Domain(s), true
	default:
		return "", false
	}
}

// Case は寄付対象となる施設（学校・モスク）の正規化済みビューモデル。
// フェッチのたびに再構築され、このレイヤーでは変更しない。
type Case struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Governorate string     `json:"governorate"`
	City        string     `json:"city"`
	Type        string     `json:"type"`
	Kind        CaseType   `json:"kind"`
	NeedLevel   string     `json:"needLevel"`
	IsUrgent    bool       `json:"isUrgent"`
	Needs       []CaseNeed `json:"needs"`
	FundNeeded  float64    `json:"fundNeeded"`
	FundRaised  float64    `json:"fundRaised"`
	Progress    int        `json:"progress"`
	Images      []string   `json:"images"`
}

// Need はカタログ上の支援項目。
type Need struct {
	ID          int     `json:"id"`
	Item        string  `json:"item"`
	UnitPrice   float64 `json:"unitPrice"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
	Icon        string  `json:"icon"`
}

// CaseNeed はCaseに紐づくNeed。要求数量を持つ。
// Fundedはこのレイヤーでは追跡しないため常に0。
type CaseNeed struct {
	Need
	Quantity int     `json:"quantity"`
	Funded   float64 `json:"funded"`
}
