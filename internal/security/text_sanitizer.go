package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はCMSのレンダリング済みHTMLを表示用のプレーンテキストにする。
type TextSanitizerService interface {
	// PlainText は全タグを除去し、HTMLエンティティを復元し、空白を1つにまとめる。
	// 同一入力に対して常に同一出力を返す。
	PlainText(rawHTML string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグを除去する実装。
// Policyはスレッドセーフなので並行に呼び出してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	policy := bluemonday.StrictPolicy()
	// <p>a</p><p>b</p> が "ab" に連結されないようにする
	policy.AddSpaceWhenStrippingTag(true)
	return &textSanitizer{policy: policy}
}

// PlainText はHTMLをプレーンテキストに変換する。
func (s *textSanitizer) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	stripped := s.policy.Sanitize(rawHTML)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}
