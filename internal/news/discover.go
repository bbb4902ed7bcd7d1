package news

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// sniffSize はXMLのルート要素を判定するために検査する先頭バイト数。
const sniffSize = 4096

// mediaTypeOf はContent-Typeからパラメータを除いたメディアタイプを小文字で返す。
func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

func isHTML(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

// isFeedDocument はレスポンスがRSS/Atomフィードかを判定する。
// 汎用XMLやContent-Type無しの場合はボディ先頭のルート要素で判定する。
func isFeedDocument(contentType string, body []byte) bool {
	switch mediaTypeOf(contentType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml", "":
		prefix := strings.ToLower(string(body[:min(len(body), sniffSize)]))
		if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
			return true
		}
		return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
	default:
		return false
	}
}

// discoverFeedLink はHTMLのheadからrel="alternate"のフィードリンクを探し、絶対URLで返す。
// 同一ホストのリンクを優先し、同条件なら文書順で先頭のものを選ぶ。
// WordPressは投稿フィードをコメントフィードより先に出力する。
func discoverFeedLink(htmlBody []byte, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	var first string
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return first

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return first
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return first
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref)
			if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
				return resolved.String()
			}
			if first == "" {
				first = resolved.String()
			}
		}
	}
}
