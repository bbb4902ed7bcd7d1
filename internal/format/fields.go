package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/alihajali918/sanadedu-sub000/internal/cms/schema"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// ParseQuantities は "id=数量" をカンマで区切った文字列を解析する。
// どちらかの辺が空、または数量が整数でない組は読み飛ばす。負の数量は0にする。
func ParseQuantities(s string) map[string]int {
	quantities := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		quantities[key] = max(n, 0)
	}
	return quantities
}

// Progress は達成率（%）を四捨五入した整数で返す。
// neededが0以下なら0。100を超えても切り詰めない。
func Progress(raised, needed float64) int {
	if needed <= 0 {
		return 0
	}
	return int(math.Round(raised / needed * 100))
}

// resolveImage はオブジェクト、文字列、配列の先頭要素の順にURLを探す。
func resolveImage(img schema.Image) string {
	if img.Object != nil && img.Object.URL != "" {
		return img.Object.URL
	}
	if s := strings.TrimSpace(img.String); s != "" {
		return s
	}
	if len(img.Array) > 0 {
		return img.Array[0].URL
	}
	return ""
}

// caseImages はアイキャッチ画像、ギャラリーの順に画像URLを並べる。
// 1枚もなければプレースホルダーだけを返す。
func caseImages(featured []string, gallery []schema.Image) []string {
	var images []string
	if url := firstNonEmpty(featured); url != "" {
		images = append(images, url)
	}
	for _, img := range gallery {
		if url := resolveImage(img); url != "" {
			images = append(images, url)
		}
	}
	if len(images) == 0 {
		return []string{model.PlaceholderImage}
	}
	return images
}

func firstNonEmpty(urls []string) string {
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// termAt は入れ子のタクソノミー配列を平坦化し、taxonomyに一致するpos番目の項目名を返す。
func termAt(groups [][]schema.Term, taxonomy string, pos int) string {
	i := 0
	for _, group := range groups {
		for _, t := range group {
			if t.Taxonomy != taxonomy {
				continue
			}
			if i == pos {
				if name := strings.TrimSpace(t.Name); name != "" {
					return name
				}
				return model.Unspecified
			}
			i++
		}
	}
	return model.Unspecified
}
