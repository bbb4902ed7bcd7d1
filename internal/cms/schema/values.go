package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number は数値または数値文字列のフィールド。
// 数値として解釈できない文字列はNaNになり、検証自体は失敗しない。
type Number float64

// NaN は数値として解釈できなかったことを示す番兵値。
var NaN = Number(math.NaN())

// IsNaN は番兵値かどうかを返す。
func (n Number) IsNaN() bool {
	return math.IsNaN(float64(n))
}

// OrZero は非有限値と負数を0にして返す。
func (n Number) OrZero() float64 {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// decodeNumber は number | 数値文字列 | 非数値文字列(NaN) | boolean(NaN) | null を受け入れる。
func decodeNumber(d *decoder, path string, raw json.RawMessage) Number {
	switch kindOf(raw) {
	case kindAbsent, kindNull:
		return 0
	case kindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return NaN
		}
		return Number(f)
	case kindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return NaN
		}
		return parseNumber(s)
	case kindBool:
		// ACFは未入力のフィールドをfalseで返す。trueも金額としては意味を持たない
		return NaN
	default:
		d.add(path, "expected number or string, got %s", kindOf(raw))
		return NaN
	}
}

// parseNumber は文字列を数値に変換する。空文字は0、解釈できない場合はNaN。
func parseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NaN
	}
	return Number(f)
}

// decodeText は string | number | boolean | null を文字列として受け入れる。
// falseとnullは空文字になる。
func decodeText(d *decoder, path string, raw json.RawMessage) string {
	switch kindOf(raw) {
	case kindAbsent, kindNull, kindBool:
		return ""
	case kindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			d.add(path, "malformed string")
			return ""
		}
		return s
	case kindNumber:
		return strings.TrimSpace(string(raw))
	default:
		d.add(path, "expected string, got %s", kindOf(raw))
		return ""
	}
}

// decodeRendered は WordPress の {"rendered": "..."} 形式か素の文字列を受け入れる。
func decodeRendered(d *decoder, path string, raw json.RawMessage) string {
	switch kindOf(raw) {
	case kindAbsent, kindNull:
		return ""
	case kindString:
		return decodeText(d, path, raw)
	case kindObject:
		fields, ok := decodeObject(d, path, raw)
		if !ok {
			return ""
		}
		return decodeText(d, join(path, "rendered"), fields["rendered"])
	default:
		d.add(path, "expected object or string, got %s", kindOf(raw))
		return ""
	}
}

// decodeID は必須の数値IDを検証する。
func decodeID(d *decoder, path string, raw json.RawMessage) int {
	switch kindOf(raw) {
	case kindAbsent, kindNull:
		d.add(path, "required")
		return 0
	case kindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) {
			d.add(path, "expected integer")
			return 0
		}
		return int(f)
	default:
		d.add(path, "expected number, got %s", kindOf(raw))
		return 0
	}
}

// ImageObject は url（ACF画像）または source_url（WPメディア）を持つ画像オブジェクト。
type ImageObject struct {
	URL string
}

// Image は画像フィールド。観測済みの形（文字列、オブジェクト、配列）をそのまま保持し、
// どれを採用するかはフォーマッタが決める。
type Image struct {
	String string
	Object *ImageObject
	Array  []ImageObject
}

// decodeImageObject は {url} / {source_url} オブジェクトを受け入れる。
func decodeImageObject(d *decoder, path string, raw json.RawMessage) ImageObject {
	fields, ok := decodeObject(d, path, raw)
	if !ok {
		return ImageObject{}
	}
	url := decodeText(d, join(path, "url"), fields["url"])
	if url == "" {
		url = decodeText(d, join(path, "source_url"), fields["source_url"])
	}
	return ImageObject{URL: url}
}

// decodeImage は string | object | array | boolean | null を受け入れる。
func decodeImage(d *decoder, path string, raw json.RawMessage) Image {
	switch kindOf(raw) {
	case kindAbsent, kindNull, kindBool:
		return Image{}
	case kindString:
		return Image{String: decodeText(d, path, raw)}
	case kindObject:
		obj := decodeImageObject(d, path, raw)
		return Image{Object: &obj}
	case kindArray:
		items, ok := decodeArray(d, path, raw)
		if !ok {
			return Image{}
		}
		img := Image{Array: make([]ImageObject, 0, len(items))}
		for i, item := range items {
			p := index(path, i)
			switch kindOf(item) {
			case kindString:
				img.Array = append(img.Array, ImageObject{URL: decodeText(d, p, item)})
			case kindObject:
				img.Array = append(img.Array, decodeImageObject(d, p, item))
			default:
				d.add(p, "expected image object or string, got %s", kindOf(item))
			}
		}
		return img
	default:
		d.add(path, "expected image, got %s", kindOf(raw))
		return Image{}
	}
}

// decodeGallery は 画像の配列 | 単一の画像オブジェクト | boolean | null を受け入れる。
func decodeGallery(d *decoder, path string, raw json.RawMessage) []Image {
	switch kindOf(raw) {
	case kindAbsent, kindNull, kindBool:
		return nil
	case kindObject:
		return []Image{decodeImage(d, path, raw)}
	case kindArray:
		items, ok := decodeArray(d, path, raw)
		if !ok {
			return nil
		}
		gallery := make([]Image, 0, len(items))
		for i, item := range items {
			p := index(path, i)
			switch kindOf(item) {
			case kindString, kindObject, kindArray:
				gallery = append(gallery, decodeImage(d, p, item))
			case kindNull, kindBool:
			default:
				d.add(p, "expected image, got %s", kindOf(item))
			}
		}
		return gallery
	default:
		d.add(path, "expected gallery, got %s", kindOf(raw))
		return nil
	}
}

// SelectedNeed はCaseに選択されたNeedへの参照（IDと表示ラベル）。
type SelectedNeed struct {
	ID    string
	Label string
}

// decodeSelectedNeeds は {id,label} の配列 | null | 文字列 を受け入れる。
// 文字列はACFの未入力値として空リストになる。
func decodeSelectedNeeds(d *decoder, path string, raw json.RawMessage) []SelectedNeed {
	switch kindOf(raw) {
	case kindAbsent, kindNull, kindString:
		return nil
	case kindArray:
		items, ok := decodeArray(d, path, raw)
		if !ok {
			return nil
		}
		selected := make([]SelectedNeed, 0, len(items))
		for i, item := range items {
			p := index(path, i)
			fields, ok := decodeObject(d, p, item)
			if !ok {
				continue
			}
			idRaw, ok := fields["id"]
			if !ok {
				idRaw = fields["value"]
			}
			id := decodeSelectionID(d, join(p, "id"), idRaw)
			selected = append(selected, SelectedNeed{
				ID:    id,
				Label: decodeText(d, join(p, "label"), fields["label"]),
			})
		}
		return selected
	default:
		d.add(path, "expected array of selections, got %s", kindOf(raw))
		return nil
	}
}

// decodeSelectionID は選択IDを文字列化する。数値と数値文字列を受け入れる。
func decodeSelectionID(d *decoder, path string, raw json.RawMessage) string {
	switch kindOf(raw) {
	case kindNumber, kindString:
		id := strings.TrimSpace(decodeText(d, path, raw))
		if id == "" {
			d.add(path, "required")
		}
		return id
	case kindAbsent, kindNull:
		d.add(path, "required")
		return ""
	default:
		d.add(path, "expected number or string, got %s", kindOf(raw))
		return ""
	}
}
