// Package schema はCMSレコードの構造検証を提供する。
//
// CMSのカスタムフィールドは型が緩く、同じフィールドに数値・文字列・false・null
// などが混在する。各フィールドは観測済みの形をすべて受け入れる和型として定義し、
// どの形にも当てはまらない場合だけ検証失敗とする。失敗は位置付きの
// ValidationErrorとして返し、呼び出し元はレコード全体を不在として扱う。
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Issue は1件の検証違反。
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError は構造検証の失敗を表す。
type ValidationError struct {
	Record string
	Issues []Issue
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return fmt.Sprintf("schema: invalid %s record: %s", e.Record, strings.Join(parts, "; "))
}

// decoder は検証違反を集めながらフィールドをデコードする。
type decoder struct {
	issues []Issue
}

func (d *decoder) add(path, format string, args ...any) {
	d.issues = append(d.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (d *decoder) err(record string) error {
	if len(d.issues) == 0 {
		return nil
	}
	return &ValidationError{Record: record, Issues: d.issues}
}

// jsonKind はJSON値の種類。
type jsonKind int

const (
	kindAbsent jsonKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func (k jsonKind) String() string {
	switch k {
	case kindAbsent:
		return "absent"
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	default:
		return "object"
	}
}

// kindOf は先頭バイトからJSON値の種類を判定する。
func kindOf(raw json.RawMessage) jsonKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return kindAbsent
	}
	switch raw[0] {
	case 'n':
		return kindNull
	case 't', 'f':
		return kindBool
	case '"':
		return kindString
	case '[':
		return kindArray
	case '{':
		return kindObject
	default:
		return kindNumber
	}
}

// isBlank はフィールドが欠落またはnullかを返す。
func isBlank(raw json.RawMessage) bool {
	k := kindOf(raw)
	return k == kindAbsent || k == kindNull
}

// decodeObject はJSONオブジェクトをフィールドごとの生データに分解する。
func decodeObject(d *decoder, path string, raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		d.add(path, "expected object, got %s", kindOf(raw))
		return nil, false
	}
	return fields, true
}

// decodeArray はJSON配列を要素ごとの生データに分解する。
func decodeArray(d *decoder, path string, raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.add(path, "expected array, got %s", kindOf(raw))
		return nil, false
	}
	return items, true
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
