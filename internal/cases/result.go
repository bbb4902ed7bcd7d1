package cases

import (
	"errors"

	"github.com/alihajali918/sanadedu-sub000/internal/cms"
	"github.com/alihajali918/sanadedu-sub000/internal/cms/schema"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// Result は集約処理の結果。失敗してもValueには空の値（空リストまたはnil）が入る。
// Kindは失敗の種類で、成功時はFailureNone、一部のドメインだけ失敗した場合はFailurePartial。
type Result[T any] struct {
	Value T
	Kind  model.FailureKind
	Err   error
}

// OK は値をそのまま使えるかを返す。部分的な失敗は成功として扱う。
func (r Result[T]) OK() bool {
	return r.Kind == model.FailureNone || r.Kind == model.FailurePartial
}

// OrEmpty はUI境界向けに失敗を畳み込んだ値を返す。
// 失敗時は空リストまたはnilになり、画面は空状態を表示する。
func (r Result[T]) OrEmpty() T {
	return r.Value
}

func succeed[T any](v T) Result[T] {
	return Result[T]{Value: v, Kind: model.FailureNone}
}

func fail[T any](empty T, kind model.FailureKind, err error) Result[T] {
	return Result[T]{Value: empty, Kind: kind, Err: err}
}

// failureKind はエラーを失敗種別に分類する。
func failureKind(err error) model.FailureKind {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe.kind()
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return model.FailureValidation
	}
	return cms.KindOf(err)
}
