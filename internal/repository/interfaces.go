// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// SnapshotRepository は資金スナップショットの永続化インターフェース。
type SnapshotRepository interface {
	// InsertBatch は1回の取得分のスナップショットを同一トランザクションで保存する。
	// IDが空のスナップショットにはUUIDを採番する。
	InsertBatch(ctx context.Context, snapshots []model.FundingSnapshot) error

	// ListByCase は指定Caseのスナップショットを新しい順に最大limit件取得する。
	ListByCase(ctx context.Context, caseID int, limit int) ([]model.FundingSnapshot, error)

	// DeleteOlderThan はtakenAtがbeforeより古いスナップショットを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
