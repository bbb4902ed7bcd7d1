// Package cleanup は資金スナップショットの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過したスナップショットを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はスナップショットの既定の保持日数。
const DefaultRetentionDays = 90

// Pruner は古いスナップショットの削除インターフェース。
// repository.SnapshotRepositoryが実装する。
type Pruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したスナップショットの自動削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	pruner        Pruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。retentionDaysが0以下の場合は既定値を使う。
func NewCleanupJob(pruner Pruner, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Cutoff は削除境界の時刻を返す。これより古いスナップショットが削除対象。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.RetentionDays)
}

// Run は保持期間を超過したスナップショットを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := j.Cutoff()

	deletedCount, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("スナップショットのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("スナップショットのクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("スナップショットのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。エラーはRun内でログに記録済み。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
