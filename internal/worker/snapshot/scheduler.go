// Package snapshot はCaseの資金進捗を定期的に記録するバックグラウンド処理を提供する。
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alihajali918/sanadedu-sub000/internal/cases"
	"github.com/alihajali918/sanadedu-sub000/internal/metrics"
	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// CaseLister はCase一覧の取得インターフェース。cases.Serviceが実装する。
type CaseLister interface {
	AllCases(ctx context.Context, filter cases.Filter) cases.Result[[]model.Case]
}

// Writer はスナップショットの保存インターフェース。repository.SnapshotRepositoryが実装する。
type Writer interface {
	InsertBatch(ctx context.Context, snapshots []model.FundingSnapshot) error
}

// Scheduler は一定間隔で全Caseの資金状況を取得し、1回分をまとめて保存する。
type Scheduler struct {
	cases     CaseLister
	writer    Writer
	collector metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(lister CaseLister, writer Writer, collector metrics.MetricsCollector, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cases:     lister,
		writer:    writer,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Start はintervalごとにRunOnceを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スナップショットスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スナップショットスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スナップショットの記録に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全Caseを取得して1回分のスナップショットを保存し、保存件数を返す。
// 一部のドメインだけ失敗した場合は取得できた分を保存する。
// 全体が失敗した場合は何も保存しない（空の記録で推移を欠損させない）。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := s.now()

	res := s.cases.AllCases(ctx, cases.Filter{})
	if !res.OK() {
		return 0, fmt.Errorf("Case一覧の取得に失敗しました (kind=%s): %w", res.Kind, res.Err)
	}
	if res.Kind == model.FailurePartial {
		s.logger.Warn("一部のドメインの取得に失敗したため、取得できたCaseのみ記録します",
			slog.String("kind", string(res.Kind)),
			slog.Any("error", res.Err),
		)
	}

	snapshots := Build(uuid.New().String(), res.Value, start.UTC())
	if len(snapshots) == 0 {
		s.logger.Info("記録対象のCaseはありません")
		return 0, nil
	}

	if err := s.writer.InsertBatch(ctx, snapshots); err != nil {
		return 0, fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}
	s.collector.RecordSnapshotsWritten(len(snapshots))

	s.logger.Info("スナップショットを記録しました",
		slog.String("run_id", snapshots[0].RunID),
		slog.Int("case_count", len(snapshots)),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return len(snapshots), nil
}

// Build はCase一覧から同一runIDのスナップショットを組み立てる。
func Build(runID string, list []model.Case, takenAt time.Time) []model.FundingSnapshot {
	snapshots := make([]model.FundingSnapshot, 0, len(list))
	for _, c := range list {
		snapshots = append(snapshots, model.FundingSnapshot{
			RunID:      runID,
			CaseID:     c.ID,
			CaseKind:   c.Kind,
			FundNeeded: c.FundNeeded,
			FundRaised: c.FundRaised,
			Progress:   c.Progress,
			IsUrgent:   c.IsUrgent,
			TakenAt:    takenAt,
		})
	}
	return snapshots
}
