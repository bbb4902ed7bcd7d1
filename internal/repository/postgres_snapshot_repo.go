package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/alihajali918/sanadedu-sub000/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用した資金スナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// InsertBatch はCOPYでスナップショットを一括保存する。
// 途中で失敗した場合はロールバックし、1件も保存しない。
func (r *PostgresSnapshotRepo) InsertBatch(ctx context.Context, snapshots []model.FundingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("funding_snapshots",
		"id", "run_id", "case_id", "case_kind",
		"fund_needed", "fund_raised", "progress", "is_urgent", "taken_at",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i := range snapshots {
		s := &snapshots[i]
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			s.ID, s.RunID, s.CaseID, string(s.CaseKind),
			s.FundNeeded, s.FundRaised, s.Progress, s.IsUrgent, s.TakenAt,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("スナップショットの書き込みに失敗しました (case_id=%d): %w", s.CaseID, err)
		}
	}

	// 引数なしのExecでCOPYのバッファをフラッシュする
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByCase は指定Caseのスナップショットを新しい順に最大limit件取得する。
func (r *PostgresSnapshotRepo) ListByCase(ctx context.Context, caseID int, limit int) ([]model.FundingSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, case_id, case_kind, fund_needed, fund_raised,
		        progress, is_urgent, taken_at
		 FROM funding_snapshots
		 WHERE case_id = $1
		 ORDER BY taken_at DESC
		 LIMIT $2`,
		caseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	snapshots := []model.FundingSnapshot{}
	for rows.Next() {
		var s model.FundingSnapshot
		var kind string
		if err := rows.Scan(
			&s.ID, &s.RunID, &s.CaseID, &kind, &s.FundNeeded, &s.FundRaised,
			&s.Progress, &s.IsUrgent, &s.TakenAt,
		); err != nil {
			return nil, fmt.Errorf("スナップショットのスキャンに失敗しました: %w", err)
		}
		s.CaseKind = model.CaseType(kind)
		s.TakenAt = s.TakenAt.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スナップショットの読み取りに失敗しました: %w", err)
	}

	return snapshots, nil
}

// DeleteOlderThan はtakenAtがbeforeより古いスナップショットを削除し、削除件数を返す。
func (r *PostgresSnapshotRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM funding_snapshots WHERE taken_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古いスナップショットの削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
