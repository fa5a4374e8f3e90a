// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/cachesweep/internal/model"
	"github.com/uptrace/bun"
)

// RecordStart inserts a running ClearRun for hostID and returns its id.
func (s *BunStore) RecordStart(ctx context.Context, hostID string, startedAt time.Time) (string, error) {
	m := ClearRunModel{
		ID:        uuid.NewString(),
		HostID:    hostID,
		StartedAt: startedAt.UTC(),
		Status:    string(model.StatusRunning),
	}
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return "", fmt.Errorf("record start for host %s: %w", hostID, MapDBError(err))
	}
	return m.ID, nil
}

// RecordFinish writes the terminal state of a run. An empty message is
// stored as NULL.
func (s *BunStore) RecordFinish(ctx context.Context, runID string, status model.RunStatus, filesDeleted int, message string, finishedAt time.Time) error {
	var msg *string
	if message != "" {
		msg = &message
	}
	res, err := s.bun.NewUpdate().Model((*ClearRunModel)(nil)).
		Set("finished_at = ?", finishedAt.UTC()).
		Set("status = ?", string(status)).
		Set("files_deleted = ?", filesDeleted).
		Set("message = ?", msg).
		Where("id = ?", runID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record finish for run %s: %w", runID, MapDBError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Trim deletes every run of hostID except the keepLast most recently
// started ones and returns the number of rows removed. keepLast <= 0 keeps
// everything. The selection and the delete are one statement, so a run
// started concurrently is never removed before it is ranked.
func (s *BunStore) Trim(ctx context.Context, hostID string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	keep := s.bun.NewSelect().
		TableExpr("clear_history AS k").
		ColumnExpr("k.id").
		Where("k.host_id = ?", hostID).
		OrderExpr("k.started_at DESC, k.id DESC").
		Limit(keepLast)
	if s.dbType == TypeMySQL {
		// MySQL refuses LIMIT in an IN subquery and reads of the table being
		// deleted from; a derived table lifts both.
		keep = s.bun.NewSelect().TableExpr("(?) AS keep_ids", keep).ColumnExpr("keep_ids.id")
	}
	res, err := s.bun.NewDelete().
		TableExpr("clear_history").
		Where("host_id = ?", hostID).
		Where("id NOT IN (?)", keep).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("trim history for host %s: %w", hostID, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		dbLogf("db: trimmed %d runs for host %s (keep_last=%d)", n, hostID, keepLast)
	}
	return n, nil
}

// ListRunsForHost returns the newest runs of one host, at most limit
// (DefaultHostHistoryLimit when limit <= 0).
func (s *BunStore) ListRunsForHost(ctx context.Context, hostID string, limit int) ([]model.ClearRun, error) {
	if limit <= 0 {
		limit = DefaultHostHistoryLimit
	}
	var rows []ClearRunModel
	if err := s.historyQuery(&rows).Where("ch.host_id = ?", hostID).Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list runs for host %s: %w", hostID, err)
	}
	return runsFromModels(rows), nil
}

// ListRuns returns the newest runs across all hosts, at most limit
// (DefaultHistoryLimit when limit <= 0).
func (s *BunStore) ListRuns(ctx context.Context, limit int) ([]model.ClearRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []ClearRunModel
	if err := s.historyQuery(&rows).Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runsFromModels(rows), nil
}

func (s *BunStore) historyQuery(rows *[]ClearRunModel) *bun.SelectQuery {
	return s.bun.NewSelect().Model(rows).
		ColumnExpr("ch.*").
		ColumnExpr("h.name AS host_name").
		Join("JOIN hosts AS h ON h.id = ch.host_id").
		OrderExpr("ch.started_at DESC, ch.id DESC")
}

// Export returns every host and every run, oldest run first.
func (s *BunStore) Export(ctx context.Context) (*model.Export, error) {
	var hosts []HostModel
	if err := s.bun.NewSelect().Model(&hosts).OrderExpr("h.name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("export hosts: %w", err)
	}
	var rows []ClearRunModel
	err := s.bun.NewSelect().Model(&rows).
		ColumnExpr("ch.*").
		ColumnExpr("h.name AS host_name").
		Join("JOIN hosts AS h ON h.id = ch.host_id").
		OrderExpr("ch.started_at ASC, ch.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("export runs: %w", err)
	}
	out := &model.Export{Version: 1, ExportedAt: time.Now().UTC(), Runs: runsFromModels(rows)}
	for _, hm := range hosts {
		h, err := hm.toHost()
		if err != nil {
			return nil, err
		}
		out.Hosts = append(out.Hosts, h)
	}
	return out, nil
}
