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

// CreateHost inserts h and returns its id. An empty ID is replaced by a new
// UUID and a zero CreatedAt by the current time.
func (s *BunStore) CreateHost(ctx context.Context, h model.Host) (string, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	m, err := hostToModel(h)
	if err != nil {
		return "", err
	}
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return "", fmt.Errorf("insert host: %w", MapDBError(err))
	}
	dbLogf("db: created host %s (%s)", m.ID, m.Name)
	return m.ID, nil
}

// UpdateHost replaces every mutable field of the host identified by h.ID.
// The creation timestamp is left untouched.
func (s *BunStore) UpdateHost(ctx context.Context, h model.Host) error {
	m, err := hostToModel(h)
	if err != nil {
		return err
	}
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*HostModel)(nil)).Where("h.id = ?", h.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("lookup host %s: %w", h.ID, MapDBError(err))
		}
		if !exists {
			return ErrNotFound
		}
		_, err = tx.NewUpdate().Model(&m).
			Column("name", "hostname", "port", "username", "ssh_key", "grp",
				"remote_paths", "schedule", "keep_last", "transport", "use_sudo").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update host %s: %w", h.ID, MapDBError(err))
		}
		return nil
	})
}

// DeleteHost removes the host and all of its history in one transaction.
func (s *BunStore) DeleteHost(ctx context.Context, id string) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ClearRunModel)(nil)).Where("host_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete history for host %s: %w", id, MapDBError(err))
		}
		res, err := tx.NewDelete().Model((*HostModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete host %s: %w", id, MapDBError(err))
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		dbLogf("db: deleted host %s", id)
		return nil
	})
}

// GetHost returns the host with the given id or ErrNotFound.
func (s *BunStore) GetHost(ctx context.Context, id string) (*model.Host, error) {
	var m HostModel
	if err := s.bun.NewSelect().Model(&m).Where("h.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if mapped := MapDBError(err); mapped == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get host %s: %w", id, err)
	}
	h, err := m.toHost()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHosts returns every host ordered by name, each with its latest run.
func (s *BunStore) ListHosts(ctx context.Context) ([]model.HostSummary, error) {
	var hosts []HostModel
	if err := s.bun.NewSelect().Model(&hosts).OrderExpr("h.name ASC").OrderExpr("h.created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	latest, err := s.latestRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.HostSummary, 0, len(hosts))
	for _, hm := range hosts {
		h, err := hm.toHost()
		if err != nil {
			return nil, err
		}
		sum := model.HostSummary{Host: h}
		if r, ok := latest[h.ID]; ok {
			status := model.RunStatus(r.Status)
			started := r.StartedAt
			sum.LastStatus = &status
			sum.LastRun = &started
			sum.LastFilesDeleted = r.FilesDeleted
		}
		out = append(out, sum)
	}
	return out, nil
}

// latestRuns returns the run with the greatest started_at per host. Ties on
// started_at go to the greater id.
func (s *BunStore) latestRuns(ctx context.Context) (map[string]ClearRunModel, error) {
	var runs []ClearRunModel
	err := s.bun.NewSelect().Model(&runs).
		Where("ch.started_at = (SELECT MAX(c2.started_at) FROM clear_history AS c2 WHERE c2.host_id = ch.host_id)").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest runs: %w", err)
	}
	out := make(map[string]ClearRunModel, len(runs))
	for _, r := range runs {
		if cur, ok := out[r.HostID]; ok && cur.ID > r.ID {
			continue
		}
		out[r.HostID] = r
	}
	return out, nil
}

// ListScheduledHosts returns the hosts whose schedule is not blank.
func (s *BunStore) ListScheduledHosts(ctx context.Context) ([]model.Host, error) {
	var hosts []HostModel
	err := s.bun.NewSelect().Model(&hosts).
		Where("h.schedule IS NOT NULL").
		Where("TRIM(h.schedule) <> ''").
		OrderExpr("h.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scheduled hosts: %w", err)
	}
	out := make([]model.Host, 0, len(hosts))
	for _, hm := range hosts {
		h, err := hm.toHost()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
