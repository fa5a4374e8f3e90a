// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/toeirei/cachesweep/internal/model"
	"github.com/uptrace/bun"
)

const (
	// DefaultHostHistoryLimit bounds ListRunsForHost when no limit is given.
	DefaultHostHistoryLimit = 50
	// DefaultHistoryLimit bounds ListRuns when no limit is given.
	DefaultHistoryLimit = 100
)

// HostRegistry is the durable store of host profiles.
type HostRegistry interface {
	CreateHost(ctx context.Context, h model.Host) (string, error)
	UpdateHost(ctx context.Context, h model.Host) error
	DeleteHost(ctx context.Context, id string) error
	GetHost(ctx context.Context, id string) (*model.Host, error)
	ListHosts(ctx context.Context) ([]model.HostSummary, error)
	ListScheduledHosts(ctx context.Context) ([]model.Host, error)
}

// HistoryLedger is the durable store of run outcomes.
type HistoryLedger interface {
	RecordStart(ctx context.Context, hostID string, startedAt time.Time) (string, error)
	RecordFinish(ctx context.Context, runID string, status model.RunStatus, filesDeleted int, message string, finishedAt time.Time) error
	Trim(ctx context.Context, hostID string, keepLast int) (int64, error)
	ListRunsForHost(ctx context.Context, hostID string, limit int) ([]model.ClearRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.ClearRun, error)
}

// Store is everything the application needs from the database.
type Store interface {
	HostRegistry
	HistoryLedger
	Export(ctx context.Context) (*model.Export, error)
	Maintain(ctx context.Context) error
	DBType() string
	Close() error
}

// BunStore implements Store on top of a *bun.DB for every supported dialect.
type BunStore struct {
	bun    *bun.DB
	dbType string
}

var _ Store = (*BunStore)(nil)

// DBType returns the configured database type.
func (s *BunStore) DBType() string { return s.dbType }

// Bun exposes the underlying handle for maintenance commands and tests.
func (s *BunStore) Bun() *bun.DB { return s.bun }

// Close releases the connection pool.
func (s *BunStore) Close() error {
	if s == nil || s.bun == nil {
		return nil
	}
	return s.bun.Close()
}
