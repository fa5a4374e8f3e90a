// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core is the write path for host profiles. It validates input,
// persists it and keeps the scheduler's triggers in step with what is stored.
// It also owns the on-demand clear dispatcher and the connectivity test.
package core // import "github.com/toeirei/cachesweep/internal/core"

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/logging"
	"github.com/toeirei/cachesweep/internal/model"
	"github.com/toeirei/cachesweep/internal/remote"
)

// Store is the persistence the service needs.
type Store interface {
	db.HostRegistry
	db.HistoryLedger
	Export(ctx context.Context) (*model.Export, error)
}

// Scheduler receives trigger changes after successful writes.
type Scheduler interface {
	Install(hostID, expr string) bool
	Remove(hostID string)
}

// Clearer performs a clear run.
type Clearer interface {
	RunClear(ctx context.Context, hostID string)
}

// Prober runs a command on a target; *remote.Executor is the production
// implementation.
type Prober interface {
	Exec(ctx context.Context, t remote.Target, argv []string) (remote.Result, error)
}

type nopScheduler struct{}

func (nopScheduler) Install(string, string) bool { return false }
func (nopScheduler) Remove(string)               {}

// Service implements the host operations of the API and the CLI.
type Service struct {
	store       Store
	sched       Scheduler
	dispatcher  *Dispatcher
	prober      Prober
	testTimeout time.Duration
	maxParallel int
	log         *log.Logger

	// writeMu covers a store write together with its scheduler mirror.
	writeMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithScheduler mirrors schedule changes into s. Without one, writes only
// touch the store.
func WithScheduler(s Scheduler) Option { return func(svc *Service) { svc.sched = s } }

// WithProber replaces the connection used by TestConnection.
func WithProber(p Prober) Option { return func(svc *Service) { svc.prober = p } }

// WithTestTimeout overrides TestOverallTimeout.
func WithTestTimeout(d time.Duration) Option { return func(svc *Service) { svc.testTimeout = d } }

// WithMaxParallel bounds concurrent on-demand clears; DefaultMaxParallel
// when n <= 0.
func WithMaxParallel(n int) Option { return func(svc *Service) { svc.maxParallel = n } }

// WithLogger sets the logger; logging.Component("hosts") by default.
func WithLogger(l *log.Logger) Option { return func(svc *Service) { svc.log = l } }

// NewService returns a Service persisting into store and dispatching
// on-demand clears to engine.
func NewService(store Store, engine Clearer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		sched:       nopScheduler{},
		prober:      remote.NewExecutor(remote.Dialer{ConnectTimeout: TestConnectTimeout}),
		testTimeout: TestOverallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Component("hosts")
	}
	s.dispatcher = NewDispatcher(engine, s.maxParallel, s.log)
	return s
}

// CreateHost validates in, stores it and installs its trigger.
func (s *Service) CreateHost(ctx context.Context, in HostInput) (string, error) {
	h, err := in.toHost(nil)
	if err != nil {
		return "", err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	id, err := s.store.CreateHost(ctx, h)
	if err != nil {
		return "", fmt.Errorf("create host: %w", err)
	}
	if h.HasSchedule() {
		s.sched.Install(id, h.Schedule)
	}
	s.log.Info("host created", "host_id", id, "name", h.Name, "schedule", h.Schedule)
	return id, nil
}

// UpdateHost replaces the mutable fields of host id. The trigger is removed
// and, when the new schedule is non-empty, installed again.
func (s *Service) UpdateHost(ctx context.Context, id string, in HostInput) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	prev, err := s.store.GetHost(ctx, id)
	if err != nil {
		return fmt.Errorf("update host: %w", err)
	}
	h, err := in.toHost(prev)
	if err != nil {
		return err
	}
	h.ID = id
	h.CreatedAt = prev.CreatedAt
	if err := s.store.UpdateHost(ctx, h); err != nil {
		return fmt.Errorf("update host: %w", err)
	}
	s.sched.Remove(id)
	if h.HasSchedule() {
		s.sched.Install(id, h.Schedule)
	}
	s.log.Info("host updated", "host_id", id, "schedule", h.Schedule)
	return nil
}

// DeleteHost removes host id, its history and its trigger.
func (s *Service) DeleteHost(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.DeleteHost(ctx, id); err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	s.sched.Remove(id)
	s.log.Info("host deleted", "host_id", id)
	return nil
}

// GetHost returns host id or db.ErrNotFound.
func (s *Service) GetHost(ctx context.Context, id string) (*model.Host, error) {
	return s.store.GetHost(ctx, id)
}

// ListHosts returns every host with its latest run, ordered by name.
func (s *Service) ListHosts(ctx context.Context) ([]model.HostSummary, error) {
	return s.store.ListHosts(ctx)
}

// History returns runs newest first: for one host when hostID is set,
// otherwise across all hosts. limit <= 0 selects the store default.
func (s *Service) History(ctx context.Context, hostID string, limit int) ([]model.ClearRun, error) {
	if hostID != "" {
		return s.store.ListRunsForHost(ctx, hostID, limit)
	}
	return s.store.ListRuns(ctx, limit)
}

// Export snapshots all hosts and runs.
func (s *Service) Export(ctx context.Context) (*model.Export, error) {
	return s.store.Export(ctx)
}

// TriggerClear starts a clear for hostID in the background and returns at
// once. The outcome is only visible in the history.
func (s *Service) TriggerClear(hostID string) error {
	return s.dispatcher.Dispatch(hostID)
}

// Close stops accepting on-demand clears and waits for the running ones or
// for ctx to end.
func (s *Service) Close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}
