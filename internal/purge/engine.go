// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package purge executes a clear run: it deletes the files below every
// configured path of a host and records the outcome in the history ledger.
package purge // import "github.com/toeirei/cachesweep/internal/purge"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/logging"
	"github.com/toeirei/cachesweep/internal/model"
)

// DefaultPathTimeout bounds the purge of a single path, connect included.
const DefaultPathTimeout = time.Hour

// HostSource resolves a host id to its profile.
type HostSource interface {
	GetHost(ctx context.Context, id string) (*model.Host, error)
}

// Ledger is the part of the history ledger the engine writes to.
type Ledger interface {
	RecordStart(ctx context.Context, hostID string, startedAt time.Time) (string, error)
	RecordFinish(ctx context.Context, runID string, status model.RunStatus, filesDeleted int, message string, finishedAt time.Time) error
	Trim(ctx context.Context, hostID string, keepLast int) (int64, error)
}

// Observer receives the outcome of every finished run.
type Observer interface {
	ObserveRun(status model.RunStatus, filesDeleted int, elapsed time.Duration)
}

// Engine runs clears. It is safe for concurrent use.
type Engine struct {
	hosts       HostSource
	ledger      Ledger
	runner      Runner
	clock       Clock
	log         *log.Logger
	observer    Observer
	pathTimeout time.Duration

	exclusive bool
	mu        sync.Mutex
	inflight  map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the logger; logging.Component("engine") by default.
func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.log = l } }

// WithObserver registers an observer for finished runs.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithPathTimeout overrides DefaultPathTimeout.
func WithPathTimeout(d time.Duration) Option { return func(e *Engine) { e.pathTimeout = d } }

// Exclusive makes overlapping runs for the same host skip instead of
// running side by side. A skipped run leaves no ledger row.
func Exclusive(on bool) Option { return func(e *Engine) { e.exclusive = on } }

// New returns an Engine reading hosts from hosts, recording into ledger and
// purging through runner.
func New(hosts HostSource, ledger Ledger, runner Runner, opts ...Option) *Engine {
	e := &Engine{
		hosts:       hosts,
		ledger:      ledger,
		runner:      runner,
		clock:       SystemClock(),
		pathTimeout: DefaultPathTimeout,
		inflight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.Component("engine")
	}
	return e
}

// Running reports whether a run for hostID is in flight. Only tracked when
// the engine is exclusive.
func (e *Engine) Running(hostID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[hostID]
	return ok
}

func (e *Engine) acquire(hostID string) bool {
	if !e.exclusive {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[hostID]; busy {
		return false
	}
	e.inflight[hostID] = struct{}{}
	return true
}

func (e *Engine) release(hostID string) {
	if !e.exclusive {
		return
	}
	e.mu.Lock()
	delete(e.inflight, hostID)
	e.mu.Unlock()
}

// RunClear purges every configured path of the host and records one run.
// It never fails outwardly: problems end up in the ledger or the log.
// Cancellation of ctx does not abort the run; only the per-path timeout does.
func (e *Engine) RunClear(ctx context.Context, hostID string) {
	ctx = context.WithoutCancel(ctx)
	l := e.log.With("host_id", hostID)

	host, err := e.hosts.GetHost(ctx, hostID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			l.Debug("host not found, skipping clear")
		} else {
			l.Error("failed to load host", "err", err)
		}
		return
	}

	if !e.acquire(hostID) {
		l.Info("clear already running for host, skipping")
		return
	}
	defer e.release(hostID)

	started := e.clock.Now()
	runID, err := e.ledger.RecordStart(ctx, hostID, started)
	if err != nil {
		l.Error("failed to record run start", "err", err)
		return
	}
	l = l.With("run_id", runID)
	l.Info("clear started", "host", host.String(), "paths", len(host.ActivePaths()))

	total := 0
	var errs []string
	for _, p := range host.ActivePaths() {
		n, perr := e.purgePath(ctx, *host, p, l)
		total += n
		if perr != "" {
			errs = append(errs, perr)
		}
	}

	status := model.StatusSuccess
	message := ""
	if len(errs) > 0 {
		status = model.StatusFailed
		message = truncate(strings.Join(errs, "\n"), runErrorLimit)
	}
	finished := e.clock.Now()
	if err := e.ledger.RecordFinish(ctx, runID, status, total, message, finished); err != nil {
		l.Error("failed to record run finish", "err", err)
	}
	l.Info("clear finished", "status", status, "files_deleted", total, "elapsed", finished.Sub(started))
	if e.observer != nil {
		e.observer.ObserveRun(status, total, finished.Sub(started))
	}

	if host.KeepLast > 0 {
		if _, err := e.ledger.Trim(ctx, hostID, host.KeepLast); err != nil {
			l.Error("failed to trim history", "keep_last", host.KeepLast, "err", err)
		}
	}
}

// purgePath purges one path and returns the number of deleted files and the
// path's error line, empty when the path succeeded.
func (e *Engine) purgePath(ctx context.Context, host model.Host, path string, l *log.Logger) (int, string) {
	l = l.With("path", path)
	pctx, cancel := context.WithTimeout(ctx, e.pathTimeout)
	defer cancel()

	res, err := e.runner.Purge(pctx, host, path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
			l.Warn("purge timed out", "timeout", e.pathTimeout)
			return 0, fmt.Sprintf("%s: timed out after %s", path, describeTimeout(e.pathTimeout))
		}
		l.Warn("purge failed", "err", err)
		return 0, fmt.Sprintf("%s: %s", path, truncate(err.Error(), pathErrorLimit))
	}

	deleted := countLines(res.Stdout)
	l.Debug("purge completed", "files_deleted", deleted, "exit_code", res.ExitCode)
	if res.ExitCode != 0 {
		if fatal := fatalDiagnostics(res.Stderr); len(fatal) > 0 {
			l.Warn("purge reported errors", "exit_code", res.ExitCode)
			return deleted, fmt.Sprintf("%s: %s", path, truncate(strings.Join(fatal, "\n"), pathErrorLimit))
		}
	}
	return deleted, ""
}
