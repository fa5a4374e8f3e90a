// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package schedule keeps one recurring cron trigger per host in step with
// the host's stored schedule.
package schedule // import "github.com/toeirei/cachesweep/internal/schedule"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/toeirei/cachesweep/internal/logging"
	"github.com/toeirei/cachesweep/internal/model"
)

// fieldCount is the number of fields of an accepted expression: minute,
// hour, day of month, month and day of week.
const fieldCount = 5

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Runner is invoked when a trigger fires.
type Runner interface {
	RunClear(ctx context.Context, hostID string)
}

// Source lists the hosts that carry a schedule.
type Source interface {
	ListScheduledHosts(ctx context.Context) ([]model.Host, error)
}

// ValidateCron reports whether expr is a five-field cron expression the
// scheduler would install.
//
// Expressions follow crontab(5). Day of week 0 is Sunday, and when
// both day of month and day of week are restricted a day matching either
// one fires. Schedules written for APScheduler, where 0 is Monday and both
// fields must match, fire on different days and need rewriting.
func ValidateCron(expr string) error {
	_, err := parse(expr)
	return err
}

func parse(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("cron expression %q: expected %d fields, got %d", expr, fieldCount, len(fields))
	}
	sched, err := parser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("cron expression %q: %w", expr, err)
	}
	return sched, nil
}

type trigger struct {
	id       cron.EntryID
	expr     string
	schedule cron.Schedule
}

// Manager owns the cron loop and the trigger for every scheduled host.
type Manager struct {
	mu       sync.Mutex
	cron     *cron.Cron
	triggers map[string]trigger
	runner   Runner
	log      *log.Logger
	loc      *time.Location
	onChange func(n int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocation evaluates expressions in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithLogger sets the logger; logging.Component("scheduler") by default.
func WithLogger(l *log.Logger) Option { return func(m *Manager) { m.log = l } }

// WithOnChange registers a callback receiving the trigger count after every
// install or removal.
func WithOnChange(fn func(n int)) Option { return func(m *Manager) { m.onChange = fn } }

// New returns a stopped Manager that fires runner.
func New(runner Runner, opts ...Option) *Manager {
	m := &Manager{
		triggers: make(map[string]trigger),
		runner:   runner,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.Component("scheduler")
	}
	cl := cronLogger{m.log}
	m.cron = cron.New(
		cron.WithLocation(m.loc),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return m
}

// Start begins firing triggers.
func (m *Manager) Start() {
	m.cron.Start()
	m.log.Info("scheduler started", "triggers", m.Len())
}

// Stop halts the cron loop and waits for running jobs to return or ctx to end.
func (m *Manager) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled runs: %w", ctx.Err())
	}
}

// ResyncAll installs a trigger for every host returned by src and returns
// how many were installed.
func (m *Manager) ResyncAll(ctx context.Context, src Source) (int, error) {
	hosts, err := src.ListScheduledHosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled hosts: %w", err)
	}
	n := 0
	for _, h := range hosts {
		if m.Install(h.ID, h.Schedule) {
			n++
		}
	}
	m.log.Info("schedules synchronised", "installed", n, "hosts", len(hosts))
	return n, nil
}

// Install replaces the host's trigger with one firing on expr. A malformed
// expression removes the old trigger, installs nothing and is only logged.
// It reports whether a trigger was installed.
func (m *Manager) Install(hostID, expr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hostID)

	sched, err := parse(expr)
	if err != nil {
		m.log.Warn("ignoring invalid schedule", "host_id", hostID, "err", err)
		m.changedLocked()
		return false
	}
	id := m.cron.Schedule(sched, clearJob{hostID: hostID, runner: m.runner, log: m.log})
	m.triggers[hostID] = trigger{id: id, expr: strings.Join(strings.Fields(expr), " "), schedule: sched}
	m.log.Debug("installed trigger", "host_id", hostID, "schedule", expr)
	m.changedLocked()
	return true
}

// Remove drops the host's trigger, if any.
func (m *Manager) Remove(hostID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeLocked(hostID) {
		m.log.Debug("removed trigger", "host_id", hostID)
		m.changedLocked()
	}
}

func (m *Manager) removeLocked(hostID string) bool {
	t, ok := m.triggers[hostID]
	if !ok {
		return false
	}
	m.cron.Remove(t.id)
	delete(m.triggers, hostID)
	return true
}

func (m *Manager) changedLocked() {
	if m.onChange != nil {
		m.onChange(len(m.triggers))
	}
}

// Has reports whether the host has a trigger.
func (m *Manager) Has(hostID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.triggers[hostID]
	return ok
}

// Expr returns the normalised expression of the host's trigger.
func (m *Manager) Expr(hostID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[hostID]
	return t.expr, ok
}

// Len returns the number of installed triggers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.triggers)
}

// Next returns the first firing of the host's trigger after now.
func (m *Manager) Next(hostID string) (time.Time, bool) {
	return m.NextAfter(hostID, time.Now())
}

// NextAfter returns the first firing of the host's trigger strictly after t.
func (m *Manager) NextAfter(hostID string, t time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.triggers[hostID]
	if !ok {
		return time.Time{}, false
	}
	return tr.schedule.Next(t.In(m.loc)), true
}

// clearJob is the cron job for one host.
type clearJob struct {
	hostID string
	runner Runner
	log    *log.Logger
}

func (j clearJob) Run() {
	j.log.Debug("trigger fired", "host_id", j.hostID)
	j.runner.RunClear(context.Background(), j.hostID)
}

// cronLogger adapts a charmbracelet logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}
