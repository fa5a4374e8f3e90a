// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/schedule"
)

func newTestStore(t *testing.T) *db.BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:core_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type countingClearer struct {
	mu      sync.Mutex
	calls   []string
	active  int
	peak    int
	release chan struct{}
}

func (c *countingClearer) RunClear(_ context.Context, hostID string) {
	c.mu.Lock()
	c.calls = append(c.calls, hostID)
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
}

func (c *countingClearer) snapshot() (calls []string, peak int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...), c.peak
}

type noopRunner struct{}

func (noopRunner) RunClear(context.Context, string) {}

type testEnv struct {
	store *db.BunStore
	sched *schedule.Manager
	clear *countingClearer
	svc   *Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	quiet := log.New(io.Discard)
	env := &testEnv{
		store: newTestStore(t),
		sched: schedule.New(noopRunner{}, schedule.WithLogger(quiet), schedule.WithLocation(time.UTC)),
		clear: &countingClearer{},
	}
	base := []Option{WithScheduler(env.sched), WithLogger(quiet)}
	env.svc = NewService(env.store, env.clear, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.svc.Close(ctx)
	})
	return env
}

func validInput(name string) HostInput {
	return HostInput{
		Name:        name,
		Hostname:    name + ".example.com",
		Username:    "deploy",
		RemotePaths: []string{"/var/cache/app"},
	}
}

func boolPtr(b bool) *bool { return &b }
