// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxParallel is the number of on-demand clears allowed to run at
// the same time.
const DefaultMaxParallel = 8

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs clears in the background, at most a fixed number at a
// time. Callers never block on the run itself.
type Dispatcher struct {
	engine Clearer
	sem    *semaphore.Weighted
	log    *log.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher feeding engine with at most
// maxParallel concurrent runs.
func NewDispatcher(engine Clearer, maxParallel int, l *log.Logger) *Dispatcher {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Dispatcher{engine: engine, sem: semaphore.NewWeighted(int64(maxParallel)), log: l}
}

// Dispatch queues a clear of hostID.
func (d *Dispatcher) Dispatch(hostID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		d.log.Debug("dispatching clear", "host_id", hostID)
		d.engine.RunClear(context.Background(), hostID)
	}()
	return nil
}

// Close rejects further dispatches and waits for queued and running clears.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatched clears: %w", ctx.Err())
	}
}
