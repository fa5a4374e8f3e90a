// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package purge

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/model"
	"github.com/toeirei/cachesweep/internal/remote"
)

// fakeRunner answers per path. Paths without an entry succeed with no output.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]fakeResult
	calls   []string
	block   chan struct{}
	started chan struct{}
}

type fakeResult struct {
	res remote.Result
	err error
}

func (f *fakeRunner) Purge(ctx context.Context, host model.Host, path string) (remote.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	r := f.results[path]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return r.res, r.err
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingObserver struct {
	mu     sync.Mutex
	status []model.RunStatus
	files  []int
}

func (o *recordingObserver) ObserveRun(status model.RunStatus, files int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = append(o.status, status)
	o.files = append(o.files, files)
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newStore(t *testing.T) *db.BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newFileStore opens a sqlite store backed by a file, so overlapping runs
// use separate connections.
func newFileStore(t *testing.T) *db.BunStore {
	t.Helper()
	s, err := db.NewStoreFromDSN("sqlite", "file:"+filepath.Join(t.TempDir(), "purge.db"))
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addHost(t *testing.T, s *db.BunStore, paths []string, keepLast int) string {
	t.Helper()
	id, err := s.CreateHost(context.Background(), model.Host{
		Name: "web", Hostname: "web.example.com", Username: "deploy",
		RemotePaths: paths, KeepLast: keepLast, UseSudo: true,
	})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	return id
}

func newEngine(s *db.BunStore, r Runner, opts ...Option) *Engine {
	base := []Option{
		WithClock(&stepClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}),
		WithLogger(quietLogger()),
	}
	return New(s, s, r, append(base, opts...)...)
}

func onlyRun(t *testing.T, s *db.BunStore, hostID string) model.ClearRun {
	t.Helper()
	runs, err := s.ListRunsForHost(context.Background(), hostID, 0)
	if err != nil {
		t.Fatalf("ListRunsForHost: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected exactly one run, got %d", len(runs))
	}
	return runs[0]
}

func lines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("removed '/f")
		b.WriteByte(byte('0' + i%10))
		b.WriteString("'\n")
	}
	return b.String()
}

func TestRunClear_TimeoutOnSecondPath(t *testing.T) {
	s := newStore(t)
	hostID := addHost(t, s, []string{"/var/cache/a", "/var/cache/b"}, 0)
	runner := &fakeRunner{results: map[string]fakeResult{
		"/var/cache/a": {res: remote.Result{Stdout: lines(3)}},
		"/var/cache/b": {res: remote.Result{ExitCode: -1}, err: context.DeadlineExceeded},
	}}
	newEngine(s, runner).RunClear(context.Background(), hostID)

	r := onlyRun(t, s, hostID)
	if r.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if r.FilesDeleted == nil || *r.FilesDeleted != 3 {
		t.Fatalf("files_deleted = %v, want 3", r.FilesDeleted)
	}
	if r.Message == nil || *r.Message != "/var/cache/b: timed out after 1 hour" {
		t.Fatalf("message = %v", r.Message)
	}
	if r.FinishedAt == nil || !r.FinishedAt.After(r.StartedAt) {
		t.Fatalf("finished_at = %v, started_at = %v", r.FinishedAt, r.StartedAt)
	}
}

func TestRunClear_Outcomes(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []struct {
		name        string
		paths       []string
		results     map[string]fakeResult
		wantStatus  model.RunStatus
		wantFiles   int
		wantMessage string
	}{
		{
			name:  "all succeed and counts are summed",
			paths: []string{"/a", "/b"},
			results: map[string]fakeResult{
				"/a": {res: remote.Result{Stdout: lines(2)}},
				"/b": {res: remote.Result{Stdout: "\n" + lines(5) + "\n\n"}},
			},
			wantStatus: model.StatusSuccess,
			wantFiles:  7,
		},
		{
			name:  "missing paths only count as success",
			paths: []string{"/a", "/gone"},
			results: map[string]fakeResult{
				"/a":    {res: remote.Result{Stdout: lines(1), ExitCode: 1, Stderr: "find: '/a/x': No such file or directory\n"}},
				"/gone": {res: remote.Result{ExitCode: 1, Stderr: "find: '/gone': No such file or directory"}},
			},
			wantStatus: model.StatusSuccess,
			wantFiles:  1,
		},
		{
			name:  "non-zero exit with diagnostics",
			paths: []string{"/a"},
			results: map[string]fakeResult{
				"/a": {res: remote.Result{Stdout: lines(2), ExitCode: 1, Stderr: "rm: cannot remove '/a/x': Permission denied\nfind: '/a/y': No such file or directory\nrm: cannot remove '/a/z': Permission denied\n"}},
			},
			wantStatus:  model.StatusFailed,
			wantFiles:   2,
			wantMessage: "/a: rm: cannot remove '/a/x': Permission denied\nrm: cannot remove '/a/z': Permission denied",
		},
		{
			name:  "stderr without non-zero exit is ignored",
			paths: []string{"/a"},
			results: map[string]fakeResult{
				"/a": {res: remote.Result{Stdout: lines(1), Stderr: "warning: something"}},
			},
			wantStatus: model.StatusSuccess,
			wantFiles:  1,
		},
		{
			name:  "per-path diagnostics truncated to 200",
			paths: []string{"/a"},
			results: map[string]fakeResult{
				"/a": {res: remote.Result{ExitCode: 1, Stderr: long}},
			},
			wantStatus:  model.StatusFailed,
			wantMessage: "/a: " + strings.Repeat("x", 200),
		},
		{
			name:  "connection failure continues with next path",
			paths: []string{"/a", "/b"},
			results: map[string]fakeResult{
				"/a": {err: errors.New("connect to web.example.com:22: connection refused")},
				"/b": {res: remote.Result{Stdout: lines(4)}},
			},
			wantStatus:  model.StatusFailed,
			wantFiles:   4,
			wantMessage: "/a: connect to web.example.com:22: connection refused",
		},
		{
			name:       "blank paths are skipped",
			paths:      []string{"  ", "", "/a"},
			results:    map[string]fakeResult{"/a": {res: remote.Result{Stdout: lines(1)}}},
			wantStatus: model.StatusSuccess,
			wantFiles:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			hostID := addHost(t, s, tt.paths, 0)
			runner := &fakeRunner{results: tt.results}
			obs := &recordingObserver{}
			newEngine(s, runner, WithObserver(obs)).RunClear(context.Background(), hostID)

			r := onlyRun(t, s, hostID)
			if r.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", r.Status, tt.wantStatus)
			}
			if r.FilesDeleted == nil || *r.FilesDeleted != tt.wantFiles {
				t.Errorf("files_deleted = %v, want %d", r.FilesDeleted, tt.wantFiles)
			}
			switch {
			case tt.wantMessage == "" && r.Message != nil:
				t.Errorf("message = %q, want NULL", *r.Message)
			case tt.wantMessage != "" && (r.Message == nil || *r.Message != tt.wantMessage):
				t.Errorf("message = %v, want %q", r.Message, tt.wantMessage)
			}
			if len(obs.status) != 1 || obs.status[0] != tt.wantStatus || obs.files[0] != tt.wantFiles {
				t.Errorf("observer saw %v %v", obs.status, obs.files)
			}
		})
	}
}

func TestRunClear_PathsInOrder(t *testing.T) {
	s := newStore(t)
	hostID := addHost(t, s, []string{"/c", " /a ", "/b"}, 0)
	runner := &fakeRunner{}
	newEngine(s, runner).RunClear(context.Background(), hostID)
	got := runner.Calls()
	want := []string{"/c", "/a", "/b"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestRunClear_MessageTruncatedTo500(t *testing.T) {
	s := newStore(t)
	var paths []string
	results := map[string]fakeResult{}
	for _, p := range []string{"/p1", "/p2", "/p3", "/p4"} {
		paths = append(paths, p)
		results[p] = fakeResult{res: remote.Result{ExitCode: 2, Stderr: strings.Repeat("e", 250)}}
	}
	hostID := addHost(t, s, paths, 0)
	newEngine(s, &fakeRunner{results: results}).RunClear(context.Background(), hostID)
	r := onlyRun(t, s, hostID)
	if r.Message == nil || len([]rune(*r.Message)) != 500 {
		t.Fatalf("message length = %d, want 500", len([]rune(*r.Message)))
	}
	if !strings.HasPrefix(*r.Message, "/p1: ") {
		t.Fatalf("message should start with first failing path: %q", (*r.Message)[:10])
	}
}

func TestRunClear_UnknownHostIsNoOp(t *testing.T) {
	s := newStore(t)
	runner := &fakeRunner{}
	newEngine(s, runner).RunClear(context.Background(), "missing")
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 || len(runner.Calls()) != 0 {
		t.Fatalf("expected no runs and no remote calls, got %d runs %d calls", len(runs), len(runner.Calls()))
	}
}

func TestRunClear_Retention(t *testing.T) {
	tests := []struct {
		name     string
		keepLast int
		runs     int
		want     int
	}{
		{"keep last three of six", 3, 6, 3},
		{"unbounded keeps all", 0, 6, 6},
		{"keep one", 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			hostID := addHost(t, s, []string{"/a"}, tt.keepLast)
			e := newEngine(s, &fakeRunner{})
			for i := 0; i < tt.runs; i++ {
				e.RunClear(context.Background(), hostID)
			}
			runs, err := s.ListRunsForHost(context.Background(), hostID, 0)
			if err != nil {
				t.Fatalf("ListRunsForHost: %v", err)
			}
			if len(runs) != tt.want {
				t.Fatalf("kept %d runs, want %d", len(runs), tt.want)
			}
			for _, r := range runs {
				if !r.Status.Terminal() {
					t.Errorf("run %s not terminal: %s", r.ID, r.Status)
				}
			}
		})
	}
}

func TestRunClear_Overlap(t *testing.T) {
	tests := []struct {
		name      string
		exclusive bool
		keepLast  int
		wantRuns  int
	}{
		{"concurrent runs allowed by default", false, 0, 2},
		{"exclusive skips the overlapping run", true, 0, 1},
		{"concurrent runs trimmed to keep_last", false, 1, 1},
		{"concurrent runs within keep_last", false, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFileStore(t)
			hostID := addHost(t, s, []string{"/a"}, tt.keepLast)
			runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 2)}
			e := newEngine(s, runner, Exclusive(tt.exclusive))

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.RunClear(context.Background(), hostID)
			}()
			<-runner.started

			secondDone := make(chan struct{})
			go func() {
				defer close(secondDone)
				e.RunClear(context.Background(), hostID)
			}()
			if tt.exclusive {
				<-secondDone
				if !e.Running(hostID) {
					t.Errorf("first run should be tracked as in flight")
				}
			} else {
				<-runner.started
			}
			close(runner.block)
			wg.Wait()
			<-secondDone

			runs, _ := s.ListRunsForHost(context.Background(), hostID, 0)
			if len(runs) != tt.wantRuns {
				t.Fatalf("got %d runs, want %d", len(runs), tt.wantRuns)
			}
			for _, r := range runs {
				if !r.Status.Terminal() {
					t.Errorf("run %s not terminal: %s", r.ID, r.Status)
				}
			}
			if e.Running(hostID) {
				t.Errorf("host still marked running after completion")
			}
		})
	}
}

// The older of two overlapping runs finishes and trims while the newer one
// is still running. The newer run must keep its row and finish into it.
func TestRunClear_OverlapTrimKeepsRunningRow(t *testing.T) {
	s := newFileStore(t)
	hostID := addHost(t, s, []string{"/a"}, 1)

	firstInRunner := make(chan struct{})
	secondStarted := make(chan struct{})
	firstDone := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	runner := runnerFunc(func(ctx context.Context, _ model.Host, _ string) (remote.Result, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(firstInRunner)
			<-secondStarted
			return remote.Result{Stdout: lines(1)}, nil
		}
		close(secondStarted)
		<-firstDone
		return remote.Result{Stdout: lines(2)}, nil
	})
	e := newEngine(s, runner)

	go func() {
		defer close(firstDone)
		e.RunClear(context.Background(), hostID)
	}()
	<-firstInRunner
	e.RunClear(context.Background(), hostID)

	runs, err := s.ListRunsForHost(context.Background(), hostID, 0)
	if err != nil {
		t.Fatalf("ListRunsForHost: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("kept %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Status != model.StatusSuccess || r.FilesDeleted == nil || *r.FilesDeleted != 2 {
		t.Fatalf("surviving run should be the second, finished one: %+v", r)
	}
}

func TestRunClear_RealPathTimeout(t *testing.T) {
	s := newStore(t)
	hostID := addHost(t, s, []string{"/slow"}, 0)
	runner := runnerFunc(func(ctx context.Context, _ model.Host, _ string) (remote.Result, error) {
		<-ctx.Done()
		return remote.Result{ExitCode: -1}, ctx.Err()
	})
	newEngine(s, runner, WithPathTimeout(50*time.Millisecond)).RunClear(context.Background(), hostID)
	r := onlyRun(t, s, hostID)
	if r.Message == nil || *r.Message != "/slow: timed out after 50ms" {
		t.Fatalf("message = %v", r.Message)
	}
}

func TestRunClear_CallerCancellationDoesNotAbort(t *testing.T) {
	s := newStore(t)
	hostID := addHost(t, s, []string{"/a"}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := runnerFunc(func(ctx context.Context, _ model.Host, _ string) (remote.Result, error) {
		if err := ctx.Err(); err != nil {
			return remote.Result{}, err
		}
		return remote.Result{Stdout: lines(2)}, nil
	})
	newEngine(s, runner).RunClear(ctx, hostID)
	r := onlyRun(t, s, hostID)
	if r.Status != model.StatusSuccess || *r.FilesDeleted != 2 {
		t.Fatalf("unexpected run %+v", r)
	}
}

type failingLedger struct{ Ledger }

func (failingLedger) RecordStart(context.Context, string, time.Time) (string, error) {
	return "", errors.New("database is locked")
}

func TestRunClear_LedgerFailureIsSwallowed(t *testing.T) {
	s := newStore(t)
	hostID := addHost(t, s, []string{"/a"}, 0)
	runner := &fakeRunner{}
	e := New(s, failingLedger{s}, runner, WithLogger(quietLogger()))
	e.RunClear(context.Background(), hostID)
	if len(runner.Calls()) != 0 {
		t.Fatalf("no remote work should happen without a ledger row")
	}
}

type runnerFunc func(ctx context.Context, host model.Host, path string) (remote.Result, error)

func (f runnerFunc) Purge(ctx context.Context, host model.Host, path string) (remote.Result, error) {
	return f(ctx, host, path)
}

func TestPurgeCommand(t *testing.T) {
	got := strings.Join(PurgeCommand("/var/cache/a", true), " ")
	if got != "sudo -n find /var/cache/a -type f -exec rm -v {} ;" {
		t.Errorf("sudo command = %q", got)
	}
	got = remote.ShellQuote(PurgeCommand("/var/cache/my app", false))
	if got != "find '/var/cache/my app' -type f -exec rm -v '{}' ';'" {
		t.Errorf("quoted command = %q", got)
	}
}

func TestDescribeTimeout(t *testing.T) {
	tests := map[time.Duration]string{
		time.Hour:             "1 hour",
		2 * time.Hour:         "2 hours",
		90 * time.Second:      "1m30s",
		50 * time.Millisecond: "50ms",
	}
	for d, want := range tests {
		if got := describeTimeout(d); got != want {
			t.Errorf("describeTimeout(%s) = %q, want %q", d, got, want)
		}
	}
}
