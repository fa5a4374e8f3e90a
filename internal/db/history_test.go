// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toeirei/cachesweep/internal/model"
	"github.com/uptrace/bun"
)

func TestRecordStartAndFinish(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hostID := mustCreateHost(t, s, testHost("web"))
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	runID, err := s.RecordStart(ctx, hostID, start)
	if err != nil {
		t.Fatalf("RecordStart failed: %v", err)
	}
	runs, _ := s.ListRunsForHost(ctx, hostID, 0)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.Status != model.StatusRunning || r.FinishedAt != nil || r.FilesDeleted != nil || r.Message != nil {
		t.Fatalf("unexpected running row: %+v", r)
	}
	if r.HostName != "web" {
		t.Errorf("host name = %q", r.HostName)
	}

	if err := s.RecordFinish(ctx, runID, model.StatusFailed, 3, "/b: timed out after 1 hour", start.Add(time.Hour)); err != nil {
		t.Fatalf("RecordFinish failed: %v", err)
	}
	runs, _ = s.ListRunsForHost(ctx, hostID, 0)
	r = runs[0]
	if r.Status != model.StatusFailed || r.FilesDeleted == nil || *r.FilesDeleted != 3 {
		t.Fatalf("unexpected finished row: %+v", r)
	}
	if r.Message == nil || *r.Message != "/b: timed out after 1 hour" {
		t.Fatalf("message = %v", r.Message)
	}
	if r.FinishedAt == nil || r.Duration() != time.Hour {
		t.Fatalf("finished_at = %v", r.FinishedAt)
	}
}

func TestRecordFinish_SuccessStoresNullMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hostID := mustCreateHost(t, s, testHost("web"))
	runID, _ := s.RecordStart(ctx, hostID, time.Now())
	if err := s.RecordFinish(ctx, runID, model.StatusSuccess, 0, "", time.Now()); err != nil {
		t.Fatalf("RecordFinish failed: %v", err)
	}
	runs, _ := s.ListRuns(ctx, 0)
	if runs[0].Message != nil {
		t.Fatalf("expected NULL message, got %q", *runs[0].Message)
	}
	if runs[0].FilesDeleted == nil || *runs[0].FilesDeleted != 0 {
		t.Fatalf("expected files_deleted 0, got %v", runs[0].FilesDeleted)
	}
}

func TestRecordFinish_UnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordFinish(context.Background(), "nope", model.StatusSuccess, 0, "", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordStart_UnknownHost(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RecordStart(context.Background(), "nope", time.Now()); !errors.Is(err, ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name     string
		runs     int
		keepLast int
		wantLeft int
	}{
		{"keep three of six", 6, 3, 3},
		{"unbounded", 6, 0, 6},
		{"keep more than present", 2, 5, 2},
		{"keep one", 4, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			hostID := mustCreateHost(t, s, testHost("h"))
			other := mustCreateHost(t, s, testHost("other"))
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			var ids []string
			for i := 0; i < tt.runs; i++ {
				id, err := s.RecordStart(ctx, hostID, base.Add(time.Duration(i)*time.Minute))
				if err != nil {
					t.Fatalf("RecordStart: %v", err)
				}
				ids = append(ids, id)
			}
			if _, err := s.RecordStart(ctx, other, base); err != nil {
				t.Fatalf("RecordStart other: %v", err)
			}

			if _, err := s.Trim(ctx, hostID, tt.keepLast); err != nil {
				t.Fatalf("Trim failed: %v", err)
			}
			runs, err := s.ListRunsForHost(ctx, hostID, 0)
			if err != nil {
				t.Fatalf("ListRunsForHost: %v", err)
			}
			if len(runs) != tt.wantLeft {
				t.Fatalf("left %d runs, want %d", len(runs), tt.wantLeft)
			}
			// The survivors are the most recently started, newest first.
			for i, r := range runs {
				if want := ids[len(ids)-1-i]; r.ID != want {
					t.Errorf("run %d = %s, want %s", i, r.ID, want)
				}
			}
			otherRuns, _ := s.ListRunsForHost(ctx, other, 0)
			if len(otherRuns) != 1 {
				t.Errorf("trim touched another host: %d runs", len(otherRuns))
			}
		})
	}
}

// startOnTrim records a run through another store handle right before the
// first DELETE against clear_history goes out.
type startOnTrim struct {
	once   sync.Once
	other  *BunStore
	hostID string
	at     time.Time
	runID  string
	err    error
}

func (h *startOnTrim) BeforeQuery(ctx context.Context, e *bun.QueryEvent) context.Context {
	if strings.HasPrefix(e.Query, "DELETE") && strings.Contains(e.Query, "clear_history") {
		h.once.Do(func() {
			h.runID, h.err = h.other.RecordStart(context.Background(), h.hostID, h.at)
		})
	}
	return ctx
}

func (h *startOnTrim) AfterQuery(context.Context, *bun.QueryEvent) {}

func TestTrim_ConcurrentStartSurvives(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db")
	s, err := NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	other, err := NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("NewStoreFromDSN second handle failed: %v", err)
	}
	t.Cleanup(func() { _ = other.Close() })

	ctx := context.Background()
	hostID := mustCreateHost(t, s, testHost("web"))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := s.RecordStart(ctx, hostID, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordStart: %v", err)
		}
	}

	hook := &startOnTrim{other: other, hostID: hostID, at: base.Add(time.Hour)}
	s.Bun().AddQueryHook(hook)
	if _, err := s.Trim(ctx, hostID, 2); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}
	if hook.err != nil || hook.runID == "" {
		t.Fatalf("concurrent RecordStart: id=%q err=%v", hook.runID, hook.err)
	}

	runs, err := other.ListRunsForHost(ctx, hostID, 0)
	if err != nil {
		t.Fatalf("ListRunsForHost: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("left %d runs, want 2", len(runs))
	}
	if runs[0].ID != hook.runID || runs[0].Status != model.StatusRunning {
		t.Fatalf("newest run %s (%s) missing after trim, got %+v", hook.runID, model.StatusRunning, runs[0])
	}
	if err := other.RecordFinish(ctx, hook.runID, model.StatusSuccess, 1, "", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("RecordFinish of concurrent run: %v", err)
	}
}

func TestListRunsLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreateHost(t, s, testHost("a"))
	b := mustCreateHost(t, s, testHost("b"))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		if _, err := s.RecordStart(ctx, a, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordStart: %v", err)
		}
		if _, err := s.RecordStart(ctx, b, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordStart: %v", err)
		}
	}
	perHost, err := s.ListRunsForHost(ctx, a, 0)
	if err != nil {
		t.Fatalf("ListRunsForHost: %v", err)
	}
	if len(perHost) != DefaultHostHistoryLimit {
		t.Errorf("per-host default limit: got %d", len(perHost))
	}
	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != DefaultHistoryLimit {
		t.Errorf("global default limit: got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.After(all[i-1].StartedAt) {
			t.Fatalf("runs not newest first at %d", i)
		}
	}
	few, _ := s.ListRuns(ctx, 5)
	if len(few) != 5 {
		t.Errorf("explicit limit: got %d", len(few))
	}
}

func TestExport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateHost(t, s, testHost("x"))
	if _, err := s.RecordStart(ctx, id, time.Now()); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	exp, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(exp.Hosts) != 1 || len(exp.Runs) != 1 || exp.Runs[0].HostName != "x" {
		t.Fatalf("unexpected export: %+v", exp)
	}
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"FOREIGN KEY constraint failed", ErrForeignKey},
		{"UNIQUE constraint failed: hosts.id", ErrDuplicate},
		{"Error 1062: Duplicate entry 'x' for key 'PRIMARY'", ErrDuplicate},
		{"ERROR: insert or update violates foreign key constraint (SQLSTATE 23503)", ErrForeignKey},
	}
	for _, tt := range tests {
		if got := MapDBError(errors.New(tt.msg)); !errors.Is(got, tt.want) {
			t.Errorf("MapDBError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	plain := errors.New("disk I/O error")
	if MapDBError(plain) != plain {
		t.Errorf("unrelated errors must pass through")
	}
	if MapDBError(nil) != nil {
		t.Errorf("nil must stay nil")
	}
}
