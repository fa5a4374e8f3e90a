// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"strings"
	"testing"

	"github.com/toeirei/cachesweep/internal/model"
)

// newTestStore opens an in-memory sqlite Store that is closed when the test ends.
func newTestStore(t *testing.T) *BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := NewStoreFromDSN("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testHost(name string) model.Host {
	return model.Host{
		Name:        name,
		Hostname:    name + ".example.com",
		Username:    "deploy",
		RemotePaths: []string{"/var/cache/app"},
		UseSudo:     true,
	}
}

func mustCreateHost(t *testing.T, s *BunStore, h model.Host) string {
	t.Helper()
	id, err := s.CreateHost(context.Background(), h)
	if err != nil {
		t.Fatalf("CreateHost failed: %v", err)
	}
	return id
}
