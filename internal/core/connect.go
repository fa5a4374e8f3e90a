// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/toeirei/cachesweep/internal/purge"
	"github.com/toeirei/cachesweep/internal/remote"
)

const (
	// TestConnectTimeout bounds connect plus handshake of a connectivity test.
	TestConnectTimeout = 8 * time.Second
	// TestOverallTimeout bounds the whole connectivity test.
	TestOverallTimeout = 12 * time.Second

	testMessageLimit = 300
)

// ConnResult is the outcome of a connectivity test.
type ConnResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// TestConnection logs into host id and runs `echo ok`. Failures are reported
// in the result; the error is only set when the host cannot be loaded.
// History is never written.
func (s *Service) TestConnection(ctx context.Context, id string) (ConnResult, error) {
	h, err := s.store.GetHost(ctx, id)
	if err != nil {
		return ConnResult{}, err
	}
	tctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()

	l := s.log.With("host_id", id)
	res, err := s.prober.Exec(tctx, purge.TargetFor(*h), []string{"echo", "ok"})
	switch {
	case err != nil && (remote.IsConnectionTimeoutError(err) || errors.Is(tctx.Err(), context.DeadlineExceeded)):
		l.Info("connection test timed out", "host", h.String())
		return ConnResult{Message: "Connection timed out"}, nil
	case err != nil:
		l.Info("connection test failed", "host", h.String(), "err", err)
		return ConnResult{Message: failureMessage(err.Error())}, nil
	case res.ExitCode == 0:
		return ConnResult{OK: true, Message: "Connection successful"}, nil
	default:
		l.Info("connection test failed", "host", h.String(), "exit_code", res.ExitCode)
		return ConnResult{Message: failureMessage(res.Stderr)}, nil
	}
}

func failureMessage(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > testMessageLimit {
		s = string(r[:testMessageLimit])
	}
	if s == "" {
		return "Connection refused or auth failed"
	}
	return s
}
