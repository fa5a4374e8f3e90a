// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"strings"
)

// Executor runs one operation per connection: dial, run, close.
type Executor struct {
	Dialer Dialer
}

// NewExecutor returns an Executor using d.
func NewExecutor(d Dialer) *Executor {
	return &Executor{Dialer: d}
}

// Exec dials t and runs argv. ctx bounds the whole operation including the
// connect.
func (e *Executor) Exec(ctx context.Context, t Target, argv []string) (Result, error) {
	c, err := e.Dialer.Dial(ctx, t)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer func() { _ = c.Close() }()
	return c.Run(ctx, argv)
}

// PurgeSFTP dials t and removes the regular files below root. The outcome is
// reported in the same shape as a command run: one stdout line per removed
// file, one stderr line per failure, and exit code 1 when anything failed.
func (e *Executor) PurgeSFTP(ctx context.Context, t Target, root string) (Result, error) {
	c, err := e.Dialer.Dial(ctx, t)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer func() { _ = c.Close() }()
	n, diags, err := c.SFTPPurge(ctx, root)
	res := Result{
		Stdout: strings.Repeat("removed\n", n),
		Stderr: strings.Join(diags, "\n"),
	}
	if len(diags) > 0 {
		res.ExitCode = 1
	}
	if err != nil {
		res.ExitCode = -1
	}
	return res, err
}
