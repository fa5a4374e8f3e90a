// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pkg/sftp"
)

// SFTPPurge removes every regular file below root, leaving directories in
// place. It returns the number of files removed and one diagnostic line per
// failure. Missing paths produce a "No such file or directory" diagnostic.
// The returned error is only set when ctx ends before the walk completes.
func SFTPPurge(ctx context.Context, sc *sftp.Client, root string) (int, []string, error) {
	deleted := 0
	var diags []string
	walker := sc.Walk(root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return deleted, diags, err
		}
		if err := walker.Err(); err != nil {
			diags = append(diags, describeSFTPError(walker.Path(), err))
			continue
		}
		info := walker.Stat()
		if info == nil || !info.Mode().IsRegular() {
			continue
		}
		if err := sc.Remove(walker.Path()); err != nil {
			diags = append(diags, describeSFTPError(walker.Path(), err))
			continue
		}
		deleted++
	}
	return deleted, diags, nil
}

// SFTPPurge runs SFTPPurge over an sftp session on c.
func (c *Client) SFTPPurge(ctx context.Context, root string) (int, []string, error) {
	sc, err := c.SFTP()
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = sc.Close() }()

	type outcome struct {
		n     int
		diags []string
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		n, diags, err := SFTPPurge(ctx, sc, root)
		done <- outcome{n, diags, err}
	}()
	select {
	case <-ctx.Done():
		_ = c.ssh.Close()
		o := <-done
		return o.n, o.diags, ctx.Err()
	case o := <-done:
		return o.n, o.diags, o.err
	}
}

func describeSFTPError(path string, err error) string {
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) || strings.Contains(strings.ToLower(err.Error()), "no such file") {
		return fmt.Sprintf("sftp: '%s': No such file or directory", path)
	}
	return fmt.Sprintf("sftp: '%s': %v", path, err)
}
