// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/model"
)

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <id>",
		Short: "Clear a host's cache paths now and wait for the result",
		Long: `Runs one clear against the host in the foreground and prints the
history row it produced. The command exits non-zero when the run failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			id := args[0]
			h, err := st.GetHost(ctx, id)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("host %s not found", id)
				}
				return err
			}

			a.newEngine(st).RunClear(ctx, id)

			runs, err := st.ListRunsForHost(ctx, id, 1)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("no run was recorded for %s", h.Name)
			}
			run := runs[0]
			printRun(cmd.OutOrStdout(), h.Name, run)
			if run.Status != model.StatusSuccess {
				return fmt.Errorf("clear of %s finished with status %s", h.Name, run.Status)
			}
			return nil
		},
	}
}

func printRun(w io.Writer, name string, run model.ClearRun) {
	files := 0
	if run.FilesDeleted != nil {
		files = *run.FilesDeleted
	}
	_, _ = fmt.Fprintf(w, "%s: %s, %d file(s) deleted in %s\n", name, run.Status, files, run.Duration().Round(time.Millisecond))
	if run.Message != nil && *run.Message != "" {
		_, _ = fmt.Fprintln(w, *run.Message)
	}
}

func newTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Check that a host accepts an SSH login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			res, err := a.newService(st).TestConnection(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("host %s not found", args[0])
				}
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.OK {
				return errors.New("connection test failed")
			}
			return nil
		},
	}
}
