// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database housekeeping",
	}
	cmd.AddCommand(newDBMaintainCmd(a))
	return cmd
}

func newDBMaintainCmd(a *app) *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:  `Runs engine-specific maintenance tasks (PRAGMA optimize and VACUUM on SQLite, VACUUM ANALYZE on PostgreSQL, OPTIMIZE TABLE on MySQL).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeoutSec < 0 {
				return errors.New("--timeout must not be negative")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeoutSec > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
				defer cancel()
			}
			if err := st.Maintain(ctx); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("maintenance timed out after %ds", timeoutSec)
				}
				return fmt.Errorf("maintenance failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Maintenance completed successfully")
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "timeout in seconds for maintenance (0 means no timeout)")
	return cmd
}
