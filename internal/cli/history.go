// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/model"
)

// historyMessageWidth is where messages are cut in the history table.
const historyMessageWidth = 60

func newHistoryCmd(a *app) *cobra.Command {
	var (
		hostID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent clear runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var runs []model.ClearRun
			if hostID != "" {
				runs, err = st.ListRunsForHost(cmd.Context(), hostID, limit)
			} else {
				runs, err = st.ListRuns(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, historyRow(r))
			}
			_, _ = fmt.Fprintln(out, renderTable([]string{"STARTED", "HOST", "STATUS", "FILES", "DURATION", "MESSAGE"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&hostID, "host", "", "only show runs of this host id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs (default 50 per host, 100 overall)")
	cmd.AddCommand(newHistoryExportCmd(a))
	return cmd
}

func historyRow(r model.ClearRun) []string {
	host := r.HostName
	if host == "" {
		host = r.HostID
	}
	files, duration, msg := "-", "-", ""
	if r.FilesDeleted != nil {
		files = strconv.Itoa(*r.FilesDeleted)
	}
	if r.FinishedAt != nil {
		duration = r.Duration().Round(time.Second).String()
	}
	if r.Message != nil {
		msg = strings.Join(strings.Fields(*r.Message), " ")
		if len([]rune(msg)) > historyMessageWidth {
			msg = string([]rune(msg)[:historyMessageWidth-3]) + "..."
		}
	}
	return []string{
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		host, string(r.Status), files, duration, orDash(msg),
	}
}

func newHistoryExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [output-file]",
		Short: "Write hosts and run history to a zstd-compressed JSON file",
		Long: `Dumps every host and every recorded run into a single Zstandard-compressed
JSON file.

If an output file is specified, '.zst' is appended to the name if it is not already present.
If no output file is specified, 'cachesweep-history-YYYY-MM-DD.json.zst' is used.

The hosts in the file can be registered again with 'cachesweep hosts import'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFile := exportFileName(args, time.Now())

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			data, err := st.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			outf, err := os.Create(outputFile)
			if err != nil {
				return err
			}
			if err := core.WriteExport(cmd.Context(), data, outf); err != nil {
				_ = outf.Close()
				return fmt.Errorf("write %s: %w", outputFile, err)
			}
			if err := outf.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d host(s) and %d run(s) to %s\n",
				len(data.Hosts), len(data.Runs), outputFile)
			return nil
		},
	}
}

func exportFileName(args []string, now time.Time) string {
	if len(args) == 0 {
		return fmt.Sprintf("cachesweep-history-%s.json.zst", now.Format("2006-01-02"))
	}
	name := args[0]
	if !strings.HasSuffix(name, ".zst") {
		name += ".zst"
	}
	return name
}
