// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/model"
	"golang.org/x/term"
)

func newHostsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage the host registry",
	}
	cmd.AddCommand(newHostsListCmd(a), newHostsAddCmd(a), newHostsRmCmd(a), newHostsImportCmd(a))
	return cmd
}

func newHostsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered hosts with their latest run",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			hosts, err := st.ListHosts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hosts) == 0 {
				_, _ = fmt.Fprintln(out, "No hosts registered.")
				return nil
			}
			rows := make([][]string, 0, len(hosts))
			for _, h := range hosts {
				rows = append(rows, []string{
					h.ID, h.Name, h.Username + "@" + h.Hostname + ":" + strconv.Itoa(h.Port),
					h.Group, orDash(h.Schedule), strings.Join(h.RemotePaths, ", "), lastRun(h),
				})
			}
			_, _ = fmt.Fprintln(out, renderTable([]string{"ID", "NAME", "TARGET", "GROUP", "SCHEDULE", "PATHS", "LAST RUN"}, rows))
			return nil
		},
	}
}

func lastRun(h model.HostSummary) string {
	if h.LastStatus == nil || h.LastRun == nil {
		return "-"
	}
	s := string(*h.LastStatus) + " " + h.LastRun.Local().Format("2006-01-02 15:04")
	if h.LastFilesDeleted != nil {
		s += fmt.Sprintf(" (%d files)", *h.LastFilesDeleted)
	}
	return s
}

func newHostsAddCmd(a *app) *cobra.Command {
	var (
		in     core.HostInput
		noSudo bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a host",
		Long: `Registers a host profile. Each --path is a remote directory whose
contents are deleted on every clear; repeat the flag for several paths.

Example:
  cachesweep hosts add --name web1 --hostname web1.example.com --user deploy \
    --path /var/cache/nginx --schedule "0 3 * * *" --keep-last 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("no-sudo") {
				sudo := !noSudo
				in.UseSudo = &sudo
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			id, err := a.newService(st).CreateHost(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered host %s (%s)\n", in.Name, id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "display name (required)")
	f.StringVar(&in.Hostname, "hostname", "", "DNS name or address (required)")
	f.IntVar(&in.Port, "port", model.DefaultPort, "SSH port")
	f.StringVar(&in.Username, "user", "", "SSH login (required)")
	f.StringVar(&in.SSHKey, "key", "", "private key path (default "+model.DefaultKeyPath+")")
	f.StringVar(&in.Group, "group", "", "free-form group label")
	f.StringArrayVar(&in.RemotePaths, "path", nil, "remote directory to empty (repeatable, required)")
	f.StringVar(&in.Schedule, "schedule", "", "5-field crontab expression (day of week 0 is Sunday); empty disables scheduling")
	f.IntVar(&in.KeepLast, "keep-last", 0, "history rows to keep per host; 0 keeps all")
	f.StringVar(&in.Transport, "transport", string(model.TransportSSH), "purge transport: ssh or sftp")
	f.BoolVar(&noSudo, "no-sudo", false, "run the purge without sudo")
	return cmd
}

func newHostsRmCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a host and its history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			id := args[0]
			h, err := st.GetHost(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("host %s not found", id)
				}
				return err
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Delete %s and all of its history? [y/N] ", h))
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			if err := a.newService(st).DeleteHost(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted host %s\n", h.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks prompt on out and reads one answer from in. Reading from a
// non-terminal stdin is refused so scripts must pass --yes.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, errors.New("refusing to prompt on non-interactive input; pass --yes")
	}
	_, _ = fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newHostsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Register hosts from a YAML file or a history export",
		Long: `Registers every host listed in file. A file ending in .zst is read as a
history export written by 'cachesweep history export'; anything else is read
as YAML, either a list of hosts or a mapping with a 'hosts' key.

Import stops at the first invalid host. Hosts before it stay registered.

Schedules are crontab(5) expressions: day of week 0 is Sunday, and a day
matching either a restricted day of month or a restricted day of week fires.
Schedules carried over from an APScheduler deployment, where 0 is Monday and
both fields must match, need rewriting before import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readHostFile(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ids, err := a.newService(st).ImportHosts(cmd.Context(), inputs)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d host(s)\n", len(ids), len(inputs))
			return err
		},
	}
}

func readHostFile(path string) ([]core.HostInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if strings.HasSuffix(path, ".zst") {
		data, err := core.ReadExport(f)
		if err != nil {
			return nil, fmt.Errorf("read export %s: %w", path, err)
		}
		return core.InputsFromExport(data), nil
	}
	inputs, err := core.ParseHostsYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return inputs, nil
}
