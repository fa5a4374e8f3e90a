// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cli implements the cachesweep command line. Running the binary
// without a subcommand starts the server.
package cli // import "github.com/toeirei/cachesweep/internal/cli"

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/toeirei/cachesweep/internal/config"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/logging"
	"github.com/toeirei/cachesweep/internal/purge"
	"github.com/toeirei/cachesweep/internal/remote"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfgFile string
	verbose bool
	cfg     config.Config

	// registry and gatherer back the /metrics endpoint. Nil selects the
	// Prometheus defaults.
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// NewRootCmd builds a fresh command tree. Tests use it to run commands in
// isolation.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "cachesweep",
		Short: "cachesweep clears cache directories on remote hosts over SSH.",
		Long: `cachesweep keeps a registry of remote hosts and the cache directories
to empty on each of them. Clears run on a cron schedule or on demand, and
every run is recorded in a history ledger.

Running without a subcommand starts the HTTP API and the scheduler.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/cachesweep/cachesweep.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging, including SQL statements")
	pf.String("data-dir", "", "directory holding the default sqlite database")
	pf.String("db-type", "", "database type: sqlite, postgres or mysql")
	pf.String("dsn", "", "database connection string")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text, json or logfmt")
	addServeFlags(cmd)

	cmd.AddCommand(
		newServeCmd(a),
		newHostsCmd(a),
		newClearCmd(a),
		newTestCmd(a),
		newHistoryCmd(a),
		newDBCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup resolves the configuration and the logger for every command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd, a.configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
		db.SetDebug(true)
	}
	if err := logging.Setup(cmd.ErrOrStderr(), level, cfg.Log.Format); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// configPath returns the --config value when one was given.
func (a *app) configPath() *string {
	if strings.TrimSpace(a.cfgFile) == "" {
		return nil
	}
	return &a.cfgFile
}

// openStore connects to the configured database and applies migrations.
// The caller owns the returned store.
func (a *app) openStore() (*db.BunStore, error) {
	dbType, dsn := a.cfg.Database.Type, a.cfg.Database.DSN
	if dir := sqliteDir(dbType, dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	st, err := db.NewStoreFromDSN(dbType, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}
	return st, nil
}

// sqliteDir returns the directory a file-backed sqlite DSN lives in, or ""
// when there is nothing to create.
func sqliteDir(dbType, dsn string) string {
	if dbType != "sqlite" || dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// newEngine wires a clear engine against st using the real SSH transport.
func (a *app) newEngine(st *db.BunStore, extra ...purge.Option) *purge.Engine {
	opts := append([]purge.Option{purge.Exclusive(a.cfg.Engine.ExclusiveRuns)}, extra...)
	return purge.New(st, st, purge.NewRemoteRunner(remote.Dialer{}), opts...)
}

// newService wraps st in a host service without a scheduler. Changes made
// from the command line reach a running server on its next restart.
func (a *app) newService(st *db.BunStore, opts ...core.Option) *core.Service {
	opts = append([]core.Option{core.WithMaxParallel(a.cfg.Engine.MaxParallel)}, opts...)
	return core.NewService(st, a.newEngine(st), opts...)
}
