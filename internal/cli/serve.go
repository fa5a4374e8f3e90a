// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/toeirei/cachesweep/internal/api"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/logging"
	"github.com/toeirei/cachesweep/internal/metrics"
	"github.com/toeirei/cachesweep/internal/purge"
	"github.com/toeirei/cachesweep/internal/schedule"
)

// drainTimeout bounds how long shutdown waits for the scheduler and for
// on-demand clears that are still running.
const drainTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the clear scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("listen", "", "HTTP listen address (default \":5001\")")
	f.Bool("exclusive-runs", false, "skip a clear when one is already running for the same host")
	f.Int("max-parallel", 0, "maximum number of concurrent on-demand clears (default 8)")
	f.String("timezone", "", "time zone cron expressions are evaluated in (default local)")
}

// serve runs until SIGINT or SIGTERM.
func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.runServer(ctx, nil)
}

// runServer wires the store, engine, scheduler and API and serves on ln, or
// on the configured address when ln is nil, until ctx is done.
func (a *app) runServer(ctx context.Context, ln net.Listener) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	reg, gatherer := a.registry, a.gatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	rec := metrics.New(reg)

	loc, err := a.cfg.Scheduler.Location()
	if err != nil {
		return err
	}
	engine := a.newEngine(st, purge.WithObserver(rec))
	sched := schedule.New(engine,
		schedule.WithLocation(loc),
		schedule.WithOnChange(rec.SetTriggers),
	)
	svc := core.NewService(st, engine,
		core.WithScheduler(sched),
		core.WithMaxParallel(a.cfg.Engine.MaxParallel),
	)

	// A signal during startup still lets the triggers load; Serve then
	// returns straight away.
	if _, err := sched.ResyncAll(context.WithoutCancel(ctx), st); err != nil {
		return fmt.Errorf("install schedules: %w", err)
	}
	sched.Start()

	srv := api.NewServer(svc, api.Options{
		AdminPIN: a.cfg.AdminPIN,
		Logger:   logging.Component("http"),
		Metrics:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		DB:       st.Bun(),
	})
	if a.cfg.AdminPIN == "" {
		logging.Warnf("no admin PIN configured; host changes over HTTP are not protected")
	}

	if ln == nil {
		err = srv.ListenAndServe(ctx, a.cfg.HTTP.Listen)
	} else {
		err = srv.Serve(ctx, ln)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if serr := sched.Stop(drainCtx); serr != nil {
		logging.Warnf("scheduler did not stop cleanly: %v", serr)
	}
	if cerr := svc.Close(drainCtx); cerr != nil {
		logging.Warnf("on-demand clears still running at shutdown: %v", cerr)
	}
	return err
}
