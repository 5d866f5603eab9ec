package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/collector"
	"github.com/japanese-wolf/brain-stream/internal/config"
	"github.com/japanese-wolf/brain-stream/internal/logger"
	"github.com/japanese-wolf/brain-stream/internal/scheduler"
	"github.com/japanese-wolf/brain-stream/internal/server"
)

// NewServeCmd creates the serve command: the long-running hub process with
// the HTTP API and the background collection scheduler.
func NewServeCmd() *cobra.Command {
	var (
		port         int
		host         string
		noScheduler  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub: HTTP API plus the background collector",
		Long: `Start the brainstream server.

The server exposes the JSON API (feed, articles, actions, topology,
sources, collection trigger, trending) and, unless disabled, a background
scheduler that collects from every source on a fixed interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, noScheduler)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 3000)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 127.0.0.1)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "disable the background collection scheduler")

	return cmd
}

func runServe(ctx context.Context, port int, host string, noScheduler bool) error {
	cfg := config.Get()

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && !noScheduler {
		sched = scheduler.New(cfg.FetchInterval(), cfg.Scheduler.RunOnStart, func() {
			runCtx := context.Background()
			if _, err := a.collector.CollectAll(runCtx, collector.Options{}); err != nil {
				// The scheduler never propagates run failures; the next
				// tick gets a fresh chance.
				logger.Error("scheduled collection failed", err)
			}
		})
		sched.Start()
	}

	srv := server.New(serverCfg, cfg.Feed, server.Deps{
		Topology:  a.topo,
		Selector:  a.selector,
		Collector: a.collector,
		Registry:  a.registry,
		State:     a.stateStore,
		Trending:  a.trending,
		Scheduler: sched,
		TechStack: cfg.Profile.TechStack,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr())
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err().Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler did not stop cleanly", "error", err.Error())
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
