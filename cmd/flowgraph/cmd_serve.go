package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/flowgraph/internal/scheduler"
	"github.com/rendis/flowgraph/internal/server"
	flowmcp "github.com/rendis/flowgraph/pkg/mcp"
)

// sweepInterval is how often idle debug sessions are reaped.
const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduler and debug session reaper",
	Long: "Serve runs the HTTP API, the cron scheduler and the debug session reaper\n" +
		"until interrupted. --mcp also serves the agent tools over stdio. SIGHUP\n" +
		"reloads the --seed directory.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr string
	serveSeed string
	serveMCP  bool
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", "", "listen address (overrides FLOWGRAPH_LISTEN_ADDR)")
	f.StringVar(&serveSeed, "seed", "", "directory of workflow files to load at startup")
	f.BoolVar(&serveMCP, "mcp", false, "also serve MCP tools on stdin/stdout")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	logger := newLogger(cfg.LogLevel, true)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	defer a.Close()

	if serveSeed != "" {
		if err := a.seed(ctx, serveSeed); err != nil {
			return err
		}
	}

	sched := scheduler.NewScheduler(st, a.engine, scheduler.Config{
		Pool:   scheduler.NewPool(cfg.PoolSize),
		Hub:    a.hub,
		Logger: logger,
	})
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("recover missed schedules", slog.Any("error", err))
	}

	api := server.NewServer(server.Deps{
		Engine:    a.engine,
		Debugger:  a.debugger,
		Store:     st,
		Validator: a.validator,
		Scheduler: sched,
		Hub:       a.hub,
		Logger:    logger,
		Version:   version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(gctx, cfg.ListenAddr)
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sched.Stop()
	})
	g.Go(func() error {
		return a.debugger.Run(gctx, sweepInterval)
	})
	g.Go(func() error {
		return a.reloadOnHangup(gctx)
	})
	if serveMCP {
		mcpSrv := flowmcp.NewFlowServer(flowmcp.FlowServerDeps{
			Engine:    a.engine,
			Debugger:  a.debugger,
			Store:     st,
			Validator: a.validator,
			Hub:       a.hub,
			Logger:    logger,
			Version:   version,
		})
		g.Go(func() error {
			return mcpSrv.Serve(gctx)
		})
	}

	logger.Info("flowgraph started",
		slog.String("version", version),
		slog.String("addr", cfg.ListenAddr),
		slog.String("db", cfg.DBPath),
		slog.Bool("mcp", serveMCP))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("flowgraph stopped")
	return nil
}

// seed loads every workflow file under dir, then validates the stored set so
// that definitions may reference each other regardless of file order.
func (a *app) seed(ctx context.Context, dir string) error {
	workflows, err := loadWorkflowPaths([]string{dir})
	if err != nil {
		return err
	}
	if err := seedStore(ctx, a.store, workflows); err != nil {
		return err
	}
	for _, wf := range workflows {
		result := a.validator.Validate(ctx, wf)
		for _, w := range result.Warnings {
			a.logger.Warn("seed workflow warning",
				slog.String("workflow_id", wf.ID),
				slog.String("path", w.Path),
				slog.String("message", w.Message))
		}
		if err := result.ToError(); err != nil {
			return fmt.Errorf("seed workflow %s: %w", wf.ID, err)
		}
	}
	a.logger.Info("workflows seeded", slog.String("dir", dir), slog.Int("count", len(workflows)))
	return nil
}

// reloadOnHangup re-seeds on SIGHUP until ctx is done.
func (a *app) reloadOnHangup(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if serveSeed == "" {
				a.logger.Info("SIGHUP ignored: no seed directory")
				continue
			}
			if err := a.seed(ctx, serveSeed); err != nil {
				a.logger.Error("reload seed", slog.Any("error", err))
			}
		}
	}
}
