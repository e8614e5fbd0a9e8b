package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/httpapi"
	"github.com/MimeLyc/subflow/internal/inbox"
	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type scheduler interface {
	Start(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var inboxDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue behind the HTTP API, optionally sweeping an inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(func(c *config.Config) {
				if addr != "" {
					c.HTTP.Addr = addr
				}
				if inboxDir != "" {
					c.Inbox.Dir = inboxDir
				}
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&inboxDir, "inbox", "", "Directory swept on the configured cron schedule")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	defaults, err := service.DefaultsFromConfig(cfg)
	if err != nil {
		return err
	}

	var (
		jobStore     jobs.Store
		pipelineOpts []service.PipelineOption
		serverOpts   = []httpapi.Option{httpapi.WithTargetLanguage(defaults.Target)}
	)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		jobStore = store
		pipelineOpts = append(pipelineOpts, service.WithCheckpoints(store))
		serverOpts = append(serverOpts, httpapi.WithJobDataStore(store))
	} else {
		log.Warn("No database configured, jobs are kept in memory only")
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close()
		pipelineOpts = append(pipelineOpts, service.WithCache(c))
	}

	pipeline := service.NewPipelineFromConfig(cfg, pipelineOpts...)
	queue := jobs.NewQueue(cfg.Queue.Workers, jobStore, jobs.WithMaxJobs(cfg.Queue.MaxJobs))
	queue.Start(pipeline.Executor(defaults))
	defer queue.Stop()

	var sched scheduler
	if cfg.Inbox.Dir != "" {
		sweeper, err := inbox.New(cfg.Inbox.Dir, cfg.Inbox.CronExpr, defaults.Target, cfg.Translate.OutputStyle, queue)
		if err != nil {
			return err
		}
		sched = sweeper
	}

	return runWithComponents(ctx, cfg.HTTP.Addr, sched, httpapi.NewServer(queue, serverOpts...))
}

// runWithComponents starts the scheduler and the HTTP server and blocks until
// ctx ends or the server fails.
func runWithComponents(ctx context.Context, addr string, sched scheduler, srv httpServer) error {
	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
