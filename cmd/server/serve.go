package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/api"
	"github.com/garnizeh/medequip/internal/jobs"
	"github.com/garnizeh/medequip/internal/metrics"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/pkg/ollama"
)

const (
	shutdownTimeout    = 30 * time.Second
	modelProbeTimeout  = 5 * time.Second
	writeTimeoutMargin = 5 * time.Second
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  c.runServe,
	}
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.logger.Info("starting medequip server", zap.String("version", version), zap.String("build_time", buildTime))

	h, err := openStore(ctx, c.cfg.Store, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.close(context.Background()); err != nil {
			c.logger.Warn("close store", zap.Error(err))
		}
	}()

	m := metrics.New()
	deps, err := c.serviceDeps(h.store, m)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := openSessions(ctx, c.cfg.Redis, c.logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	model, err := ollama.NewDefaultClient(c.cfg.Ollama, ollama.WithLogger(c.logger))
	if err != nil {
		return err
	}
	defer model.Close()

	probeCtx, cancel := context.WithTimeout(ctx, modelProbeTimeout)
	if err := model.Health(probeCtx); err != nil {
		c.logger.Warn("language model not reachable, assistant requests will fail until it is", zap.Error(err))
	}
	cancel()

	handler := api.SetupRoutes(api.Deps{
		Config:      c.cfg,
		Equipment:   service.NewEquipmentService(deps),
		Maintenance: service.NewMaintenanceService(deps),
		Reports:     service.NewFailureReportService(deps),
		Assistant:   service.NewAssistantService(deps, model, sessions, c.cfg.Assistant),
		Taxonomy:    deps.Taxonomy,
		Store:       h.store,
		Metrics:     m,
		Logger:      c.logger,
		Version:     version,
		BuildTime:   buildTime,
	})

	scheduler, err := c.scheduler(ctx, h)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         c.cfg.Addr,
		Handler:      handler,
		ReadTimeout:  c.cfg.APITimeout,
		WriteTimeout: max(c.cfg.APITimeout, c.cfg.Assistant.Timeout+writeTimeoutMargin),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("server listening", zap.String("addr", c.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	c.logger.Info("server exited")
	return nil
}

// scheduler registers the periodic snapshot task. It only applies to the
// sqlite driver and stays idle when no interval is configured.
func (c *cli) scheduler(ctx context.Context, h *storeHandle) (*jobs.Scheduler, error) {
	s := jobs.NewScheduler(jobs.WithLogger(c.logger))
	if h.conn == nil || c.cfg.Backup.Interval <= 0 {
		return s, nil
	}

	m, err := c.backupManager(ctx, h.conn)
	if err != nil {
		return nil, err
	}
	s.Add(jobs.Task{
		Name:        "backup",
		Interval:    c.cfg.Backup.Interval,
		MaxAttempts: 3,
		Run: func(ctx context.Context) error {
			_, err := m.Run(ctx)
			return err
		},
	})
	return s, nil
}
