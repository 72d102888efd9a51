package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fathima-sithara/tinytalk/internal/api"
	"github.com/fathima-sithara/tinytalk/internal/auth"
	"github.com/fathima-sithara/tinytalk/internal/handlers"
	"github.com/fathima-sithara/tinytalk/internal/metrics"
	"github.com/fathima-sithara/tinytalk/internal/middleware"
	"github.com/fathima-sithara/tinytalk/internal/present"
	"github.com/fathima-sithara/tinytalk/internal/ws"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and presentation server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfgPath)
		},
	}
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, logger, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, cs, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gate, err := auth.New(cfg.App.PIN, []byte(cfg.Auth.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}
	m := metrics.New()

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.PerMinute, 10, logger)
	go limiter.Run()
	defer limiter.Stop()

	hub := ws.NewHub(func(onChange func(present.Snapshot)) *present.Machine {
		return present.NewMachine(svc, gate, present.Options{
			Calendar:          svc.Calendar(),
			Catalog:           svc.Catalog(),
			CountdownStep:     cfg.CountdownStep,
			SlideshowInterval: cfg.SlideshowInterval,
			Logger:            logger,
			OnChange:          onChange,
		})
	}, m, logger)

	opts := api.Options{
		BodyLimit:    int(cfg.Upload.MaxBytes) + 1<<20,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		AccessLog:    true,
		Limiter:      limiter.Handler(),
		Metrics:      m.Handler(),
		Presenter:    ws.NewHandler(hub, logger),
	}
	if cfg.Auth.RequireSession {
		opts.Session = middleware.RequireSession(gate)
	}
	app := api.NewServer(handlers.NewHandler(svc, gate, m, logger, cfg.Upload.MaxBytes), opts)

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Infof("starting tinytalk on %s", addr)
		errc <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Errorf("listen failed: %v", err)
			cs.run(context.Background())
			return err
		}
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	hub.Close()
	if err := app.ShutdownWithContext(timeoutCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	cs.run(timeoutCtx)
	logger.Info("shutdown completed")
	return nil
}
