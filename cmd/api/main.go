package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/config"
	appHTTP "github.com/cmlabs-hris/hrms-payroll-core/internal/handler/http"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/cron"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			AllowedOrigins: cfg.App.AllowedOrigins,
			Env:            cfg.App.Env,
			Version:        version,
			LogLevel:       cfg.SlogLevel(),
		},
		appHTTP.NewEmploymentHandler(a.Employment),
		appHTTP.NewProbationHandler(a.Probation),
		appHTTP.NewPayrollHandler(a.Payroll),
	)

	// Daily probation transitions
	var scheduler *cron.Scheduler
	if cfg.Scheduler.Enabled {
		loc, err := time.LoadLocation(cfg.Scheduler.Location)
		if err != nil {
			logger.Error("invalid scheduler timezone", "timezone", cfg.Scheduler.Location, "error", err)
			os.Exit(1)
		}
		scheduler = cron.NewScheduler(ctx)
		cron.NewProbationJobs(a.Probation, cfg.Scheduler.TickInterval, loc).RegisterJobs(scheduler)
		scheduler.Start()
		logger.Info("scheduler started", "jobs", scheduler.Jobs(), "timezone", loc.String())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
