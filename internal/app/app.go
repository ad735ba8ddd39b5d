// Package app assembles repositories, engines and services from configuration
// for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/config"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/repository/postgresql"
	allocationService "github.com/cmlabs-hris/hrms-payroll-core/internal/service/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/calculator"
	employmentService "github.com/cmlabs-hris/hrms-payroll-core/internal/service/employment"
	payrollService "github.com/cmlabs-hris/hrms-payroll-core/internal/service/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/probation"
	settingsService "github.com/cmlabs-hris/hrms-payroll-core/internal/service/settings"
	"github.com/redis/go-redis/v9"
)

// App holds the wired object graph
type App struct {
	Config *config.Config
	DB     *database.DB

	Employments    employment.Repository
	FundingSources fundingsource.Repository
	Settings       settings.Repository
	Outbox         kafka.OutboxRepository

	Allocations *allocationService.Engine
	Probation   *probation.Engine
	Payroll     *payrollService.Generator
	Employment  *employmentService.Service

	redis *redis.Client
}

// New connects to PostgreSQL (and Redis when configured) and wires every
// service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: db}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.redis, cfg.Payroll.LockTTL)
		slog.Info("employment lock backed by redis", "addr", cfg.Redis.Addr)
	} else {
		locker = lock.NewLocalLocker()
		slog.Warn("REDIS_ADDR not set, employment lock is process-local")
	}

	convention, err := calculator.ParseConvention(cfg.Payroll.TaxAnnualization)
	if err != nil {
		a.Close()
		return nil, err
	}

	tx := postgresql.NewTxManager(db)
	a.Employments = postgresql.NewEmploymentRepository(db)
	a.FundingSources = postgresql.NewFundingSourceRepository(db)
	a.Settings = postgresql.NewSettingsRepository(db)
	a.Outbox = postgresql.NewOutboxRepository(db)
	allocationRepo := postgresql.NewAllocationRepository(db)
	probationEventRepo := postgresql.NewProbationEventRepository(db)
	payrollRepo := postgresql.NewPayrollRepository(db)

	a.Allocations = allocationService.NewEngine(tx, allocationRepo, a.FundingSources, locker, allocationService.Options{
		FTETolerance: cfg.Payroll.FTETolerance,
		AmountScale:  cfg.Payroll.AmountScale,
	})
	a.Probation = probation.NewEngine(tx, a.Employments, probationEventRepo, a.Allocations, allocationRepo, a.Outbox, locker,
		probation.WithWorkers(cfg.Payroll.TransitionWorkers))
	a.Payroll = payrollService.NewGenerator(tx, a.Employments, allocationRepo, a.FundingSources, payrollRepo,
		settingsService.NewService(a.Settings), a.Outbox, locker, payrollService.NewBatchRegistry(cfg.Payroll.BatchRetention), payrollService.Options{
			Convention:             convention,
			ThirteenthMonthAccrual: cfg.Payroll.ThirteenthMonthAccrual,
			Workers:                cfg.Payroll.BatchWorkers,
			AmountScale:            cfg.Payroll.AmountScale,
		})
	a.Employment = employmentService.NewService(a.Employments, allocationRepo, a.Allocations, a.Probation)

	return a, nil
}

// Close releases the database pool and Redis client
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	a.DB.Close()
}

// NewLogger installs a JSON slog handler at the configured level as default
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).With(
		slog.String("app", "hrms-payroll-core"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)
	return logger
}
