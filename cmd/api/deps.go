package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"finledger/internal/domain/ledger"
	"finledger/internal/infrastructure/amqp"
	"finledger/internal/infrastructure/memory"
	"finledger/internal/infrastructure/postgres"
	httphandlers "finledger/internal/interfaces/http"
	"finledger/internal/interfaces/scheduler"
	"finledger/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB        *postgres.DB
	Publisher *amqp.Publisher
	Engine    *ledger.Engine

	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler
	CardHandler        *httphandlers.CardHandler
	InvoiceHandler     *httphandlers.InvoiceHandler
	InstallmentHandler *httphandlers.InstallmentHandler
	HealthHandler      *httphandlers.HealthHandler

	log zerolog.Logger
}

// NewDependencies opens the configured store and event publisher and builds
// the ledger engine and its handlers.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{log: log}

	var uow ledger.UnitOfWork
	var ping func(context.Context) error

	switch cfg.Database.Backend {
	case config.BackendMemory:
		log.Warn().Msg("using the in-memory store; data is lost on restart")
		uow = memory.New()

	default:
		connStr := cfg.Database.ConnectionString()
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(connStr); err != nil {
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			version, dirty, err := postgres.MigrationVersion(connStr)
			if err != nil {
				return nil, err
			}
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("database schema up to date")
		}

		db, err := postgres.New(connStr)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.DBName).Msg("connected to database")

		uow = postgres.NewUnitOfWork(db, cfg.Database.MaxRetries, log)
		ping = db.PingContext
	}

	var publisher ledger.EventPublisher
	if cfg.AMQP.Enabled {
		p, err := amqp.NewPublisher(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.ConnectAttempts, log)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		deps.Publisher = p
		publisher = p
	}

	engine := ledger.New(ledger.Deps{
		UnitOfWork:       uow,
		Publisher:        publisher,
		Logger:           log,
		SweepConcurrency: cfg.Ledger.MaintenanceConcurrency,
	})
	deps.Engine = engine

	deps.AccountHandler = httphandlers.NewAccountHandler(engine.Accounts)
	deps.TransactionHandler = httphandlers.NewTransactionHandler(engine.Transactions)
	deps.CardHandler = httphandlers.NewCardHandler(engine.Cards, engine.Limits)
	deps.InvoiceHandler = httphandlers.NewInvoiceHandler(engine.Invoices, engine.Payments)
	deps.InstallmentHandler = httphandlers.NewInstallmentHandler(engine.Installments)
	deps.HealthHandler = httphandlers.NewHealthHandler(ping)

	return deps, nil
}

// NewScheduler builds the invoice maintenance scheduler, or returns nil when
// scheduling is disabled.
func NewScheduler(cfg *config.Config, deps *Dependencies, log zerolog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		log.Info().Msg("scheduler is disabled")
		return nil, nil
	}

	now := func() time.Time { return time.Now().UTC() }
	return scheduler.New(scheduler.Config{
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		WorkerCount:   cfg.Scheduler.WorkerCount,
		JobDelay:      cfg.Scheduler.JobDelay,
		QueueSize:     cfg.Scheduler.QueueSize,
		RunOnStartup:  cfg.Scheduler.RunOnStartup,
		JobProvider:   scheduler.MaintenanceJobs(deps.Engine.Invoices, now, log),
		Now:           now,
	}, log)
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			d.log.Error().Err(err).Msg("failed to close AMQP publisher")
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.log.Error().Err(err).Msg("failed to close database")
		}
	}
}
