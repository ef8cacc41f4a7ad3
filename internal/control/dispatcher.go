// Package control wires the dispatch core together and manages its
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ledgerly/dispatch/internal/budget"
	"github.com/ledgerly/dispatch/internal/cache"
	"github.com/ledgerly/dispatch/internal/classify"
	"github.com/ledgerly/dispatch/internal/core/config"
	"github.com/ledgerly/dispatch/internal/core/worker"
	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/health"
	"github.com/ledgerly/dispatch/internal/infra/ocr"
	redisclient "github.com/ledgerly/dispatch/internal/infra/redis"
	"github.com/ledgerly/dispatch/internal/infra/storage"
	"github.com/ledgerly/dispatch/internal/infra/storage/memory"
	"github.com/ledgerly/dispatch/internal/infra/storage/postgres"
	"github.com/ledgerly/dispatch/internal/infra/webhook"
	"github.com/ledgerly/dispatch/internal/optimize"
	"github.com/ledgerly/dispatch/internal/retry"
)

// MigrationsDir is where goose finds the spend-ledger migrations,
// relative to the working directory.
const MigrationsDir = "migrations"

// Dispatcher is the main application struct managing the dispatch core
// lifecycle.
type Dispatcher struct {
	cfg        *config.AppConfig
	queue      *dispatch.Queue
	executor   *retry.Executor
	classifier *classify.Classifier
	optimizer  *optimize.Optimizer
	resCache   *cache.ResultCache
	usage      *budget.Monitor
	janitor    *worker.Janitor
	httpServer *health.Server
	grpcServer *health.GRPCServer

	redisClient *redisclient.Client
	db          *postgres.DB
	log         *slog.Logger

	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher with all dependencies initialized.
func NewDispatcher(cfg *config.AppConfig) (*Dispatcher, error) {
	log := slog.Default().With("component", "dispatcher")

	// 1. Cache store: Redis when configured, in-memory otherwise.
	var cacheStore cache.Store
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		cacheStore = redisclient.NewResultStore(redisClient)
		log.Info("using Redis result cache")
	} else {
		cacheStore = cache.NewMemoryStore()
		log.Info("using in-memory result cache")
	}

	// 2. Spend ledger: PostgreSQL when configured, in-memory otherwise.
	var spendRepo storage.SpendRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(MigrationsDir); err != nil {
			return nil, err
		}
		spendRepo = postgres.NewSpendRepo(db)
		log.Info("using PostgreSQL spend ledger")
	} else {
		spendRepo = memory.NewSpendRepo()
		log.Info("using in-memory spend ledger")
	}

	// 3. Core components.
	classifier := classify.NewClassifier()
	executor := retry.NewExecutor(classifier, retry.Config{
		MaxRetries:        cfg.Retry.MaxRetries,
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		Strategy:          classify.ExponentialBackoff,
		JitterPercent:     cfg.Retry.JitterPercent,
		FailureThreshold:  cfg.Retry.FailureThreshold,
		Cooldown:          cfg.Retry.Cooldown,
		HalfOpenSuccesses: cfg.Retry.HalfOpenSuccesses,
	})

	resCache := cache.NewResultCache(cacheStore, cfg.Cache.TTL, cfg.Optimizer.UnitCost)
	usage := budget.NewMonitor(spendRepo, cfg.Budget.DailyLimit)
	optimizer := optimize.NewOptimizer(resCache, usage, cfg.Optimizer)

	provider := ocr.NewClient(cfg.Provider)
	notifier := webhook.NewNotifier(10 * time.Second)
	queue := dispatch.NewQueue(provider, executor, resCache, usage, notifier, cfg.Queue)

	janitor := worker.NewJanitor(queue, spendRepo,
		cfg.Retention.JobRetention, cfg.Retention.LedgerRetention, cfg.Retention.SweepInterval)

	monitor := health.NewMonitor(resCache, queue, executor)
	httpServer := health.NewServer(monitor, queue, executor, classifier, cfg.Server.Port)
	grpcServer := health.NewGRPCServer(monitor, cfg.Server.GRPCPort)

	return &Dispatcher{
		cfg:         cfg,
		queue:       queue,
		executor:    executor,
		classifier:  classifier,
		optimizer:   optimizer,
		resCache:    resCache,
		usage:       usage,
		janitor:     janitor,
		httpServer:  httpServer,
		grpcServer:  grpcServer,
		redisClient: redisClient,
		db:          db,
		log:         log,
	}, nil
}

// Start launches the worker loop, janitor, and operational servers.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.queue.Start(runCtx)
	go d.janitor.Start(runCtx)

	go func() {
		d.log.Info("operational server listening", "port", d.cfg.Server.Port)
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("operational server failed", "error", err)
		}
	}()

	go func() {
		d.log.Info("grpc health server listening", "port", d.cfg.Server.GRPCPort)
		if err := d.grpcServer.Start(runCtx); err != nil {
			d.log.Error("grpc health server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the dispatcher down gracefully.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	var firstErr error
	if err := d.httpServer.Stop(ctx); err != nil {
		firstErr = err
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Queue exposes the job queue to API layers.
func (d *Dispatcher) Queue() *dispatch.Queue {
	return d.queue
}

// Optimizer exposes admission control to API layers.
func (d *Dispatcher) Optimizer() *optimize.Optimizer {
	return d.optimizer
}

// Executor exposes circuit status and manual reset.
func (d *Dispatcher) Executor() *retry.Executor {
	return d.executor
}
