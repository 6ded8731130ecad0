// Package app wires storage, services and front-ends into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/config"
	"github.com/fadedpez/wingo/internal/discord"
	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/api"
	wingodiscord "github.com/fadedpez/wingo/pkg/discord"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/repositories/archive"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/fadedpez/wingo/pkg/scheduler"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/outcome"
	"github.com/fadedpez/wingo/pkg/services/settlement"
	"github.com/fadedpez/wingo/pkg/services/statistics"
	"github.com/fadedpez/wingo/pkg/services/wallet"
)

// publishTimeout bounds each observer so a slow one cannot stall a sweep
const publishTimeout = 2 * time.Second

// App represents the running service and its dependencies
type App struct {
	config *config.Config
	logger *logging.Logger

	repo      ledger.Repository
	engine    *settlement.Engine
	hub       *api.Hub
	server    *api.Server
	bot       *wingodiscord.Bot
	scheduler *scheduler.Scheduler

	// optional integrations, nil when not configured
	amqp    *events.AMQPPublisher
	archive *archive.ElasticsearchArchive
	lease   *scheduler.RedisLease

	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
}

// New creates a new instance of App. Optional integrations that fail to
// connect are logged and skipped; storage failures are fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.Default
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		repo:      repo,
		hub:       api.NewHub(),
		scheduler: scheduler.NewScheduler(),
	}

	modes := cfg.Catalog.Modes()
	clock := period.NewClock(period.IST, cfg.Catalog.CloseThreshold)
	wallets := wallet.NewService(repo, cfg.Catalog.StartingBalance)
	bets := betting.NewService(repo, wallets, clock, modes, betting.Limits{
		MinStake: cfg.Catalog.MinStake,
		MaxStake: cfg.Catalog.MaxStake,
	})
	stats := statistics.NewService(repo)

	publishers := []events.Publisher{a.hub}

	if cfg.DiscordEnabled() {
		session, err := discord.NewSession(cfg.Token)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		a.bot = wingodiscord.NewBot(session, wingodiscord.Config{
			AppID:            cfg.AppID,
			GuildID:          cfg.GuildID,
			ResultsChannelID: cfg.ResultsChannel,
			CleanupCommands:  cfg.IsDevelopment(),
		}, wingodiscord.Deps{
			Betting:    bets,
			Wallets:    wallets,
			Results:    repo,
			Statistics: stats,
		})
		publishers = append(publishers, a.bot)
	}

	if cfg.AMQPURL != "" {
		if a.amqp, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
			logger.Warn("Message bus unavailable, continuing without it: %v", err)
		} else {
			publishers = append(publishers, a.amqp)
		}
	}

	if cfg.ElasticsearchURL != "" {
		esCfg := archive.DefaultConfig()
		esCfg.URL = cfg.ElasticsearchURL
		esCfg.ArchivePath = cfg.ArchivePath
		esCfg.RetentionPeriod = cfg.ArchiveRetention
		if a.archive, err = archive.NewElasticsearchArchive(esCfg); err != nil {
			logger.Warn("Round archive unavailable, continuing without it: %v", err)
		} else {
			publishers = append(publishers, a.archive)
		}
	}

	wrapped := make([]events.Publisher, 0, len(publishers))
	for _, p := range publishers {
		wrapped = append(wrapped, events.WithTimeout(p, publishTimeout))
	}

	a.engine = settlement.NewEngine(repo, outcome.NewGenerator(repo, outcome.NewMathRandSource()), clock,
		events.NewMulti(wrapped...), modes, settlement.WithLookBack(cfg.LookBack))

	a.server = api.NewServer(api.Deps{
		Betting:    bets,
		Wallets:    wallets,
		Store:      repo,
		Engine:     a.engine,
		Statistics: stats,
		Hub:        a.hub,
		AdminToken: cfg.AdminToken,
	})

	a.scheduleTasks(ctx)
	return a, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (ledger.Repository, error) {
	switch cfg.StorageType {
	case config.StorageMemory:
		return ledger.NewMemoryRepository(), nil
	case config.StoragePostgres:
		repo, err := ledger.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, nil
	default:
		repo, err := ledger.NewSQLiteRepository(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return repo, nil
	}
}

// scheduleTasks registers the sweep and, with an archive, index pruning.
// With Redis configured each run takes a lease so replicas do not overlap.
func (a *App) scheduleTasks(ctx context.Context) {
	opts := []scheduler.TaskOption{scheduler.WithTimeout(a.config.SweepTimeout)}

	if a.config.RedisAddr != "" {
		lease := scheduler.NewRedisLease(a.config.RedisAddr, a.config.RedisPassword)
		if err := lease.Ping(ctx); err != nil {
			a.logger.Warn("Redis unavailable, sweeping without a lease: %v", err)
			lease.Close()
		} else {
			a.lease = lease
			opts = append(opts, scheduler.WithLease(lease, a.config.SweepTimeout+a.config.SweepInterval))
		}
	}

	a.scheduler.AddSettlementSweep(a.engine, a.config.SweepInterval, opts...)

	if a.archive != nil {
		var pruneOpts []scheduler.TaskOption
		if a.lease != nil {
			pruneOpts = append(pruneOpts, scheduler.WithLease(a.lease, time.Hour))
		}
		a.scheduler.AddArchivePruning(a.archive, 24*time.Hour, pruneOpts...)
	}
}

// Start launches the hub, scheduler, HTTP API and chat bot
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		a.hub.Run(ctx)
	}()

	a.scheduler.Start(ctx)

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		if err := a.server.Start(a.config.HTTPAddr); err != nil {
			a.logger.Error("HTTP server stopped: %v", err)
		}
	}()

	if a.bot != nil {
		if err := a.bot.Start(); err != nil {
			return fmt.Errorf("failed to start Discord bot: %w", err)
		}
	}

	a.logger.Info("Wingo running with %d modes on %s storage", len(a.config.Catalog.Modes()), a.config.StorageType)
	return nil
}

// Shutdown gracefully shuts down the app
func (a *App) Shutdown() {
	if a.bot != nil {
		if err := a.bot.Stop(); err != nil {
			a.logger.Error("Error stopping Discord bot: %v", err)
		}
	}

	a.server.Stop()
	a.scheduler.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	// Wait for any ongoing operations to complete
	a.shutdownWg.Wait()

	var errs []error
	if a.amqp != nil {
		errs = append(errs, a.amqp.Close())
	}
	if a.lease != nil {
		errs = append(errs, a.lease.Close())
	}
	errs = append(errs, a.repo.Close())
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error releasing resources: %v", err)
	}
}

// Engine exposes the settlement engine for maintenance commands
func (a *App) Engine() *settlement.Engine {
	return a.engine
}

// Tasks lists the scheduled task names
func (a *App) Tasks() []string {
	return a.scheduler.Tasks()
}
