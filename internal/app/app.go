package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"EBMS/internal/config"
	"EBMS/internal/infrastructure/metrics"
	"EBMS/internal/infrastructure/notify"
	"EBMS/internal/infrastructure/pubmed"
	"EBMS/internal/infrastructure/scheduler"
	"EBMS/internal/infrastructure/storage"
	"EBMS/internal/interface/rest"
	"EBMS/internal/logging"
	"EBMS/internal/ports"
	"EBMS/internal/source"
	"EBMS/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *storage.Repository
	metrics *metrics.Collector

	Ledger    *usecase.Ledger
	Queues    *usecase.Queues
	Packets   *usecase.Packets
	Importer  *usecase.Importer
	Refresher *usecase.Refresher

	handler *rest.Handler
}

// New opens the database and builds every use case against it.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	collector := metrics.NewCollector("ebms")
	terms := usecase.NewVocabulary(repo, cfg.Cache.TermsTTL)
	ledger := usecase.NewLedger(usecase.LedgerDeps{
		Ledger:    repo,
		Terms:     terms,
		Observers: []ports.StateObserver{collector},
		Logger:    baseLogger.With("component", "ledger"),
	})

	eutils := pubmed.NewClient(pubmed.ClientConfig{
		BaseURL:           cfg.PubMed.BaseURL,
		APIKey:            cfg.PubMed.APIKey,
		Tool:              cfg.PubMed.Tool,
		Email:             cfg.PubMed.Email,
		RequestsPerSecond: cfg.PubMed.RequestsPerSecond,
		MaxTries:          cfg.PubMed.MaxTries,
		InitialBackoff:    cfg.PubMed.InitialBackoff,
		HTTPClient:        &http.Client{Timeout: cfg.PubMed.Timeout},
		Logger:            baseLogger.With("component", "source.eutils"),
	})

	registry := source.NewRegistry()
	registry.Register(eutils)
	registry.Register(pubmed.NewRepoSource(cfg.PubMed.RepoBase, baseLogger.With("component", "source.repo")))
	records := source.NewStrategySource(registry, cfg.PubMed.Sources, baseLogger.With("component", "source"))

	importer := usecase.NewImporter(usecase.ImporterDeps{
		Catalog:  repo,
		Articles: repo,
		Ledger:   ledger,
		Source:   records,
		Logger:   baseLogger.With("component", "importer"),
	})

	refresherDeps := usecase.RefresherDeps{
		Articles:  repo,
		Importer:  importer,
		Changes:   eutils,
		Revisions: eutils,
		Host:      cfg.Notifications.Host,
		UserID:    cfg.PubMed.RefreshUserID,
		Days:      cfg.PubMed.StaleDays,
		Logger:    baseLogger.With("component", "refresh"),
	}
	if len(cfg.Notifications.URLs) > 0 {
		mailer, err := notify.NewMailer(cfg.Notifications.URLs, cfg.Notifications.Timeout, baseLogger.With("component", "mailer"))
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		refresherDeps.Notifier = mailer
	}

	a := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		metrics:   collector,
		Ledger:    ledger,
		Queues:    usecase.NewQueues(usecase.QueueDeps{Catalog: repo, Ledger: repo, Terms: terms}),
		Packets:   usecase.NewPackets(usecase.PacketDeps{Catalog: repo, Ledger: repo, Packets: repo, Terms: terms, Logger: baseLogger.With("component", "packets")}),
		Importer:  importer,
		Refresher: usecase.NewRefresher(refresherDeps),
	}
	a.handler = rest.NewHandler(rest.HandlerDeps{
		Ledger:    a.Ledger,
		Queues:    a.Queues,
		Packets:   a.Packets,
		Importer:  a.Importer,
		Refresher: a.Refresher,
		Metrics:   collector.Handler(),
		Observer:  collector,
		Health:    repo.Ping,
		Logger:    baseLogger.With("component", "http"),
	})
	return a, nil
}

// Close releases the database.
func (a *Application) Close() error {
	return a.repo.Close()
}

// Migrate creates the schema and installs the state vocabulary.
func (a *Application) Migrate(ctx context.Context) error {
	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}
	return a.repo.SeedStates(ctx)
}

// Handler exposes the HTTP API without starting a listener.
func (a *Application) Handler() http.Handler {
	return a.handler.NewEcho()
}

// Serve runs the HTTP API and, when enabled, the stale-article refresh until ctx ends.
func (a *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Listen,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	var jobs *usecase.Scheduler
	if a.cfg.Scheduler.Enabled {
		driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.Schedule, a.cfg.Scheduler.Location())
		if err != nil {
			return err
		}
		jobs = usecase.NewScheduler(driver, a.Refresher, a.logger.With("component", "scheduler"))
	}

	g, gctx := errgroup.WithContext(ctx)
	if jobs != nil {
		if err := jobs.Start(gctx); err != nil {
			return err
		}
		a.logger.Info("scheduled refresh enabled", "schedule", a.cfg.Scheduler.Schedule)
	}
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if jobs != nil {
			if err := jobs.Stop(shutdownCtx); err != nil {
				a.logger.Warn("stop scheduler", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *Application) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
