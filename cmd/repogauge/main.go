package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"repogauge/config"
	"repogauge/internal/analyzer"
	"repogauge/internal/api"
	"repogauge/internal/checkpoint"
	"repogauge/internal/export"
	"repogauge/internal/github"
	"repogauge/internal/models"
	"repogauge/internal/ratelimit"
	"repogauge/internal/scoring"
	"repogauge/internal/storage"
	"repogauge/internal/walker"
	"repogauge/pkg/cache"
	"repogauge/pkg/logger"
	"repogauge/pkg/metrics"
	"repogauge/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	owner := flag.String("owner", "", "account to scan (overrides config)")
	once := flag.Bool("once", false, "run a single scan and exit even when a schedule is configured")
	flag.Parse()

	// The .env file is optional.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *owner != "" {
		cfg.GitHub.Owner = *owner
	}

	log := logger.NewDefault("repogauge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal().Msg("startup failed")
	}
	defer app.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down, progress will be checkpointed")
		cancel()
	}()

	if app.server != nil {
		go func() {
			if err := app.server.Start(); err != nil {
				log.WithError(err).Error().Msg("API server stopped")
			}
		}()
	}

	if cfg.Scheduler.Enabled && !*once {
		runScheduled(ctx, cfg, app, log)
		return
	}

	if err := app.runScan(ctx); err != nil {
		log.WithError(err).Fatal().Msg("scan failed")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	return config.Default()
}

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	orch    *analyzer.Orchestrator
	store   *storage.PostgresStore
	indexer *export.Indexer
	server  *api.Server
	redis   *cache.RedisCache
	tracing *telemetry.TracerProvider
	spans   *spanObserver
}

func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(telemetry.TracerConfig{
			ServiceName:   cfg.Telemetry.ServiceName,
			ExporterType:  "otlp",
			OTLPEndpoint:  cfg.Telemetry.Endpoint,
			SamplingRatio: cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		a.tracing = tp
	}

	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.WithError(err).Warn().Msg("redis unavailable, continuing without cache")
		} else {
			a.redis = redisCache
		}
	}

	client := github.New(context.Background(), github.Config{
		Token:             cfg.GitHub.Token,
		RequestsPerSecond: cfg.GitHub.MaxRequestsPerSecond,
		PerPage:           cfg.GitHub.PerPage,
	}, a.redis, log)

	w := walker.New(client, walker.Config{
		ExcludedDirs: cfg.Scan.ExcludedDirs,
		MaxFileSize:  cfg.Scan.MaxFileSizeBytes,
	}, log)

	engine := scoring.NewEngine(scoringConfig(cfg))

	store := checkpoint.NewStore(cfg.Scan.CheckpointPath)

	tracker := ratelimit.New(client.RateStatus, cfg.Scan.RateThreshold, cfg.MaxRateWait(), log)

	var obs analyzer.Observer = metrics.NewMetrics()
	if a.tracing != nil {
		a.spans = newSpanObserver(a.tracing, obs)
		obs = a.spans
	}

	a.orch = analyzer.New(analyzer.Config{
		Owner:           cfg.GitHub.Owner,
		BatchSize:       cfg.Scan.BatchSize,
		Workers:         cfg.Scan.Workers,
		IncludeForks:    cfg.Scan.IncludeForks,
		IncludeArchived: cfg.Scan.IncludeArchived,
	}, client, w, engine, store, tracker, obs, log)

	if cfg.Database.Enabled {
		pgStore, err := storage.NewPostgresStore(storage.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Database,
			MaxConns: cfg.Database.MaxConnections,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.store = pgStore
	}

	if cfg.Elasticsearch.Enabled {
		indexer, err := export.NewIndexer(export.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Index:     cfg.Elasticsearch.Index,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to elasticsearch: %w", err)
		}
		a.indexer = indexer
	}

	if cfg.API.Enabled {
		var lister api.StatisticsLister
		if a.store != nil {
			lister = a.store
		}
		a.server = api.NewServer(api.Config{
			Addr:        cfg.API.Addr,
			EnableCORS:  true,
			BaseContext: ctx,
		}, a.orch, lister, log)
	}

	return a, nil
}

// scoringConfig maps configured thresholds onto the engine defaults.
func scoringConfig(cfg *config.Config) scoring.Config {
	sc := scoring.DefaultConfig()
	t := cfg.Thresholds
	if t.InactiveDays > 0 {
		sc.InactiveThresholdDays = t.InactiveDays
	}
	if t.LargeRepoLOC > 0 {
		sc.LargeRepoLOC = t.LargeRepoLOC
	}
	if t.LargeUntestedLOC > 0 {
		sc.LargeUntestedLOC = t.LargeUntestedLOC
	}
	if t.PopularStars > 0 {
		sc.PopularStars = t.PopularStars
	}
	if t.AbandonedStars > 0 {
		sc.AbandonedStars = t.AbandonedStars
	}
	if t.ManyOpenIssues > 0 {
		sc.ManyOpenIssues = t.ManyOpenIssues
	}
	if t.StaleAgeYears > 0 {
		sc.StaleAgeYears = t.StaleAgeYears
	}
	if t.LowTestRatio > 0 {
		sc.LowTestRatio = t.LowTestRatio
	}
	return sc
}

func runScheduled(ctx context.Context, cfg *config.Config, a *app, log *logger.Logger) {
	c := cron.New()
	_, err := c.AddFunc(cfg.Scheduler.Cron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 6*time.Hour)
		defer cancel()
		err := a.runScan(runCtx)
		switch {
		case errors.Is(err, analyzer.ErrRunInProgress):
			// A scan can outlive the schedule interval, or a triggered
			// scan can still be going. The checkpoint carries the next
			// tick forward.
			log.Warn().Msg("previous scan still in progress, skipping tick")
		case err != nil:
			log.WithError(err).Error().Msg("scheduled scan failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal().Msg("invalid cron schedule")
	}

	c.Start()
	log.Info().Str("schedule", cfg.Scheduler.Cron).Msg("scheduler started")

	<-ctx.Done()
	c.Stop()
}

// runScan executes one scan and delivers the results to every
// configured sink.
func (a *app) runScan(ctx context.Context) error {
	runCtx := ctx
	if a.tracing != nil {
		var end func()
		runCtx, end = a.startRunSpan(ctx)
		defer end()
		a.spans.beginRun(runCtx)
	}

	report, err := a.orch.Run(runCtx)
	if err != nil {
		return err
	}

	if report.Paused {
		a.log.Warn().Msg("run paused on rate budget, rerun to resume")
	}

	if err := a.writeOutput(report.Completed); err != nil {
		a.log.WithError(err).Error().Msg("writing output file failed")
	}

	if a.store != nil {
		if err := a.store.SaveAll(report.Completed); err != nil {
			a.log.WithError(err).Error().Msg("saving results to database failed")
		}
	}

	if a.indexer != nil {
		indexed := a.indexer.IndexReport(ctx, report.Completed)
		a.log.Info().Int("indexed", indexed).Msg("results exported to elasticsearch")
	}

	return nil
}

func (a *app) startRunSpan(ctx context.Context) (context.Context, func()) {
	spanCtx, span := a.tracing.StartRun(ctx, a.cfg.GitHub.Owner)
	return spanCtx, func() { span.End() }
}

func (a *app) writeOutput(records []models.RepositoryStatistics) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.cfg.Scan.OutputPath, data, 0o644)
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.tracing.Shutdown(shutdownCtx)
	}
}
