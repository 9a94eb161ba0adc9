package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/elonfeng/buzzradar/internal/config"
	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/internal/ingest"
	"github.com/elonfeng/buzzradar/internal/logging"
	"github.com/elonfeng/buzzradar/internal/metrics"
	"github.com/elonfeng/buzzradar/internal/store"
	"github.com/elonfeng/buzzradar/pkg/alert"
	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/cache"
	"github.com/elonfeng/buzzradar/pkg/sentiment"
	"github.com/elonfeng/buzzradar/pkg/source"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	clock      clockwork.Clock
	db         *store.SQLiteStore
	cache      cache.Cache
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	ingestor   *ingest.Ingestor
	discoverer *source.Discoverer
	engine     *buzz.Engine

	closers []func()
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      logging.New(cfg.Log.Level, cfg.Log.Format),
		clock:    clockwork.NewRealClock(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { db.Close() })

	if err := a.openCache(ctx); err != nil {
		return err
	}

	retry := a.retryConfig()
	yt := source.NewYouTube(source.YouTubeConfig{
		APIKey:            cfg.YouTube.APIKey,
		BaseURL:           cfg.YouTube.BaseURL,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Retry:             retry,
		Clock:             a.clock,
	})

	a.ingestor, err = ingest.New(ingest.Config{
		Videos:        yt,
		Feed:          source.NewChannelFeed(cfg.YouTube.FeedBaseURL, retry),
		Store:         db,
		Clock:         a.clock,
		Logger:        a.log,
		MaxComments:   cfg.Scoring.MaxComments,
		HistoryWindow: cfg.Scoring.ParseGrowthWindow(),
		ChannelMaxAge: cfg.Cache.TTLs()[cache.CategoryChannel],
		PrimeMaxAge:   cfg.Scoring.ParseMinGrowthGap(),
	})
	if err != nil {
		return err
	}

	filter := source.NewFilter(cfg.Discovery.Keywords, cfg.Discovery.ExcludeKeywords)
	a.discoverer = source.NewDiscoverer(yt, filter, a.clock, a.log)

	calc, err := buzz.NewCalculator(a.classifier(retry), cfg.CalculatorOptions(), a.log, a.metrics)
	if err != nil {
		return fmt.Errorf("build calculator: %w", err)
	}

	a.engine, err = buzz.NewEngine(buzz.EngineConfig{
		Calculator:  calc,
		Cache:       a.cache,
		Ingestor:    a.ingestor,
		Clock:       a.clock,
		Logger:      a.log,
		Metrics:     a.metrics,
		Concurrency: cfg.Batch.Concurrency,
		ItemTimeout: cfg.Batch.ParseItemTimeout(),
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	ttls := a.cfg.Cache.TTLs()
	if url := a.cfg.Cache.RedisURL; url != "" {
		rc, err := cache.DialRedis(ctx, url, ttls)
		if err != nil {
			return fmt.Errorf("open redis cache: %w", err)
		}
		a.cache = rc
		a.closers = append(a.closers, func() { rc.Close() })
		a.log.Debug("using redis cache")
		return nil
	}

	mem := cache.NewMemory(ttls, a.clock)
	stop := mem.StartEvictionTimer(10 * time.Minute)
	a.cache = mem
	a.closers = append(a.closers, stop, func() { mem.Close() })
	a.log.Debug("using in-memory cache")
	return nil
}

func (a *app) retryConfig() httpretry.Config {
	retry := httpretry.DefaultConfig()
	retry.MaxRetries = a.cfg.YouTube.MaxRetries
	return retry
}

func (a *app) classifier(retry httpretry.Config) buzz.Classifier {
	vader := sentiment.NewVaderClassifier(sentiment.DefaultPhrases())

	llm := a.cfg.Sentiment.LLM
	if !llm.Enabled || llm.APIKey == "" {
		return vader
	}
	a.log.WithFields(logrus.Fields{
		"provider": llm.Provider,
		"model":    llm.Model,
	}).Info("llm sentiment classifier enabled")

	return &sentiment.Fallback{
		Primary:   sentiment.NewLLMClassifier(llm.Provider, llm.Model, llm.APIKey, llm.BaseURL, retry),
		Secondary: vader,
		Log:       a.log,
	}
}

func (a *app) alertManager() *alert.Manager {
	cfg := a.cfg.Alerts
	retry := a.retryConfig()

	var notifiers []alert.Notifier
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Slack.WebhookURL, retry))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Discord.WebhookURL, retry))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret, retry))
	}

	return alert.NewManager(notifiers, a.metrics.AlertSent)
}

func (a *app) discoverOptions() source.DiscoverOptions {
	d := a.cfg.Discovery
	return source.DiscoverOptions{
		Regions:      d.Regions,
		CategoryID:   d.CategoryID,
		Queries:      d.Queries,
		MaxResults:   d.MaxResults,
		SearchWindow: d.ParseSearchWindow(),
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
