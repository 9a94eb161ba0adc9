package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/cache"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Cache     CacheConfig     `yaml:"cache"`
	Batch     BatchConfig     `yaml:"batch"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Retention RetentionConfig `yaml:"retention"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// ScheduleConfig configures the refresh loop.
type ScheduleConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
}

// ParseRefreshInterval returns the refresh interval as time.Duration.
func (s ScheduleConfig) ParseRefreshInterval() time.Duration {
	return parseDuration(s.RefreshInterval, 30*time.Minute)
}

// YouTubeConfig configures the Data API client.
type YouTubeConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	FeedBaseURL       string  `yaml:"feed_base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
}

// DiscoveryConfig selects candidate videos.
type DiscoveryConfig struct {
	Regions         []string `yaml:"regions"`
	CategoryID      string   `yaml:"category_id"`
	Queries         []string `yaml:"queries"`
	MaxResults      int      `yaml:"max_results"`
	SearchWindow    string   `yaml:"search_window"`
	Keywords        []string `yaml:"keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// ParseSearchWindow returns the search window as time.Duration.
func (d DiscoveryConfig) ParseSearchWindow() time.Duration {
	return parseDuration(d.SearchWindow, 24*time.Hour)
}

// ScoringConfig exposes every scoring constant.
type ScoringConfig struct {
	ViewCap      float64 `yaml:"view_cap"`
	ViewNorm     float64 `yaml:"view_norm"`
	ViewWeight   float64 `yaml:"view_weight"`
	GrowthWeight float64 `yaml:"growth_weight"`
	GrowthNorm   float64 `yaml:"growth_norm"`

	EngagementCap     float64 `yaml:"engagement_cap"`
	LikeRateWeight    float64 `yaml:"like_rate_weight"`
	CommentRateWeight float64 `yaml:"comment_rate_weight"`

	CommentActivityCap float64 `yaml:"comment_activity_cap"`
	CommentCountNorm   float64 `yaml:"comment_count_norm"`
	CommentCountWeight float64 `yaml:"comment_count_weight"`
	QualityWeight      float64 `yaml:"quality_weight"`

	ChannelCap           float64 `yaml:"channel_cap"`
	ChannelPartCap       float64 `yaml:"channel_part_cap"`
	SubscriberNorm       float64 `yaml:"subscriber_norm"`
	AvgRecentViewsNorm   float64 `yaml:"avg_recent_views_norm"`
	TotalChannelViewNorm float64 `yaml:"total_channel_view_norm"`

	SentimentCap float64 `yaml:"sentiment_cap"`

	MaxComments  int    `yaml:"max_comments"`
	GrowthWindow string `yaml:"growth_window"`
	MinGrowthGap string `yaml:"min_growth_gap"`
}

// Weights converts the scoring section to calculator weights.
func (s ScoringConfig) Weights() buzz.Weights {
	return buzz.Weights{
		ViewCap:              s.ViewCap,
		ViewNorm:             s.ViewNorm,
		ViewWeight:           s.ViewWeight,
		GrowthWeight:         s.GrowthWeight,
		GrowthNorm:           s.GrowthNorm,
		EngagementCap:        s.EngagementCap,
		LikeRateWeight:       s.LikeRateWeight,
		CommentRateWeight:    s.CommentRateWeight,
		CommentActivityCap:   s.CommentActivityCap,
		CommentCountNorm:     s.CommentCountNorm,
		CommentCountWeight:   s.CommentCountWeight,
		QualityWeight:        s.QualityWeight,
		ChannelCap:           s.ChannelCap,
		ChannelPartCap:       s.ChannelPartCap,
		SubscriberNorm:       s.SubscriberNorm,
		AvgRecentViewsNorm:   s.AvgRecentViewsNorm,
		TotalChannelViewNorm: s.TotalChannelViewNorm,
		SentimentCap:         s.SentimentCap,
	}
}

// ParseGrowthWindow returns the growth window as time.Duration.
func (s ScoringConfig) ParseGrowthWindow() time.Duration {
	return parseDuration(s.GrowthWindow, 6*time.Hour)
}

// ParseMinGrowthGap returns the minimum snapshot gap as time.Duration.
func (s ScoringConfig) ParseMinGrowthGap() time.Duration {
	return parseDuration(s.MinGrowthGap, 6*time.Minute)
}

// CacheConfig configures the score cache.
type CacheConfig struct {
	RedisURL    string `yaml:"redis_url"`
	ScoreTTL    string `yaml:"score_ttl"`
	ChannelTTL  string `yaml:"channel_ttl"`
	CommentsTTL string `yaml:"comments_ttl"`
}

// TTLs returns the per-category TTLs.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		cache.CategoryScore:    parseDuration(c.ScoreTTL, cache.ScoreTTL),
		cache.CategoryChannel:  parseDuration(c.ChannelTTL, cache.ChannelTTL),
		cache.CategoryComments: parseDuration(c.CommentsTTL, cache.CommentsTTL),
	}
}

// BatchConfig bounds batch runs.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency"`
	ItemTimeout string `yaml:"item_timeout"`
}

// ParseItemTimeout returns the per-video timeout as time.Duration.
func (b BatchConfig) ParseItemTimeout() time.Duration {
	return parseDuration(b.ItemTimeout, buzz.DefaultItemTimeout)
}

// SentimentConfig selects the comment classifier.
type SentimentConfig struct {
	LLM LLMConfig `yaml:"llm"`
}

// LLMConfig configures the optional LLM classifier.
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
}

// AlertsConfig configures topic-of-the-day destinations.
type AlertsConfig struct {
	MinScore float64       `yaml:"min_score"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RetentionConfig configures pruning.
type RetentionConfig struct {
	Snapshots    string `yaml:"snapshots"`
	ChannelStats string `yaml:"channel_stats"`
}

// ParseSnapshots returns the snapshot retention as time.Duration.
func (r RetentionConfig) ParseSnapshots() time.Duration {
	return parseDuration(r.Snapshots, 30*24*time.Hour)
}

// ParseChannelStats returns the channel stats retention as time.Duration.
func (r RetentionConfig) ParseChannelStats() time.Duration {
	return parseDuration(r.ChannelStats, 90*24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	w := buzz.DefaultWeights()
	return &Config{
		Database: DatabaseConfig{Path: "./buzzradar.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Schedule: ScheduleConfig{RefreshInterval: "30m"},
		YouTube: YouTubeConfig{
			RequestsPerSecond: 5,
			MaxRetries:        3,
		},
		Discovery: DiscoveryConfig{
			Regions:      []string{"JP"},
			MaxResults:   50,
			SearchWindow: "24h",
		},
		Scoring: ScoringConfig{
			ViewCap:              w.ViewCap,
			ViewNorm:             w.ViewNorm,
			ViewWeight:           w.ViewWeight,
			GrowthWeight:         w.GrowthWeight,
			GrowthNorm:           w.GrowthNorm,
			EngagementCap:        w.EngagementCap,
			LikeRateWeight:       w.LikeRateWeight,
			CommentRateWeight:    w.CommentRateWeight,
			CommentActivityCap:   w.CommentActivityCap,
			CommentCountNorm:     w.CommentCountNorm,
			CommentCountWeight:   w.CommentCountWeight,
			QualityWeight:        w.QualityWeight,
			ChannelCap:           w.ChannelCap,
			ChannelPartCap:       w.ChannelPartCap,
			SubscriberNorm:       w.SubscriberNorm,
			AvgRecentViewsNorm:   w.AvgRecentViewsNorm,
			TotalChannelViewNorm: w.TotalChannelViewNorm,
			SentimentCap:         w.SentimentCap,
			MaxComments:          100,
			GrowthWindow:         "6h",
			MinGrowthGap:         "6m",
		},
		Cache: CacheConfig{
			ScoreTTL:    "1h",
			ChannelTTL:  "24h",
			CommentsTTL: "1h",
		},
		Batch: BatchConfig{
			Concurrency: buzz.DefaultConcurrency,
			ItemTimeout: "30s",
		},
		Sentiment: SentimentConfig{
			LLM: LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
			},
		},
		Alerts:    AlertsConfig{MinScore: 60},
		Server:    ServerConfig{Port: 8080},
		Retention: RetentionConfig{Snapshots: "720h", ChannelStats: "2160h"},
	}
}

// Load reads .env, then the YAML file, then applies env var overrides.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks scoring constants and limits.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Scoring.Weights().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	if c.Scoring.MaxComments < 0 {
		errs = append(errs, fmt.Errorf("scoring.max_comments must not be negative, got %d", c.Scoring.MaxComments))
	}
	if c.Batch.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must not be negative, got %d", c.Batch.Concurrency))
	}
	if c.Alerts.MinScore < 0 || c.Alerts.MinScore > buzz.MaxTotal {
		errs = append(errs, fmt.Errorf("alerts.min_score must be within [0, %v], got %v", buzz.MaxTotal, c.Alerts.MinScore))
	}
	if c.Sentiment.LLM.Enabled {
		switch c.Sentiment.LLM.Provider {
		case "openai", "anthropic":
		default:
			errs = append(errs, fmt.Errorf("sentiment.llm.provider %q is not supported", c.Sentiment.LLM.Provider))
		}
	}
	return errors.Join(errs...)
}

// CalculatorOptions converts the scoring section to calculator options.
func (c *Config) CalculatorOptions() buzz.Options {
	return buzz.Options{
		Weights:      c.Scoring.Weights(),
		MaxComments:  c.Scoring.MaxComments,
		GrowthWindow: c.Scoring.ParseGrowthWindow(),
		MinGrowthGap: c.Scoring.ParseMinGrowthGap(),
		ScoreTTL:     c.Cache.TTLs()[cache.CategoryScore],
	}
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUZZRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Sentiment.LLM.APIKey = v
		cfg.Sentiment.LLM.Enabled = true
		cfg.Sentiment.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Sentiment.LLM.APIKey = v
		cfg.Sentiment.LLM.Enabled = true
		cfg.Sentiment.LLM.Provider = "anthropic"
	}
}
