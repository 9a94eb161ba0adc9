package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/cache"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_MatchesCalculatorDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, buzz.DefaultWeights(), cfg.Scoring.Weights())
	assert.Equal(t, buzz.DefaultOptions(), cfg.CalculatorOptions())
	assert.Equal(t, cache.DefaultTTLs(), cfg.Cache.TTLs())
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseRefreshInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.ParseSnapshots())
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.ParseChannelStats())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/x.db
discovery:
  regions: [JP, US]
  queries: ["猫"]
scoring:
  view_cap: 20
  max_comments: 50
  growth_window: 3h
cache:
  score_ttl: 10m
batch:
  concurrency: 2
  item_timeout: nonsense
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, []string{"JP", "US"}, cfg.Discovery.Regions)
	assert.Equal(t, 20.0, cfg.Scoring.Weights().ViewCap)
	assert.Equal(t, 25.0, cfg.Scoring.Weights().EngagementCap, "unset keys keep defaults")

	opts := cfg.CalculatorOptions()
	assert.Equal(t, 50, opts.MaxComments)
	assert.Equal(t, 3*time.Hour, opts.GrowthWindow)
	assert.Equal(t, 10*time.Minute, opts.ScoreTTL)
	assert.Equal(t, buzz.DefaultItemTimeout, cfg.Batch.ParseItemTimeout(), "invalid duration falls back")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUZZRADAR_DB_PATH", "/data/buzz.db")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/buzz.db", cfg.Database.Path)
	assert.Equal(t, "yt-key", cfg.YouTube.APIKey)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Alerts.Slack.Enabled)
	assert.False(t, cfg.Alerts.Discord.Enabled)
	assert.True(t, cfg.Sentiment.LLM.Enabled)
	assert.Equal(t, "anthropic", cfg.Sentiment.LLM.Provider)
}

func TestLoad_RejectsInvalidScoring(t *testing.T) {
	path := writeConfig(t, `
scoring:
  view_cap: 60
  like_rate_weight: -1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "like_rate_weight")
	assert.ErrorContains(t, err, "caps sum")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "scoring: [oops"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Alerts.MinScore = 120
	cfg.Sentiment.LLM.Enabled = true
	cfg.Sentiment.LLM.Provider = "gemini"
	cfg.Batch.Concurrency = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "alerts.min_score")
	assert.ErrorContains(t, err, "gemini")
	assert.ErrorContains(t, err, "batch.concurrency")
}
