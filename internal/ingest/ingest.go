// Package ingest fetches video, channel and comment data from YouTube,
// records statistic snapshots in the store and hands the engine what it
// needs to score a video.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/source"
)

// VideoSource is the subset of the YouTube client the ingestor uses.
type VideoSource interface {
	Video(ctx context.Context, id string) (source.Video, error)
	Channel(ctx context.Context, id string) (source.Channel, error)
	Comments(ctx context.Context, videoID string, max int) ([]buzz.Comment, error)
}

// FeedSource reports the average views of a channel's recent uploads.
type FeedSource interface {
	AverageRecentViews(ctx context.Context, channelID string) (float64, error)
}

// Store persists snapshots.
type Store interface {
	UpsertVideo(ctx context.Context, v *source.Video) error
	AddSnapshot(ctx context.Context, s buzz.VideoStats) error
	GetSnapshots(ctx context.Context, videoID string, since time.Time) ([]buzz.VideoStats, error)
	AddChannelStats(ctx context.Context, s buzz.ChannelStats) error
	LatestChannelStats(ctx context.Context, channelID string) (*buzz.ChannelStats, error)
}

// Config wires an Ingestor. Videos and Store are required.
type Config struct {
	Videos VideoSource
	Feed   FeedSource
	Store  Store
	Clock  clockwork.Clock
	Logger logrus.FieldLogger

	// MaxComments caps comments fetched per video.
	MaxComments int
	// HistoryWindow is how far back snapshots count toward growth.
	HistoryWindow time.Duration
	// ChannelMaxAge is the oldest stored channel snapshot used when the
	// API call fails.
	ChannelMaxAge time.Duration
	// PrimeMaxAge bounds how long statistics handed to Track stand in for
	// an API call.
	PrimeMaxAge time.Duration
}

// Ingestor implements buzz.Ingestor on top of the YouTube client.
type Ingestor struct {
	cfg Config

	mu     sync.Mutex
	primed map[string]primedVideo
}

type primedVideo struct {
	video source.Video
	at    time.Time
}

var _ buzz.Ingestor = (*Ingestor)(nil)

// New creates an ingestor, filling defaults from buzz.DefaultOptions.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Videos == nil {
		return nil, errors.New("ingest: video source is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	defaults := buzz.DefaultOptions()
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.MaxComments <= 0 {
		cfg.MaxComments = defaults.MaxComments
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaults.GrowthWindow
	}
	if cfg.ChannelMaxAge <= 0 {
		cfg.ChannelMaxAge = 24 * time.Hour
	}
	if cfg.PrimeMaxAge <= 0 {
		cfg.PrimeMaxAge = defaults.MinGrowthGap
	}
	return &Ingestor{cfg: cfg, primed: make(map[string]primedVideo)}, nil
}

// Track records discovered videos and their snapshots. A FetchVideo for a
// tracked video within PrimeMaxAge reuses the discovered statistics instead
// of calling the API again.
func (i *Ingestor) Track(ctx context.Context, videos []source.Video) error {
	now := i.cfg.Clock.Now()

	i.mu.Lock()
	for id, p := range i.primed {
		if now.Sub(p.at) > i.cfg.PrimeMaxAge {
			delete(i.primed, id)
		}
	}
	i.mu.Unlock()

	var errs []error
	for _, v := range videos {
		if err := i.record(ctx, &v); err != nil {
			errs = append(errs, err)
			continue
		}
		i.mu.Lock()
		i.primed[v.ID] = primedVideo{video: v, at: now}
		i.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Forget drops primed statistics for ids, typically the videos a batch
// skipped because their score was still cached.
func (i *Ingestor) Forget(ids ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.primed, id)
	}
}

func (i *Ingestor) takePrimed(id string) (source.Video, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.primed[id]
	if !ok {
		return source.Video{}, false
	}
	delete(i.primed, id)
	if i.cfg.Clock.Since(p.at) > i.cfg.PrimeMaxAge {
		return source.Video{}, false
	}
	return p.video, true
}

func (i *Ingestor) record(ctx context.Context, v *source.Video) error {
	if err := i.cfg.Store.UpsertVideo(ctx, v); err != nil {
		return err
	}
	return i.cfg.Store.AddSnapshot(ctx, v.Stats)
}

// FetchVideo returns the current statistics of videoID together with the
// snapshots inside the history window.
func (i *Ingestor) FetchVideo(ctx context.Context, videoID string) (buzz.VideoInputs, error) {
	v, ok := i.takePrimed(videoID)
	if !ok {
		var err error
		v, err = i.cfg.Videos.Video(ctx, videoID)
		if err != nil {
			return buzz.VideoInputs{}, fmt.Errorf("fetch video %s: %w", videoID, err)
		}
		if err := i.record(ctx, &v); err != nil {
			i.cfg.Logger.WithError(err).WithField("video_id", videoID).Warn("failed to record snapshot")
		}
	}

	history, err := i.cfg.Store.GetSnapshots(ctx, videoID, i.cfg.Clock.Now().Add(-i.cfg.HistoryWindow))
	if err != nil {
		i.cfg.Logger.WithError(err).WithField("video_id", videoID).Warn("failed to load snapshot history")
		history = nil
	}
	if len(history) == 0 {
		history = []buzz.VideoStats{v.Stats}
	}

	return buzz.VideoInputs{
		Stats:     v.Stats,
		History:   history,
		ChannelID: v.ChannelID,
		Title:     v.Title,
	}, nil
}

// FetchChannel returns channel statistics with the average views of the
// channel's recent uploads. When the API call fails with anything but
// ErrUnavailable, a stored snapshot younger than ChannelMaxAge is used.
func (i *Ingestor) FetchChannel(ctx context.Context, channelID string) (buzz.ChannelStats, error) {
	log := i.cfg.Logger.WithField("channel_id", channelID)

	ch, err := i.cfg.Videos.Channel(ctx, channelID)
	if err != nil {
		if errors.Is(err, buzz.ErrUnavailable) {
			return buzz.ChannelStats{}, err
		}
		if stored, serr := i.cfg.Store.LatestChannelStats(ctx, channelID); serr == nil &&
			i.cfg.Clock.Since(stored.CapturedAt) <= i.cfg.ChannelMaxAge {
			log.WithError(err).Warn("channel lookup failed, using stored snapshot")
			return *stored, nil
		}
		return buzz.ChannelStats{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}

	stats := ch.Stats
	stats.RecentViewsMissing = true
	if i.cfg.Feed != nil {
		avg, err := i.cfg.Feed.AverageRecentViews(ctx, channelID)
		switch {
		case err == nil:
			stats.AvgRecentViews = avg
			stats.RecentViewsMissing = false
		case errors.Is(err, buzz.ErrUnavailable):
			log.WithError(err).Debug("no recent upload views")
		default:
			log.WithError(err).Warn("channel feed lookup failed")
		}
	}

	if err := i.cfg.Store.AddChannelStats(ctx, stats); err != nil {
		log.WithError(err).Warn("failed to record channel stats")
	}
	return stats, nil
}

// FetchComments returns up to MaxComments top-level comments by relevance.
func (i *Ingestor) FetchComments(ctx context.Context, videoID string) ([]buzz.Comment, error) {
	comments, err := i.cfg.Videos.Comments(ctx, videoID, i.cfg.MaxComments)
	if err != nil {
		return nil, fmt.Errorf("fetch comments %s: %w", videoID, err)
	}
	return comments, nil
}
