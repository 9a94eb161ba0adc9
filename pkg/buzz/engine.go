package buzz

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/elonfeng/buzzradar/pkg/cache"
)

// Ingestor is the metrics-ingestion collaborator. Implementations wrap
// ErrUnavailable for data the platform does not expose; any other error
// aborts scoring of the video.
type Ingestor interface {
	FetchVideo(ctx context.Context, videoID string) (VideoInputs, error)
	FetchChannel(ctx context.Context, channelID string) (ChannelStats, error)
	FetchComments(ctx context.Context, videoID string) ([]Comment, error)
}

// Default engine limits.
const (
	DefaultConcurrency = 8
	DefaultItemTimeout = 30 * time.Second
)

// EngineConfig wires an Engine. Calculator, Cache and Ingestor are required.
type EngineConfig struct {
	Calculator *Calculator
	Cache      cache.Cache
	Ingestor   Ingestor
	Clock      clockwork.Clock
	Logger     logrus.FieldLogger
	Metrics    Metrics

	// Concurrency caps in-flight per-video fetches during a batch.
	Concurrency int
	// ItemTimeout bounds one video's fetch and score.
	ItemTimeout time.Duration
}

// Engine is the cache-aware scoring entry point.
type Engine struct {
	calc        *Calculator
	cache       cache.Cache
	ingest      Ingestor
	clock       clockwork.Clock
	log         logrus.FieldLogger
	metrics     Metrics
	group       singleflight.Group
	concurrency int
	itemTimeout time.Duration
}

// NewEngine validates cfg and fills in defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Calculator == nil:
		return nil, errors.New("buzz: calculator is required")
	case cfg.Cache == nil:
		return nil, errors.New("buzz: cache is required")
	case cfg.Ingestor == nil:
		return nil, errors.New("buzz: ingestor is required")
	}

	e := &Engine{
		calc:        cfg.Calculator,
		cache:       cfg.Cache,
		ingest:      cfg.Ingestor,
		clock:       cfg.Clock,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		itemTimeout: cfg.ItemTimeout,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.log == nil {
		e.log = discardLogger()
	}
	if e.metrics == nil {
		e.metrics = NopMetrics{}
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.itemTimeout <= 0 {
		e.itemTimeout = DefaultItemTimeout
	}
	return e, nil
}

// ComputeScore scores in without touching the cache or the ingestor.
func (e *Engine) ComputeScore(ctx context.Context, in Inputs) (Record, error) {
	rec, err := e.calc.ComputeScore(ctx, in)
	e.observe(rec, err)
	return rec, err
}

// GetOrComputeScore returns the cached record for videoID while it is fresh,
// otherwise ingests, scores and caches a new one. Concurrent callers for the
// same video share one computation.
func (e *Engine) GetOrComputeScore(ctx context.Context, videoID string) (Record, error) {
	rec, _, err := e.getOrCompute(ctx, videoID)
	return rec, err
}

// Invalidate drops the cached score and comment analysis for videoID so the
// next request recomputes.
func (e *Engine) Invalidate(ctx context.Context, videoID string) error {
	return errors.Join(
		e.cache.Invalidate(ctx, cache.CategoryScore, videoID),
		e.cache.Invalidate(ctx, cache.CategoryComments, videoID),
	)
}

// InvalidateChannel drops cached channel stats.
func (e *Engine) InvalidateChannel(ctx context.Context, channelID string) error {
	return e.cache.Invalidate(ctx, cache.CategoryChannel, channelID)
}

// getOrCompute reports cached=true when the record came from the cache.
func (e *Engine) getOrCompute(ctx context.Context, videoID string) (Record, bool, error) {
	if videoID == "" {
		return Record{}, false, errors.New("buzz: empty video id")
	}
	if rec, ok := e.cachedScore(ctx, videoID); ok {
		return rec, true, nil
	}

	v, err, _ := e.group.Do(videoID, func() (any, error) {
		return e.compute(ctx, videoID)
	})
	if err != nil {
		return Record{}, false, err
	}
	return v.(Record), false, nil
}

func (e *Engine) cachedScore(ctx context.Context, videoID string) (Record, bool) {
	var rec Record
	ok, err := e.cache.Get(ctx, cache.CategoryScore, videoID, &rec)
	if err != nil {
		e.log.WithError(err).WithField("video_id", videoID).Warn("score cache read failed")
		ok = false
	}
	if ok && rec.IsStale(e.clock.Now()) {
		ok = false
	}
	e.metrics.CacheLookup(string(cache.CategoryScore), ok)
	return rec, ok
}

// compute runs the per-video pipeline strictly in order: stats, channel,
// comments, sub-scores, composite. Nothing is cached unless the record
// passes the invariant check.
func (e *Engine) compute(ctx context.Context, videoID string) (Record, error) {
	start := e.clock.Now()
	defer func() { e.metrics.ObserveCompute(e.clock.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	vi, err := e.ingest.FetchVideo(ctx, videoID)
	if err != nil {
		return Record{}, &IngestionError{VideoID: videoID, Stage: StageVideo, Err: err}
	}
	if vi.Stats.VideoID == "" {
		vi.Stats.VideoID = videoID
	}

	in := Inputs{
		VideoID:   videoID,
		ChannelID: vi.ChannelID,
		Video:     vi.Stats,
		History:   vi.History,
	}

	if vi.ChannelID != "" {
		ch, err := e.channel(ctx, vi.ChannelID)
		if err != nil {
			return Record{}, &IngestionError{VideoID: videoID, Stage: StageChannel, Err: err}
		}
		in.Channel = ch
	}

	analysis, err := e.comments(ctx, &in)
	if err != nil {
		return Record{}, &IngestionError{VideoID: videoID, Stage: StageComments, Err: err}
	}

	rec, err := e.calc.Score(in, analysis)
	e.observe(rec, err)
	if err != nil {
		return Record{}, err
	}

	if err := e.cache.Put(ctx, cache.CategoryScore, videoID, rec); err != nil {
		e.log.WithError(err).WithField("video_id", videoID).Warn("score cache write failed")
	}
	return rec, nil
}

// channel returns nil stats when the channel is unavailable.
func (e *Engine) channel(ctx context.Context, channelID string) (*ChannelStats, error) {
	var cached ChannelStats
	ok, err := e.cache.Get(ctx, cache.CategoryChannel, channelID, &cached)
	if err != nil {
		e.log.WithError(err).WithField("channel_id", channelID).Warn("channel cache read failed")
		ok = false
	}
	e.metrics.CacheLookup(string(cache.CategoryChannel), ok)
	if ok {
		return &cached, nil
	}

	stats, err := e.ingest.FetchChannel(ctx, channelID)
	if errors.Is(err, ErrUnavailable) {
		e.log.WithField("channel_id", channelID).Warn("channel unavailable, scoring without channel influence")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if stats.ChannelID == "" {
		stats.ChannelID = channelID
	}

	if err := e.cache.Put(ctx, cache.CategoryChannel, channelID, stats); err != nil {
		e.log.WithError(err).WithField("channel_id", channelID).Warn("channel cache write failed")
	}
	return &stats, nil
}

// comments returns the comment analysis for in.VideoID. When the platform
// reports comments as unavailable, in.Video is marked CommentsDisabled.
func (e *Engine) comments(ctx context.Context, in *Inputs) (CommentAnalysis, error) {
	if in.Video.CommentsDisabled {
		return EmptyAnalysis(), nil
	}

	var analysis CommentAnalysis
	ok, err := e.cache.Get(ctx, cache.CategoryComments, in.VideoID, &analysis)
	if err != nil {
		e.log.WithError(err).WithField("video_id", in.VideoID).Warn("comment cache read failed")
		ok = false
	}
	e.metrics.CacheLookup(string(cache.CategoryComments), ok)
	if ok {
		return analysis, nil
	}

	comments, err := e.ingest.FetchComments(ctx, in.VideoID)
	if errors.Is(err, ErrUnavailable) {
		in.Video.CommentsDisabled = true
		return EmptyAnalysis(), nil
	}
	if err != nil {
		return CommentAnalysis{}, err
	}
	in.Comments = comments

	analysis = e.calc.Analyze(ctx, comments)
	if err := e.cache.Put(ctx, cache.CategoryComments, in.VideoID, analysis); err != nil {
		e.log.WithError(err).WithField("video_id", in.VideoID).Warn("comment cache write failed")
	}
	return analysis, nil
}

// observe reports missing data as warnings and invariant violations as
// errors.
func (e *Engine) observe(rec Record, err error) {
	for _, m := range rec.Missing {
		e.metrics.MissingData(m.Component)
		e.log.WithFields(logrus.Fields{
			"video_id":  rec.VideoID,
			"component": m.Component,
			"field":     m.Field,
		}).Warn("missing data, component scored as 0")
	}
	if err == nil {
		return
	}

	var violations []*InvariantViolation
	collectViolations(err, &violations)
	for _, v := range violations {
		e.metrics.InvariantViolation(v.Field)
		e.log.WithFields(logrus.Fields{
			"video_id": v.VideoID,
			"field":    v.Field,
			"value":    v.Value,
			"max":      v.Max,
		}).Error("score invariant violated")
	}
}

func collectViolations(err error, out *[]*InvariantViolation) {
	switch e := err.(type) {
	case *InvariantViolation:
		*out = append(*out, e)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			collectViolations(inner, out)
		}
	case interface{ Unwrap() error }:
		collectViolations(e.Unwrap(), out)
	}
}
