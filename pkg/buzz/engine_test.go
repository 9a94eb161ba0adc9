package buzz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/buzzradar/pkg/cache"
)

// fakeIngestor serves synthetic stats stamped with the injected clock.
type fakeIngestor struct {
	clock clockwork.Clock

	mu           sync.Mutex
	videoErrs    map[string]error
	channelErr   error
	commentsErr  error
	videoCalls   map[string]int
	channelCalls int
	commentCalls int

	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeIngestor(clock clockwork.Clock) *fakeIngestor {
	return &fakeIngestor{
		clock:      clock,
		videoErrs:  make(map[string]error),
		videoCalls: make(map[string]int),
	}
}

func (f *fakeIngestor) FetchVideo(ctx context.Context, videoID string) (VideoInputs, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.videoCalls[videoID]++
	err := f.videoErrs[videoID]
	f.mu.Unlock()
	if err != nil {
		return VideoInputs{}, err
	}

	return VideoInputs{
		Stats: VideoStats{
			VideoID:      videoID,
			ViewCount:    120_000,
			LikeCount:    6_000,
			CommentCount: 300,
			CapturedAt:   f.clock.Now(),
		},
		ChannelID: "chan-" + videoID,
		Title:     "title " + videoID,
	}, nil
}

func (f *fakeIngestor) FetchChannel(_ context.Context, channelID string) (ChannelStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelCalls++
	if f.channelErr != nil {
		return ChannelStats{}, f.channelErr
	}
	return ChannelStats{ChannelID: channelID, SubscriberCount: 200_000, AvgRecentViews: 50_000, TotalViewCount: 10_000_000}, nil
}

func (f *fakeIngestor) FetchComments(_ context.Context, _ string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentCalls++
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return []Comment{{Text: "nice", LikeCount: 3}, {Text: "hmm"}}, nil
}

func (f *fakeIngestor) calls(videoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.videoCalls[videoID]
}

type engineFixture struct {
	engine *Engine
	ingest *fakeIngestor
	cache  *cache.Memory
	clock  *clockwork.FakeClock
}

func newEngineFixture(t *testing.T, concurrency int) *engineFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	ing := newFakeIngestor(clock)
	mem := cache.NewMemory(nil, clock)

	engine, err := NewEngine(EngineConfig{
		Calculator:  newTestCalculator(t, constClassifier(0.4)),
		Cache:       mem,
		Ingestor:    ing,
		Clock:       clock,
		Concurrency: concurrency,
	})
	require.NoError(t, err)
	return &engineFixture{engine: engine, ingest: ing, cache: mem, clock: clock}
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	calc := newTestCalculator(t, constClassifier(0))
	mem := cache.NewMemory(nil, nil)

	_, err := NewEngine(EngineConfig{Cache: mem, Ingestor: newFakeIngestor(nil)})
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{Calculator: calc, Ingestor: newFakeIngestor(nil)})
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{Calculator: calc, Cache: mem})
	assert.Error(t, err)
}

func TestGetOrComputeScore_CacheHitWithinTTL(t *testing.T) {
	fx := newEngineFixture(t, 1)
	ctx := context.Background()

	first, err := fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Now(), first.ComputedAt)

	fx.clock.Advance(30 * time.Minute)
	second, err := fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
	assert.Equal(t, 1, fx.ingest.calls("v1"))

	fx.clock.Advance(31 * time.Minute)
	third, err := fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, third.ComputedAt.After(first.ComputedAt))
	assert.Equal(t, 2, fx.ingest.calls("v1"))
}

func TestGetOrComputeScore_ChannelCachedLonger(t *testing.T) {
	fx := newEngineFixture(t, 1)
	ctx := context.Background()

	_, err := fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)

	fx.clock.Advance(2 * time.Hour)
	_, err = fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)

	assert.Equal(t, 2, fx.ingest.calls("v1"))
	assert.Equal(t, 1, fx.ingest.channelCalls)
	assert.Equal(t, 2, fx.ingest.commentCalls)
}

func TestGetOrComputeScore_Invalidate(t *testing.T) {
	fx := newEngineFixture(t, 1)
	ctx := context.Background()

	_, err := fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, fx.engine.Invalidate(ctx, "v1"))

	_, err = fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, fx.ingest.calls("v1"))
	assert.Equal(t, 2, fx.ingest.commentCalls)
	assert.Equal(t, 1, fx.ingest.channelCalls)

	require.NoError(t, fx.engine.InvalidateChannel(ctx, "chan-v1"))
	require.NoError(t, fx.engine.Invalidate(ctx, "v1"))
	_, err = fx.engine.GetOrComputeScore(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, fx.ingest.channelCalls)
}

func TestGetOrComputeScore_UnavailableDataIsMissingNotFatal(t *testing.T) {
	fx := newEngineFixture(t, 1)
	fx.ingest.channelErr = fmt.Errorf("channel gone: %w", ErrUnavailable)
	fx.ingest.commentsErr = fmt.Errorf("comments disabled: %w", ErrUnavailable)

	rec, err := fx.engine.GetOrComputeScore(context.Background(), "v1")
	require.NoError(t, err)

	assert.Zero(t, rec.Breakdown.ChannelInfluence)
	assert.Zero(t, rec.Breakdown.CommentActivity)
	assert.Zero(t, rec.Breakdown.Sentiment)
	assert.Len(t, rec.Missing, 3)
	assert.Greater(t, rec.Total, 0.0)
}

func TestGetOrComputeScore_IngestionFailure(t *testing.T) {
	fx := newEngineFixture(t, 1)
	ctx := context.Background()

	fx.ingest.commentsErr = errors.New("quota exceeded")
	_, err := fx.engine.GetOrComputeScore(ctx, "v1")

	var ierr *IngestionError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, StageComments, ierr.Stage)
	assert.Equal(t, "v1", ierr.VideoID)

	ok, err := fx.cache.Get(ctx, cache.CategoryScore, "v1", &Record{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fx.engine.GetOrComputeScore(ctx, "")
	assert.Error(t, err)
}
