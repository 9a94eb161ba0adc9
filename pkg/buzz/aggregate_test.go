package buzz

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// polarityByText returns fixed polarities keyed by comment text.
func polarityByText(m map[string]float64) Classifier {
	return ClassifierFunc(func(_ context.Context, text string) (float64, error) {
		p, ok := m[text]
		if !ok {
			return 0, errors.New("unexpected comment " + text)
		}
		return p, nil
	})
}

func TestAnalyze_EmptySet(t *testing.T) {
	agg := NewAggregator(polarityByText(nil), 10, nil, nil)

	for _, comments := range [][]Comment{nil, {}, {{Text: "   "}, {Text: ""}}} {
		got := agg.Analyze(context.Background(), comments)
		assert.Equal(t, 0.0, got.Sentiment.Score)
		assert.Equal(t, Distribution{}, got.Sentiment.Distribution)
		assert.Equal(t, SentimentNeutral, got.Sentiment.Dominant)
		assert.Equal(t, 0.0, got.Quality)
		assert.Equal(t, 5.0, got.NormalizedScore)
		assert.Zero(t, got.Examined)
	}
}

func TestAnalyze_Distribution(t *testing.T) {
	agg := NewAggregator(polarityByText(map[string]float64{
		"great": 0.8, "love it": 0.6, "meh": 0.05, "bad": -0.5, "okay": 0.1,
	}), 100, nil, nil)

	got := agg.Analyze(context.Background(), []Comment{
		{Text: "great"}, {Text: "love it"}, {Text: "meh"}, {Text: "bad"}, {Text: "okay"},
	})

	d := got.Sentiment.Distribution
	assert.InDelta(t, 0.4, d.Positive, 1e-9)
	assert.InDelta(t, 0.4, d.Neutral, 1e-9, "0.1 is on the neutral boundary")
	assert.InDelta(t, 0.2, d.Negative, 1e-9)
	assert.InDelta(t, 1.0, d.Positive+d.Neutral+d.Negative, 1e-9)
	assert.Equal(t, SentimentNeutral, got.Sentiment.Dominant, "tie between positive and neutral")
	assert.InDelta(t, (0.8+0.6+0.05-0.5+0.1)/5, got.Sentiment.Score, 1e-9)
	assert.InDelta(t, NormalizeSentiment(got.Sentiment.Score), got.NormalizedScore, 1e-9)
	assert.Equal(t, 5, got.Examined)
}

func TestDominantSentiment(t *testing.T) {
	tests := []struct {
		dist Distribution
		want Sentiment
	}{
		{Distribution{0.4, 0.4, 0.2}, SentimentNeutral},
		{Distribution{0.5, 0.3, 0.2}, SentimentPositive},
		{Distribution{0.2, 0.3, 0.5}, SentimentNegative},
		{Distribution{0.4, 0.2, 0.4}, SentimentNeutral},
		{Distribution{0.2, 0.6, 0.2}, SentimentNeutral},
		{Distribution{}, SentimentNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DominantSentiment(tt.dist), "%+v", tt.dist)
	}
}

func TestAnalyze_ClassifierFailureCountsAsNeutral(t *testing.T) {
	classifier := ClassifierFunc(func(_ context.Context, text string) (float64, error) {
		switch text {
		case "boom":
			return 0, errors.New("model unavailable")
		case "nan":
			return math.NaN(), nil
		case "huge":
			return 7, nil
		}
		return -1, nil
	})
	agg := NewAggregator(classifier, 100, nil, nil)

	got := agg.Analyze(context.Background(), []Comment{{Text: "boom"}, {Text: "nan"}, {Text: "huge"}, {Text: "awful"}})

	assert.Equal(t, 2, got.Failed)
	assert.Equal(t, 4, got.Examined)
	assert.InDelta(t, 0.0, got.Sentiment.Score, 1e-9, "polarity clamped to 1 and failures count as 0")
	assert.InDelta(t, 0.5, got.Sentiment.Distribution.Neutral, 1e-9)
}

func TestAnalyze_Quality(t *testing.T) {
	long := strings.Repeat("a", 400)
	agg := NewAggregator(polarityByText(map[string]float64{long: -1, "x": 0}), 100, nil, nil)

	got := agg.Analyze(context.Background(), []Comment{{Text: long, LikeCount: 500, ReplyCount: 50}})
	assert.Equal(t, 1.0, got.Quality)

	got = agg.Analyze(context.Background(), []Comment{{Text: "x"}})
	assert.InDelta(t, (1.0/200)/4, got.Quality, 1e-12)
}

func TestSampleComments_HighestEngagementFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	comments := []Comment{
		{Text: "low", LikeCount: 1},
		{Text: "high", LikeCount: 50, ReplyCount: 5},
		{Text: " "},
		{Text: "tie-old", LikeCount: 10, PublishedAt: base},
		{Text: "tie-new", LikeCount: 5, ReplyCount: 5, PublishedAt: base.Add(time.Hour)},
	}

	got := SampleComments(comments, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "high", got[0].Text)
	assert.Equal(t, "tie-new", got[1].Text)
	assert.Equal(t, "tie-old", got[2].Text)
	assert.Equal(t, "low", comments[0].Text, "input untouched")

	assert.Len(t, SampleComments(comments, 0), 4)
}

func TestAnalyze_RespectsMaxComments(t *testing.T) {
	var seen []string
	classifier := ClassifierFunc(func(_ context.Context, text string) (float64, error) {
		seen = append(seen, text)
		return 0.5, nil
	})
	agg := NewAggregator(classifier, 2, nil, nil)

	got := agg.Analyze(context.Background(), []Comment{
		{Text: "a", LikeCount: 1}, {Text: "b", LikeCount: 3}, {Text: "c", LikeCount: 2},
	})
	assert.Equal(t, 2, got.Examined)
	assert.Equal(t, []string{"b", "c"}, seen)
}

func TestForeignReaction(t *testing.T) {
	agg := NewAggregator(polarityByText(map[string]float64{
		"すごい":        0.9,
		"amazing":    0.8,
		"so cool":    0.6,
		"wow":        0.4,
		"not for me": 0.2,
		"最高 awesome": 0.9,
	}), 100, nil, nil)

	got := agg.Analyze(context.Background(), []Comment{
		{Text: "すごい", LikeCount: 100},
		{Text: "amazing", LikeCount: 3},
		{Text: "so cool", LikeCount: 9},
		{Text: "wow", LikeCount: 1},
		{Text: "not for me", LikeCount: 5},
		{Text: "最高 awesome", LikeCount: 2},
	})

	f := got.Foreign
	assert.Equal(t, "positive", f.ReactionType)
	assert.InDelta(t, (0.8+0.6+0.4+0.2+0.9)/5, f.SentimentScore, 1e-9)
	assert.Equal(t, []string{"so cool", "not for me", "amazing"}, f.Examples)

	none := agg.Analyze(context.Background(), []Comment{{Text: "すごい"}})
	assert.Equal(t, "unknown", none.Foreign.ReactionType)
	assert.Empty(t, none.Foreign.Examples)
}
