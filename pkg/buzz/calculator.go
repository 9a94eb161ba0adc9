package buzz

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Calculator turns raw video, channel and comment data into a Record. It
// performs no caching and no I/O beyond the injected classifier.
type Calculator struct {
	opts       Options
	aggregator *Aggregator
}

// NewCalculator validates opts and builds a calculator around classifier.
func NewCalculator(classifier Classifier, opts Options, log logrus.FieldLogger, m Metrics) (*Calculator, error) {
	if classifier == nil {
		return nil, errors.New("buzz: classifier is required")
	}
	opts = opts.withDefaults()
	if err := opts.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("buzz: invalid weights: %w", err)
	}
	return &Calculator{
		opts:       opts,
		aggregator: NewAggregator(classifier, opts.MaxComments, log, m),
	}, nil
}

// Options returns the effective options.
func (c *Calculator) Options() Options { return c.opts }

// Analyze runs the comment aggregator.
func (c *Calculator) Analyze(ctx context.Context, comments []Comment) CommentAnalysis {
	return c.aggregator.Analyze(ctx, comments)
}

// ComputeScore analyses the comments and scores the video. Identical inputs
// yield identical records.
func (c *Calculator) ComputeScore(ctx context.Context, in Inputs) (Record, error) {
	var analysis CommentAnalysis
	if in.Video.CommentsDisabled {
		analysis = EmptyAnalysis()
	} else {
		analysis = c.Analyze(ctx, in.Comments)
	}
	return c.Score(in, analysis)
}

// Score combines an already computed comment analysis with the counters.
// The returned error is non-nil only for an InvariantViolation; the record is
// still clamped so callers never see an out-of-range value.
func (c *Calculator) Score(in Inputs, analysis CommentAnalysis) (Record, error) {
	w := c.opts.Weights
	v := in.Video
	var missing []MissingDataError

	growth := ComputeGrowth(w, v, in.History, c.opts.GrowthWindow, c.opts.MinGrowthGap)
	if v.ViewCount <= 0 {
		growth.Normalized = 0
	}

	var b Breakdown
	b.View = ViewScore(w, v.ViewCount, growth.Normalized)

	if v.LikesHidden {
		missing = append(missing, MissingDataError{Component: ComponentEngagement, Field: "like_count"})
	} else {
		b.Engagement = EngagementScore(w, v.LikeCount, v.CommentCount, v.ViewCount)
	}

	if v.CommentsDisabled {
		missing = append(missing,
			MissingDataError{Component: ComponentCommentActivity, Field: "comment_count"},
			MissingDataError{Component: ComponentSentiment, Field: "comments"},
		)
	} else {
		b.CommentActivity = CommentActivityScore(w, v.CommentCount, analysis.Quality)
		b.Sentiment = SentimentScore(w, analysis.NormalizedScore)
	}

	channelID := in.ChannelID
	if ch := in.Channel; ch == nil {
		missing = append(missing, MissingDataError{Component: ComponentChannelInfluence, Field: "channel"})
	} else {
		if channelID == "" {
			channelID = ch.ChannelID
		}
		subs := ch.SubscriberCount
		if ch.SubscribersHidden {
			subs = 0
			missing = append(missing, MissingDataError{Component: ComponentChannelInfluence, Field: "subscriber_count"})
		}
		recent := ch.AvgRecentViews
		if ch.RecentViewsMissing {
			recent = 0
			missing = append(missing, MissingDataError{Component: ComponentChannelInfluence, Field: "average_recent_view_count"})
		}
		b.ChannelInfluence = ChannelInfluenceScore(w, subs, recent, ch.TotalViewCount)
	}

	sum := b.Sum()
	rec := Record{
		VideoID:        in.VideoID,
		ChannelID:      channelID,
		ComputedAt:     v.CapturedAt,
		ExpiresAt:      v.CapturedAt.Add(c.opts.ScoreTTL),
		Breakdown:      b,
		Total:          clamp(sum, MaxTotal),
		Sentiment:      analysis.Sentiment,
		CommentQuality: analysis.Quality,
		GrowthRate:     growth.ViewsPerHour,
		EngagementRate: v.EngagementRate(),
		Trend:          growth.Direction,
		Foreign:        analysis.Foreign,
		Missing:        missing,
	}

	if err := checkInvariants(in.VideoID, b, sum, w.Caps()); err != nil {
		rec.Breakdown = clampBreakdown(b, w.Caps())
		rec.Total = clamp(rec.Breakdown.Sum(), MaxTotal)
		return rec, err
	}
	return rec, nil
}

// checkInvariants reports every sub-score outside [0, cap] and a total
// outside [0, MaxTotal]. The sub-score functions already clamp, so this only
// fires if one of them stops doing so.
func checkInvariants(videoID string, b Breakdown, total float64, caps Breakdown) error {
	fields := []struct {
		name  string
		value float64
		max   float64
	}{
		{ComponentView, b.View, caps.View},
		{ComponentEngagement, b.Engagement, caps.Engagement},
		{ComponentCommentActivity, b.CommentActivity, caps.CommentActivity},
		{ComponentChannelInfluence, b.ChannelInfluence, caps.ChannelInfluence},
		{ComponentSentiment, b.Sentiment, caps.Sentiment},
		{"total", total, MaxTotal},
	}

	var errs []error
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < 0 || f.value > f.max {
			errs = append(errs, &InvariantViolation{VideoID: videoID, Field: f.name, Value: f.value, Max: f.max})
		}
	}
	return errors.Join(errs...)
}

func clampBreakdown(b, caps Breakdown) Breakdown {
	return Breakdown{
		View:             clamp(b.View, caps.View),
		Engagement:       clamp(b.Engagement, caps.Engagement),
		CommentActivity:  clamp(b.CommentActivity, caps.CommentActivity),
		ChannelInfluence: clamp(b.ChannelInfluence, caps.ChannelInfluence),
		Sentiment:        clamp(b.Sentiment, caps.Sentiment),
	}
}
