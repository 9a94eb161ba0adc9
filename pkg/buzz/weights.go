package buzz

import (
	"errors"
	"fmt"
	"time"
)

// MaxTotal is the upper bound of every composite score.
const MaxTotal = 100.0

// Weights holds the tunable constants of the sub-score calculators.
// Caps must sum to at most MaxTotal.
type Weights struct {
	// View score: min(views/ViewNorm*ViewWeight + growth*GrowthWeight, ViewCap).
	// GrowthNorm is the views/hour that maps to a normalised growth rate of 1.
	ViewCap      float64
	ViewNorm     float64
	ViewWeight   float64
	GrowthWeight float64
	GrowthNorm   float64

	EngagementCap     float64
	LikeRateWeight    float64
	CommentRateWeight float64

	CommentActivityCap float64
	CommentCountNorm   float64
	CommentCountWeight float64
	QualityWeight      float64

	ChannelCap           float64
	ChannelPartCap       float64
	SubscriberNorm       float64
	AvgRecentViewsNorm   float64
	TotalChannelViewNorm float64

	SentimentCap float64
}

// DefaultWeights returns the stock scoring constants.
func DefaultWeights() Weights {
	return Weights{
		ViewCap:      30,
		ViewNorm:     100_000,
		ViewWeight:   20,
		GrowthWeight: 10,
		GrowthNorm:   10_000,

		EngagementCap:     25,
		LikeRateWeight:    15,
		CommentRateWeight: 10,

		CommentActivityCap: 20,
		CommentCountNorm:   1000,
		CommentCountWeight: 10,
		QualityWeight:      10,

		ChannelCap:           15,
		ChannelPartCap:       5,
		SubscriberNorm:       1_000_000,
		AvgRecentViewsNorm:   100_000,
		TotalChannelViewNorm: 100_000_000,

		SentimentCap: 10,
	}
}

// Caps returns the per-sub-score maxima in breakdown order.
func (w Weights) Caps() Breakdown {
	return Breakdown{
		View:             w.ViewCap,
		Engagement:       w.EngagementCap,
		CommentActivity:  w.CommentActivityCap,
		ChannelInfluence: w.ChannelCap,
		Sentiment:        w.SentimentCap,
	}
}

// Validate rejects negative constants, zero normalisers and caps summing above MaxTotal.
func (w Weights) Validate() error {
	values := map[string]float64{
		"view_cap": w.ViewCap, "view_weight": w.ViewWeight, "growth_weight": w.GrowthWeight,
		"engagement_cap": w.EngagementCap, "like_rate_weight": w.LikeRateWeight,
		"comment_rate_weight": w.CommentRateWeight, "comment_activity_cap": w.CommentActivityCap,
		"comment_count_weight": w.CommentCountWeight, "quality_weight": w.QualityWeight,
		"channel_cap": w.ChannelCap, "channel_part_cap": w.ChannelPartCap,
		"sentiment_cap": w.SentimentCap,
	}
	var errs []error
	for name, v := range values {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, v))
		}
	}

	norms := map[string]float64{
		"view_norm": w.ViewNorm, "growth_norm": w.GrowthNorm,
		"comment_count_norm": w.CommentCountNorm, "subscriber_norm": w.SubscriberNorm,
		"avg_recent_views_norm": w.AvgRecentViewsNorm, "total_channel_view_norm": w.TotalChannelViewNorm,
	}
	for name, v := range norms {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}

	if sum := w.Caps().Sum(); sum > MaxTotal {
		errs = append(errs, fmt.Errorf("sub-score caps sum to %v, above %v", sum, MaxTotal))
	}
	return errors.Join(errs...)
}

// Options configures a Calculator.
type Options struct {
	Weights Weights

	// MaxComments caps how many comments the aggregator examines.
	MaxComments int

	// GrowthWindow bounds how far back the previous snapshot may be;
	// MinGrowthGap is the minimum distance between the two snapshots used.
	GrowthWindow time.Duration
	MinGrowthGap time.Duration

	// ScoreTTL sets Record.ExpiresAt relative to ComputedAt.
	ScoreTTL time.Duration
}

// DefaultOptions returns the stock calculator options.
func DefaultOptions() Options {
	return Options{
		Weights:      DefaultWeights(),
		MaxComments:  100,
		GrowthWindow: 6 * time.Hour,
		MinGrowthGap: 6 * time.Minute,
		ScoreTTL:     time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Weights == (Weights{}) {
		o.Weights = d.Weights
	}
	if o.MaxComments <= 0 {
		o.MaxComments = d.MaxComments
	}
	if o.GrowthWindow <= 0 {
		o.GrowthWindow = d.GrowthWindow
	}
	if o.MinGrowthGap <= 0 {
		o.MinGrowthGap = d.MinGrowthGap
	}
	if o.ScoreTTL <= 0 {
		o.ScoreTTL = d.ScoreTTL
	}
	return o
}
