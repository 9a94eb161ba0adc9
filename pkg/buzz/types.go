package buzz

import "time"

// VideoStats is a point-in-time snapshot of a video's public counters.
type VideoStats struct {
	VideoID      string    `json:"video_id" db:"video_id"`
	ViewCount    int64     `json:"view_count" db:"view_count"`
	LikeCount    int64     `json:"like_count" db:"like_count"`
	CommentCount int64     `json:"comment_count" db:"comment_count"`
	PublishedAt  time.Time `json:"published_at" db:"published_at"`
	CapturedAt   time.Time `json:"captured_at" db:"captured_at"`

	// LikesHidden and CommentsDisabled mark counters the platform did not report.
	LikesHidden      bool `json:"likes_hidden,omitempty" db:"likes_hidden"`
	CommentsDisabled bool `json:"comments_disabled,omitempty" db:"comments_disabled"`
}

// EngagementRate returns (likes+comments)/views as a percentage.
func (s VideoStats) EngagementRate() float64 {
	if s.ViewCount <= 0 {
		return 0
	}
	return float64(nonNegative(s.LikeCount)+nonNegative(s.CommentCount)) / float64(s.ViewCount) * 100
}

// ChannelStats describes the channel that published a video.
type ChannelStats struct {
	ChannelID          string    `json:"channel_id" db:"channel_id"`
	SubscriberCount    int64     `json:"subscriber_count" db:"subscriber_count"`
	AvgRecentViews     float64   `json:"average_recent_view_count" db:"avg_recent_views"`
	TotalViewCount     int64     `json:"total_view_count" db:"total_view_count"`
	CapturedAt         time.Time `json:"captured_at" db:"captured_at"`
	SubscribersHidden  bool      `json:"subscribers_hidden,omitempty" db:"subscribers_hidden"`
	RecentViewsMissing bool      `json:"recent_views_missing,omitempty" db:"recent_views_missing"`
}

// Comment is a single top-level comment on a video.
type Comment struct {
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	ReplyCount  int64     `json:"reply_count"`
	PublishedAt time.Time `json:"published_at"`
}

// Sentiment is the class a comment or a comment set falls into.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Distribution holds the fraction of examined comments in each class.
type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// SentimentResult summarises the polarity of a comment set.
type SentimentResult struct {
	Score        float64      `json:"sentiment_score"`
	Distribution Distribution `json:"sentiment_distribution"`
	Dominant     Sentiment    `json:"dominant_sentiment"`
}

// ForeignReaction is the sentiment of comments written in Latin script.
type ForeignReaction struct {
	SentimentScore float64  `json:"sentiment_score"`
	ReactionType   string   `json:"reaction_type"`
	Examples       []string `json:"comment_examples"`
}

// CommentAnalysis is the cached output of the comment aggregator.
type CommentAnalysis struct {
	Sentiment       SentimentResult `json:"sentiment"`
	Quality         float64         `json:"comment_quality"`
	Examined        int             `json:"examined"`
	Failed          int             `json:"classification_failures"`
	Foreign         ForeignReaction `json:"foreign_reaction"`
	NormalizedScore float64         `json:"normalized_sentiment"`
}

// TrendDirection is the coarse direction of a video's growth.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendStable     TrendDirection = "stable"
	TrendDecreasing TrendDirection = "decreasing"
)

// Breakdown holds the five capped sub-scores.
type Breakdown struct {
	View             float64 `json:"view"`
	Engagement       float64 `json:"engagement"`
	CommentActivity  float64 `json:"comment_activity"`
	ChannelInfluence float64 `json:"channel_influence"`
	Sentiment        float64 `json:"sentiment"`
}

// Sum adds the sub-scores.
func (b Breakdown) Sum() float64 {
	return b.View + b.Engagement + b.CommentActivity + b.ChannelInfluence + b.Sentiment
}

// Record is an immutable buzz score for one video. Recomputation produces a
// new Record; fields are never updated in place.
type Record struct {
	VideoID        string             `json:"video_id"`
	ChannelID      string             `json:"channel_id,omitempty"`
	ComputedAt     time.Time          `json:"computed_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
	Breakdown      Breakdown          `json:"breakdown"`
	Total          float64            `json:"total_score"`
	Sentiment      SentimentResult    `json:"sentiment"`
	CommentQuality float64            `json:"comment_quality"`
	GrowthRate     float64            `json:"growth_rate"`
	EngagementRate float64            `json:"engagement_rate"`
	Trend          TrendDirection     `json:"trend_direction"`
	Foreign        ForeignReaction    `json:"foreign_reaction"`
	Missing        []MissingDataError `json:"missing,omitempty"`
}

// IsStale reports whether the record has outlived its score TTL at now.
func (r Record) IsStale(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// VideoInputs is what the ingestion collaborator returns for one video.
type VideoInputs struct {
	Stats     VideoStats
	History   []VideoStats // ordered by CapturedAt, may include Stats itself
	ChannelID string
	Title     string
}

// Inputs bundles everything needed to compute one record without I/O.
type Inputs struct {
	VideoID   string
	ChannelID string
	Video     VideoStats
	History   []VideoStats
	Channel   *ChannelStats // nil when the channel is unavailable
	Comments  []Comment
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
