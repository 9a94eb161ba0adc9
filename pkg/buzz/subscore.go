package buzz

import "math"

// clamp bounds v to [0, max]; NaN maps to 0.
func clamp(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// ratio returns num/den floored at zero, or 0 when den is not positive.
func ratio(num, den float64) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return num / den
}

// ViewScore rewards absolute reach and normalised growth (0..1).
func ViewScore(w Weights, viewCount int64, growth float64) float64 {
	reach := ratio(float64(viewCount), w.ViewNorm) * w.ViewWeight
	return clamp(reach+clamp(growth, 1)*w.GrowthWeight, w.ViewCap)
}

// EngagementScore rewards likes and comments per view. A video with zero
// views scores 0.
func EngagementScore(w Weights, likeCount, commentCount, viewCount int64) float64 {
	if viewCount <= 0 {
		return 0
	}
	views := float64(viewCount)
	likes := ratio(float64(likeCount), views) * w.LikeRateWeight
	comments := ratio(float64(commentCount), views) * w.CommentRateWeight
	return clamp(likes+comments, w.EngagementCap)
}

// CommentActivityScore rewards comment volume and quality (0..1).
func CommentActivityScore(w Weights, commentCount int64, quality float64) float64 {
	volume := ratio(float64(commentCount), w.CommentCountNorm) * w.CommentCountWeight
	return clamp(volume+clamp(quality, 1)*w.QualityWeight, w.CommentActivityCap)
}

// ChannelInfluenceScore sums three independently capped parts: subscribers,
// average views of recent uploads and lifetime channel views.
func ChannelInfluenceScore(w Weights, subscribers int64, avgRecentViews float64, totalViews int64) float64 {
	part := func(v, norm float64) float64 {
		return clamp(ratio(v, norm)*w.ChannelPartCap, w.ChannelPartCap)
	}
	sum := part(float64(subscribers), w.SubscriberNorm) +
		part(avgRecentViews, w.AvgRecentViewsNorm) +
		part(float64(totalViews), w.TotalChannelViewNorm)
	return clamp(sum, w.ChannelCap)
}

// NormalizeSentiment maps a polarity in [-1, 1] onto [0, 10].
func NormalizeSentiment(polarity float64) float64 {
	return clamp((polarity+1)*5, 10)
}

// SentimentScore passes the normalised sentiment through, bounded by its cap.
func SentimentScore(w Weights, normalized float64) float64 {
	return clamp(normalized, w.SentimentCap)
}
