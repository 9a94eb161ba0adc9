package buzz

import (
	"sort"
	"time"
)

// Trend direction thresholds on weighted growth per hour.
const (
	trendRisingThreshold  = 100.0
	trendFallingThreshold = -100.0
)

// Growth describes how a video's counters moved between two snapshots.
type Growth struct {
	ViewsPerHour float64
	// Normalized is ViewsPerHour / GrowthNorm, capped to [0, 1].
	Normalized float64
	Direction  TrendDirection
}

// ComputeGrowth derives the growth rate from the latest snapshot and the most
// recent earlier one captured at least minGap and at most window before it.
// Fewer than two usable snapshots yield zero growth and a stable trend.
func ComputeGrowth(w Weights, current VideoStats, history []VideoStats, window, minGap time.Duration) Growth {
	snaps := make([]VideoStats, 0, len(history)+1)
	snaps = append(snaps, history...)
	if !current.CapturedAt.IsZero() {
		snaps = append(snaps, current)
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CapturedAt.Before(snaps[j].CapturedAt)
	})

	none := Growth{Direction: TrendStable}
	if len(snaps) < 2 {
		return none
	}

	latest := snaps[len(snaps)-1]
	var prev *VideoStats
	for i := len(snaps) - 2; i >= 0; i-- {
		gap := latest.CapturedAt.Sub(snaps[i].CapturedAt)
		if gap > window {
			break
		}
		if gap >= minGap {
			prev = &snaps[i]
			break
		}
	}
	if prev == nil {
		return none
	}

	hours := latest.CapturedAt.Sub(prev.CapturedAt).Hours()
	if hours <= 0 {
		return none
	}

	viewDelta := float64(latest.ViewCount-prev.ViewCount) / hours
	commentDelta := float64(latest.CommentCount-prev.CommentCount) / hours
	engagementDelta := (latest.EngagementRate() - prev.EngagementRate()) / hours

	vph := viewDelta
	if vph < 0 {
		// Counter regressions come from API lag, not real loss of views.
		vph = 0
	}

	return Growth{
		ViewsPerHour: vph,
		Normalized:   clamp(ratio(vph, w.GrowthNorm), 1),
		Direction:    trendDirection(viewDelta, engagementDelta, commentDelta),
	}
}

func trendDirection(viewGrowth, engagementGrowth, commentGrowth float64) TrendDirection {
	weighted := viewGrowth*0.5 + engagementGrowth*0.3 + commentGrowth*0.2
	switch {
	case weighted > trendRisingThreshold:
		return TrendIncreasing
	case weighted < trendFallingThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
