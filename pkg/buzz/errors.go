package buzz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnavailable marks data the platform does not expose for an entity,
// such as comments disabled on a video or a deleted channel. Ingestors wrap
// it; the engine maps it to missing data instead of an ingestion failure.
var ErrUnavailable = errors.New("data unavailable")

// Sub-score component names used in MissingDataError and log fields.
const (
	ComponentView             = "view"
	ComponentEngagement       = "engagement"
	ComponentCommentActivity  = "comment_activity"
	ComponentChannelInfluence = "channel_influence"
	ComponentSentiment        = "sentiment"
)

// MissingDataError records a metric that was absent; the affected
// component contributes 0.
type MissingDataError struct {
	Component string `json:"component"`
	Field     string `json:"field"`
}

func (e MissingDataError) Error() string {
	return fmt.Sprintf("missing %s for %s score", e.Field, e.Component)
}

// ClassificationError wraps a classifier failure for a single comment.
type ClassificationError struct {
	Index int
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify comment %d: %v", e.Index, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Ingestion stages.
const (
	StageVideo    = "video"
	StageChannel  = "channel"
	StageComments = "comments"
)

// IngestionError aborts scoring of one video.
type IngestionError struct {
	VideoID string
	Stage   string
	Err     error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s for video %s: %v", e.Stage, e.VideoID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// InvariantViolation signals a calculator defect: a sub-score outside
// [0, cap] or a total outside [0, MaxTotal].
type InvariantViolation struct {
	VideoID string
	Field   string
	Value   float64
	Max     float64
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated for video %s: %s = %v, want within [0, %v]", e.VideoID, e.Field, e.Value, e.Max)
}

// FailureCategory classifies why a batch item did not produce a record.
type FailureCategory string

const (
	FailureIngestion FailureCategory = "ingestion"
	FailureInvariant FailureCategory = "invariant"
	FailureCanceled  FailureCategory = "canceled"
	FailureInternal  FailureCategory = "internal"
)

// categorize maps an item error onto a failure category.
func categorize(err error) FailureCategory {
	var ingestErr *IngestionError
	var violation *InvariantViolation
	switch {
	case errors.As(err, &violation):
		return FailureInvariant
	case errors.As(err, &ingestErr):
		return FailureIngestion
	case errors.Is(err, errCanceled):
		return FailureCanceled
	default:
		return FailureInternal
	}
}

var errCanceled = errors.New("batch canceled before item started")

// BatchError is the aggregate summary of a batch run's failures. It is
// distinct from the per-item errors it wraps.
type BatchError struct {
	RunID      string
	Requested  int
	Attempted  int
	Succeeded  int
	Skipped    int
	Failed     int
	ByCategory map[FailureCategory]int
	Errs       []error
}

func (e *BatchError) Error() string {
	cats := make([]string, 0, len(e.ByCategory))
	for cat, n := range e.ByCategory {
		cats = append(cats, fmt.Sprintf("%s=%d", cat, n))
	}
	sort.Strings(cats)
	return fmt.Sprintf("batch %s: %d of %d items failed (%s)", e.RunID, e.Failed, e.Requested, strings.Join(cats, ", "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }
