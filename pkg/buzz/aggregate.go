package buzz

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Classifier rates the polarity of one non-empty comment in [-1, 1].
type Classifier interface {
	Classify(ctx context.Context, text string) (float64, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (float64, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (float64, error) {
	return f(ctx, text)
}

// Polarity class boundaries.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1

	foreignPositiveThreshold = 0.3
	foreignNegativeThreshold = -0.3
	foreignExamples          = 3
)

var errNaNPolarity = errors.New("classifier returned NaN")

// Comment quality normalisers; each part contributes a quarter.
const (
	qualityLengthNorm = 200.0
	qualityReplyNorm  = 10.0
	qualityLikeNorm   = 100.0
)

// Aggregator turns a comment set into a CommentAnalysis.
type Aggregator struct {
	classifier  Classifier
	maxComments int
	log         logrus.FieldLogger
	metrics     Metrics
}

// NewAggregator creates an aggregator examining at most maxComments comments.
func NewAggregator(classifier Classifier, maxComments int, log logrus.FieldLogger, m Metrics) *Aggregator {
	if maxComments <= 0 {
		maxComments = DefaultOptions().MaxComments
	}
	if log == nil {
		log = discardLogger()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Aggregator{classifier: classifier, maxComments: maxComments, log: log, metrics: m}
}

// EmptyAnalysis is the documented result for a video without usable comments.
func EmptyAnalysis() CommentAnalysis {
	return CommentAnalysis{
		Sentiment:       SentimentResult{Dominant: SentimentNeutral},
		Foreign:         ForeignReaction{ReactionType: "unknown"},
		NormalizedScore: NormalizeSentiment(0),
	}
}

// Analyze classifies the sampled comments and summarises them. A classifier
// failure on one comment counts that comment as neutral.
func (a *Aggregator) Analyze(ctx context.Context, comments []Comment) CommentAnalysis {
	sample := SampleComments(comments, a.maxComments)
	if len(sample) == 0 {
		return EmptyAnalysis()
	}

	polarities := make([]float64, len(sample))
	failed := 0
	for i, c := range sample {
		p, err := a.classifier.Classify(ctx, c.Text)
		if err == nil && math.IsNaN(p) {
			err = errNaNPolarity
		}
		if err != nil {
			cerr := &ClassificationError{Index: i, Err: err}
			a.log.WithError(cerr).Warn("comment classification failed, counting as neutral")
			a.metrics.ClassificationFailure()
			failed++
			p = 0
		}
		polarities[i] = math.Max(-1, math.Min(1, p))
	}

	var sum float64
	var pos, neu, neg int
	var quality float64
	for i, p := range polarities {
		sum += p
		switch {
		case p > positiveThreshold:
			pos++
		case p < negativeThreshold:
			neg++
		default:
			neu++
		}
		quality += commentQuality(sample[i], p)
	}

	n := float64(len(sample))
	dist := Distribution{
		Positive: float64(pos) / n,
		Neutral:  float64(neu) / n,
		Negative: float64(neg) / n,
	}
	mean := sum / n

	return CommentAnalysis{
		Sentiment: SentimentResult{
			Score:        mean,
			Distribution: dist,
			Dominant:     DominantSentiment(dist),
		},
		Quality:         clamp(quality/n, 1),
		Examined:        len(sample),
		Failed:          failed,
		Foreign:         foreignReaction(sample, polarities),
		NormalizedScore: NormalizeSentiment(mean),
	}
}

// DominantSentiment returns the class with a strict majority over both
// others; ties resolve to neutral.
func DominantSentiment(d Distribution) Sentiment {
	switch {
	case d.Positive > d.Neutral && d.Positive > d.Negative:
		return SentimentPositive
	case d.Negative > d.Neutral && d.Negative > d.Positive:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// SampleComments drops blank comments and keeps the limit most engaging
// ones: like_count + reply_count descending, newer first on ties, then
// input order. The input slice is not modified.
func SampleComments(comments []Comment, limit int) []Comment {
	sample := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		sample = append(sample, c)
	}

	sort.SliceStable(sample, func(i, j int) bool {
		ei := nonNegative(sample[i].LikeCount) + nonNegative(sample[i].ReplyCount)
		ej := nonNegative(sample[j].LikeCount) + nonNegative(sample[j].ReplyCount)
		if ei != ej {
			return ei > ej
		}
		return sample[i].PublishedAt.After(sample[j].PublishedAt)
	})

	if limit > 0 && len(sample) > limit {
		sample = sample[:limit]
	}
	return sample
}

func commentQuality(c Comment, polarity float64) float64 {
	length := clamp(float64(utf8.RuneCountInString(strings.TrimSpace(c.Text)))/qualityLengthNorm, 1)
	replies := clamp(ratio(float64(c.ReplyCount), qualityReplyNorm), 1)
	likes := clamp(ratio(float64(c.LikeCount), qualityLikeNorm), 1)
	intensity := math.Abs(polarity)
	return (length + replies + likes + intensity) / 4
}

func foreignReaction(sample []Comment, polarities []float64) ForeignReaction {
	var picked []Comment
	var sum float64
	for i, c := range sample {
		if hasLatinLetter(c.Text) {
			picked = append(picked, c)
			sum += polarities[i]
		}
	}
	if len(picked) == 0 {
		return ForeignReaction{ReactionType: "unknown"}
	}

	mean := sum / float64(len(picked))
	reaction := string(SentimentNeutral)
	switch {
	case mean > foreignPositiveThreshold:
		reaction = string(SentimentPositive)
	case mean < foreignNegativeThreshold:
		reaction = string(SentimentNegative)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].LikeCount > picked[j].LikeCount
	})
	if len(picked) > foreignExamples {
		picked = picked[:foreignExamples]
	}
	examples := make([]string, len(picked))
	for i, c := range picked {
		examples[i] = c.Text
	}

	return ForeignReaction{SentimentScore: mean, ReactionType: reaction, Examples: examples}
}

func hasLatinLetter(s string) bool {
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
