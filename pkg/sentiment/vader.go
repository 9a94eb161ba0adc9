// Package sentiment provides comment polarity classifiers.
package sentiment

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/jonreiter/govader"
)

// Phrases maps substrings VADER cannot tokenise (Japanese fragments, emoji)
// to a polarity in [-1,1].
type Phrases map[string]float64

// DefaultPhrases covers common Japanese comment vocabulary and emoji.
func DefaultPhrases() Phrases {
	return Phrases{
		"最高": 1, "すごい": 0.7, "凄い": 0.7, "すばらしい": 0.9, "素晴らしい": 0.9,
		"面白い": 0.6, "おもしろい": 0.6, "かわいい": 0.6, "可愛い": 0.6, "好き": 0.6,
		"大好き": 0.9, "感動": 0.8, "神": 0.6, "ありがとう": 0.4, "楽しい": 0.6,
		"きれい": 0.6, "綺麗": 0.6, "いいね": 0.5, "笑": 0.2, "草": 0.2,
		"つまらない": -0.8, "つまらん": -0.8, "最悪": -1, "嫌い": -0.7, "ひどい": -0.8,
		"酷い": -0.8, "悲しい": -0.6, "うざい": -0.7, "きもい": -0.7, "残念": -0.5,
		"面白くない": -0.6, "ダメ": -0.5, "微妙": -0.3, "炎上": -0.4, "がっかり": -0.6,
		"😂": 0.4, "🤣": 0.4, "😍": 0.8, "❤": 0.7, "👍": 0.6,
		"🔥": 0.5, "👏": 0.6, "🥰": 0.8, "😊": 0.6, "💯": 0.6,
		"😢": -0.4, "😭": -0.2, "😡": -0.8, "👎": -0.7, "🤮": -0.9,
		"💩": -0.6, "😞": -0.5, "🙄": -0.4,
	}
}

// VaderClassifier scores the Latin-script part of a comment with the VADER
// compound score and matched phrases with their table polarity. The result
// is the mean of the phrase polarities and the compound score, when VADER
// found any sentiment. Text with neither is neutral.
type VaderClassifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
	phrases  Phrases
	ordered  []string
}

// NewVaderClassifier builds a classifier over phrases, or DefaultPhrases when nil.
func NewVaderClassifier(phrases Phrases) *VaderClassifier {
	if phrases == nil {
		phrases = DefaultPhrases()
	}
	ordered := make([]string, 0, len(phrases))
	for p := range phrases {
		ordered = append(ordered, p)
	}
	// longest first so 面白くない wins over 面白い
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})
	return &VaderClassifier{
		analyzer: govader.NewSentimentIntensityAnalyzer(),
		phrases:  phrases,
		ordered:  ordered,
	}
}

// Classify implements buzz.Classifier.
func (c *VaderClassifier) Classify(_ context.Context, text string) (float64, error) {
	var scores []float64

	rest := text
	for _, p := range c.ordered {
		n := strings.Count(rest, p)
		if n == 0 {
			continue
		}
		for range n {
			scores = append(scores, c.phrases[p])
		}
		rest = strings.ReplaceAll(rest, p, " ")
	}

	if hasLatin(rest) {
		if compound := c.analyzer.PolarityScores(rest).Compound; compound != 0 {
			scores = append(scores, compound)
		}
	}

	if len(scores) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return math.Max(-1, math.Min(1, sum/float64(len(scores)))), nil
}

func hasLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
