package source

import "strings"

// Filter matches candidate videos by keywords in their title, description
// and tags. With no include keywords every video matches unless excluded.
type Filter struct {
	keywords []string
	exclude  []string
}

// NewFilter creates a case-insensitive keyword filter.
func NewFilter(keywords, excludeKeywords []string) *Filter {
	return &Filter{keywords: lowerAll(keywords), exclude: lowerAll(excludeKeywords)}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, strings.ToLower(kw))
		}
	}
	return out
}

// Matches reports whether text passes the filter.
func (f *Filter) Matches(text string) bool {
	lower := strings.ToLower(text)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	if len(f.keywords) == 0 {
		return true
	}
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchesVideo applies the filter to a video's text fields.
func (f *Filter) MatchesVideo(v Video) bool {
	if f == nil {
		return true
	}
	return f.Matches(v.Title + " " + v.Description + " " + strings.Join(v.Tags, " "))
}
