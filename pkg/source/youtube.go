package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

const (
	defaultAPIBase   = "https://www.googleapis.com/youtube/v3"
	maxIDsPerRequest = 50
	maxPageSize      = 100
)

// YouTubeConfig configures the Data API client.
type YouTubeConfig struct {
	APIKey  string
	BaseURL string

	// RequestsPerSecond throttles API calls; 0 disables throttling.
	RequestsPerSecond float64
	Retry             httpretry.Config
	HTTPClient        *http.Client
	Clock             clockwork.Clock
}

// YouTube is a YouTube Data API v3 client.
type YouTube struct {
	client  *httpretry.Client
	apiKey  string
	baseURL string
	clock   clockwork.Clock
}

// NewYouTube creates a client.
func NewYouTube(cfg YouTubeConfig) *YouTube {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIBase
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &YouTube{
		client:  httpretry.New(cfg.HTTPClient, cfg.Retry, limiter),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		clock:   cfg.Clock,
	}
}

// Trending returns the mostPopular chart for regionCode, optionally limited
// to one video category.
func (y *YouTube) Trending(ctx context.Context, regionCode, categoryID string, max int) ([]Video, error) {
	if max <= 0 || max > 50 {
		max = 50
	}
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("chart", "mostPopular")
	params.Set("regionCode", regionCode)
	params.Set("maxResults", strconv.Itoa(max))
	if categoryID != "" {
		params.Set("videoCategoryId", categoryID)
	}

	var result ytVideoResult
	if err := y.get(ctx, "videos", params, &result); err != nil {
		return nil, fmt.Errorf("youtube trending %s: %w", regionCode, err)
	}
	return y.toVideos(result), nil
}

// Search returns ids of videos matching query published after since,
// ordered by view count.
func (y *YouTube) Search(ctx context.Context, query string, since time.Time, max int) ([]string, error) {
	if max <= 0 || max > 50 {
		max = 20
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("order", "viewCount")
	params.Set("maxResults", strconv.Itoa(max))
	if !since.IsZero() {
		params.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	}

	var result ytSearchResult
	if err := y.get(ctx, "search", params, &result); err != nil {
		return nil, fmt.Errorf("youtube search %q: %w", query, err)
	}

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// Videos fetches snippet and statistics for ids, 50 per request. Unknown ids
// are silently absent from the result.
func (y *YouTube) Videos(ctx context.Context, ids []string) ([]Video, error) {
	var out []Video
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))

		params := url.Values{}
		params.Set("part", "snippet,statistics")
		params.Set("id", strings.Join(ids[start:end], ","))

		var result ytVideoResult
		if err := y.get(ctx, "videos", params, &result); err != nil {
			return out, fmt.Errorf("youtube videos: %w", err)
		}
		out = append(out, y.toVideos(result)...)
	}
	return out, nil
}

// Video fetches one video. A video the API does not return yields ErrNotFound.
func (y *YouTube) Video(ctx context.Context, id string) (Video, error) {
	videos, err := y.Videos(ctx, []string{id})
	if err != nil {
		return Video{}, err
	}
	if len(videos) == 0 {
		return Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return videos[0], nil
}

// Channel fetches channel statistics. Average recent views are not part of
// the API response and are marked missing; see ChannelFeed.
func (y *YouTube) Channel(ctx context.Context, id string) (Channel, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", id)

	var result ytChannelResult
	if err := y.get(ctx, "channels", params, &result); err != nil {
		return Channel{}, fmt.Errorf("youtube channel %s: %w", id, err)
	}
	if len(result.Items) == 0 {
		return Channel{}, fmt.Errorf("channel %s: %w", id, buzz.ErrUnavailable)
	}

	item := result.Items[0]
	st := item.Statistics
	subs, subsOK := parseCount(st.SubscriberCount)
	total, _ := parseCount(st.ViewCount)
	return Channel{
		ID:    item.ID,
		Title: item.Snippet.Title,
		Stats: buzz.ChannelStats{
			ChannelID:          item.ID,
			SubscriberCount:    subs,
			TotalViewCount:     total,
			CapturedAt:         y.clock.Now().UTC(),
			SubscribersHidden:  st.HiddenSubscriberCount || !subsOK,
			RecentViewsMissing: true,
		},
	}, nil
}

// Comments returns up to max top-level comments ordered by relevance,
// following page tokens. Comments disabled on the video wrap
// buzz.ErrUnavailable.
func (y *YouTube) Comments(ctx context.Context, videoID string, max int) ([]buzz.Comment, error) {
	if max <= 0 {
		max = maxPageSize
	}

	var out []buzz.Comment
	pageToken := ""
	for len(out) < max {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("videoId", videoID)
		params.Set("order", "relevance")
		params.Set("textFormat", "plainText")
		params.Set("maxResults", strconv.Itoa(min(max-len(out), maxPageSize)))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var result ytCommentThreadResult
		if err := y.get(ctx, "commentThreads", params, &result); err != nil {
			return nil, fmt.Errorf("youtube comments %s: %w", videoID, err)
		}

		for _, item := range result.Items {
			top := item.Snippet.TopLevelComment.Snippet
			out = append(out, buzz.Comment{
				Text:        top.TextDisplay,
				LikeCount:   top.LikeCount,
				ReplyCount:  item.Snippet.TotalReplyCount,
				PublishedAt: top.PublishedAt,
			})
		}

		pageToken = result.NextPageToken
		if pageToken == "" || len(result.Items) == 0 {
			break
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (y *YouTube) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if y.apiKey == "" {
		return fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY)")
	}
	params.Set("key", y.apiKey)
	reqURL := y.baseURL + "/" + endpoint + "?" + params.Encode()

	resp, err := y.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// APIError is a non-200 response from the Data API.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube status %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube status %d: %s", e.Status, e.Message)
}

// Unwrap maps reasons for data the platform withholds onto buzz.ErrUnavailable.
func (e *APIError) Unwrap() error {
	switch e.Reason {
	case "commentsDisabled", "channelNotFound", "videoNotFound":
		return buzz.ErrUnavailable
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error.Message
		if len(payload.Error.Errors) > 0 {
			apiErr.Reason = payload.Error.Errors[0].Reason
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (y *YouTube) toVideos(result ytVideoResult) []Video {
	now := y.clock.Now().UTC()
	videos := make([]Video, 0, len(result.Items))
	for _, item := range result.Items {
		st := item.Statistics
		views, _ := parseCount(st.ViewCount)
		likes, likesOK := parseCount(st.LikeCount)
		comments, commentsOK := parseCount(st.CommentCount)

		videos = append(videos, Video{
			ID:           item.ID,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			Title:        item.Snippet.Title,
			Description:  truncate(item.Snippet.Description, 500),
			CategoryID:   item.Snippet.CategoryID,
			Tags:         item.Snippet.Tags,
			PublishedAt:  item.Snippet.PublishedAt,
			Stats: buzz.VideoStats{
				VideoID:          item.ID,
				ViewCount:        views,
				LikeCount:        likes,
				CommentCount:     comments,
				PublishedAt:      item.Snippet.PublishedAt,
				CapturedAt:       now,
				LikesHidden:      !likesOK,
				CommentsDisabled: !commentsOK,
			},
		})
	}
	return videos
}

// parseCount parses a string counter; absent counters report ok=false.
func parseCount(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type ytSearchResult struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type ytSnippet struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelTitle string    `json:"channelTitle"`
	ChannelID    string    `json:"channelId"`
	CategoryID   string    `json:"categoryId"`
	Tags         []string  `json:"tags"`
	PublishedAt  time.Time `json:"publishedAt"`
}

type ytVideoResult struct {
	Items []struct {
		ID         string    `json:"id"`
		Snippet    ytSnippet `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type ytChannelResult struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount             string `json:"viewCount"`
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
			VideoCount            string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type ytCommentThreadResult struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			TotalReplyCount int64 `json:"totalReplyCount"`
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string    `json:"textDisplay"`
					LikeCount   int64     `json:"likeCount"`
					PublishedAt time.Time `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}
