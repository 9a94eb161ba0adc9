package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// fakeAPI serves a tiny subset of the Data API.
type fakeAPI struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	if r.URL.Query().Get("key") != "test-key" {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"message": "bad key", "errors": []map[string]string{{"reason": "keyInvalid"}},
		}})
		return
	}

	q := r.URL.Query()
	switch r.URL.Path {
	case "/videos":
		if q.Get("chart") == "mostPopular" {
			writeJSON(w, videoPayload(
				videoItem("jp1", "chan-a", "Cat video", "5000", "100", "10"),
				videoItem("jp2", "chan-b", "Music", "9000", "", "20"),
			))
			return
		}
		var items []map[string]any
		for _, id := range strings.Split(q.Get("id"), ",") {
			switch id {
			case "jp1":
				items = append(items, videoItem("jp1", "chan-a", "Cat video", "5000", "100", "10"))
			case "s1":
				items = append(items, videoItem("s1", "chan-c", "Search hit", "700", "7", ""))
			}
		}
		writeJSON(w, videoPayload(items...))
	case "/search":
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": map[string]string{"videoId": "s1"}},
			{"id": map[string]string{"videoId": "jp1"}},
			{"id": map[string]string{"channelId": "ignored"}},
		}})
	case "/channels":
		switch q.Get("id") {
		case "chan-a":
			writeJSON(w, map[string]any{"items": []map[string]any{{
				"id":         "chan-a",
				"snippet":    map[string]string{"title": "Channel A"},
				"statistics": map[string]any{"viewCount": "123456", "subscriberCount": "4000", "hiddenSubscriberCount": false},
			}}})
		case "chan-hidden":
			writeJSON(w, map[string]any{"items": []map[string]any{{
				"id":         "chan-hidden",
				"statistics": map[string]any{"viewCount": "10", "hiddenSubscriberCount": true},
			}}})
		default:
			writeJSON(w, map[string]any{"items": []any{}})
		}
	case "/commentThreads":
		switch q.Get("videoId") {
		case "disabled":
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
				"message": "comments disabled", "errors": []map[string]string{{"reason": "commentsDisabled"}},
			}})
		default:
			page := q.Get("pageToken")
			next := "p2"
			if page == "p2" {
				next = ""
			}
			writeJSON(w, map[string]any{
				"nextPageToken": next,
				"items": []map[string]any{
					commentItem("hello "+page, 3, 1),
					commentItem("world "+page, 0, 0),
				},
			})
		}
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func videoPayload(items ...map[string]any) map[string]any {
	return map[string]any{"items": items}
}

func videoItem(id, channel, title, views, likes, comments string) map[string]any {
	stats := map[string]string{"viewCount": views}
	if likes != "" {
		stats["likeCount"] = likes
	}
	if comments != "" {
		stats["commentCount"] = comments
	}
	return map[string]any{
		"id": id,
		"snippet": map[string]any{
			"title": title, "channelId": channel, "channelTitle": channel + " title",
			"publishedAt": testNow.Add(-5 * time.Hour).Format(time.RFC3339), "categoryId": "10",
		},
		"statistics": stats,
	}
}

func commentItem(text string, likes, replies int64) map[string]any {
	return map[string]any{"snippet": map[string]any{
		"totalReplyCount": replies,
		"topLevelComment": map[string]any{"snippet": map[string]any{
			"textDisplay": text, "likeCount": likes, "publishedAt": testNow.Format(time.RFC3339),
		}},
	}}
}

func newTestYouTube(t *testing.T, key string) (*YouTube, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	yt := NewYouTube(YouTubeConfig{
		APIKey:     key,
		BaseURL:    srv.URL,
		Retry:      httpretry.Config{MaxRetries: 1, BaseDelay: time.Millisecond},
		HTTPClient: srv.Client(),
		Clock:      clockwork.NewFakeClockAt(testNow),
	})
	return yt, api
}

func TestYouTube_Trending(t *testing.T) {
	yt, api := newTestYouTube(t, "test-key")

	videos, err := yt.Trending(context.Background(), "JP", "10", 0)
	require.NoError(t, err)
	require.Len(t, videos, 2)

	q := api.requests[0].URL.Query()
	assert.Equal(t, "mostPopular", q.Get("chart"))
	assert.Equal(t, "JP", q.Get("regionCode"))
	assert.Equal(t, "10", q.Get("videoCategoryId"))
	assert.Equal(t, "50", q.Get("maxResults"))

	v := videos[0]
	assert.Equal(t, "jp1", v.ID)
	assert.Equal(t, "chan-a", v.ChannelID)
	assert.Equal(t, int64(5000), v.Stats.ViewCount)
	assert.Equal(t, int64(100), v.Stats.LikeCount)
	assert.Equal(t, testNow, v.Stats.CapturedAt)
	assert.Equal(t, testNow.Add(-5*time.Hour), v.PublishedAt)
	assert.False(t, v.Stats.LikesHidden)
	assert.Equal(t, "https://www.youtube.com/watch?v=jp1", v.URL())

	assert.True(t, videos[1].Stats.LikesHidden, "likeCount absent")
}

func TestYouTube_VideoNotFound(t *testing.T) {
	yt, _ := newTestYouTube(t, "test-key")

	v, err := yt.Video(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, v.Stats.CommentsDisabled, "commentCount absent")

	_, err = yt.Video(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, buzz.ErrUnavailable)
}

func TestYouTube_Channel(t *testing.T) {
	yt, _ := newTestYouTube(t, "test-key")
	ctx := context.Background()

	ch, err := yt.Channel(ctx, "chan-a")
	require.NoError(t, err)
	assert.Equal(t, "Channel A", ch.Title)
	assert.Equal(t, int64(4000), ch.Stats.SubscriberCount)
	assert.Equal(t, int64(123456), ch.Stats.TotalViewCount)
	assert.False(t, ch.Stats.SubscribersHidden)
	assert.True(t, ch.Stats.RecentViewsMissing)

	hidden, err := yt.Channel(ctx, "chan-hidden")
	require.NoError(t, err)
	assert.True(t, hidden.Stats.SubscribersHidden)

	_, err = yt.Channel(ctx, "gone")
	assert.ErrorIs(t, err, buzz.ErrUnavailable)
}

func TestYouTube_CommentsPaging(t *testing.T) {
	yt, api := newTestYouTube(t, "test-key")

	comments, err := yt.Comments(context.Background(), "jp1", 3)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "hello ", comments[0].Text)
	assert.Equal(t, int64(3), comments[0].LikeCount)
	assert.Equal(t, int64(1), comments[0].ReplyCount)
	assert.Equal(t, "hello p2", comments[2].Text)

	require.Len(t, api.requests, 2)
	assert.Equal(t, "relevance", api.requests[0].URL.Query().Get("order"))
	assert.Equal(t, "p2", api.requests[1].URL.Query().Get("pageToken"))
	assert.Equal(t, "1", api.requests[1].URL.Query().Get("maxResults"))
}

func TestYouTube_CommentsDisabled(t *testing.T) {
	yt, _ := newTestYouTube(t, "test-key")

	_, err := yt.Comments(context.Background(), "disabled", 10)
	assert.ErrorIs(t, err, buzz.ErrUnavailable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "commentsDisabled", apiErr.Reason)
}

func TestYouTube_Errors(t *testing.T) {
	yt, _ := newTestYouTube(t, "wrong")
	_, err := yt.Trending(context.Background(), "JP", "", 5)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "keyInvalid", apiErr.Reason)
	assert.NotErrorIs(t, err, buzz.ErrUnavailable)

	noKey, _ := newTestYouTube(t, "")
	_, err = noKey.Trending(context.Background(), "JP", "", 5)
	assert.ErrorContains(t, err, "API key required")
}

func TestDiscoverer(t *testing.T) {
	yt, _ := newTestYouTube(t, "test-key")
	d := NewDiscoverer(yt, NewFilter(nil, []string{"music"}), clockwork.NewFakeClockAt(testNow), nil)

	videos, err := d.Discover(context.Background(), DiscoverOptions{
		Regions: []string{"JP"},
		Queries: []string{"cats"},
	})
	require.NoError(t, err)

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	assert.Equal(t, []string{"jp1", "s1"}, ids, "deduplicated, excluded music, ordered by views")
}

func TestDiscoverer_AllLookupsFail(t *testing.T) {
	yt, _ := newTestYouTube(t, "wrong")
	d := NewDiscoverer(yt, nil, nil, nil)

	_, err := d.Discover(context.Background(), DiscoverOptions{})
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	f := NewFilter([]string{"Cat", " "}, []string{"ASMR"})
	assert.True(t, f.Matches("Funny CATS compilation"))
	assert.False(t, f.Matches("cat asmr"))
	assert.False(t, f.Matches("dogs"))

	all := NewFilter(nil, nil)
	assert.True(t, all.Matches("anything"))

	var none *Filter
	assert.True(t, none.MatchesVideo(Video{Title: "x"}))
	assert.True(t, f.MatchesVideo(Video{Title: "x", Tags: []string{"cat"}}))
}
