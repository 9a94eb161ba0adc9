package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

const defaultFeedBase = "https://www.youtube.com"

// ChannelFeed reads the public Atom feed of a channel, which lists its
// latest uploads with view counts.
type ChannelFeed struct {
	client  *httpretry.Client
	parser  *gofeed.Parser
	baseURL string
}

// NewChannelFeed creates a feed reader. An empty baseURL uses youtube.com.
func NewChannelFeed(baseURL string, retry httpretry.Config) *ChannelFeed {
	if baseURL == "" {
		baseURL = defaultFeedBase
	}
	return &ChannelFeed{
		client:  httpretry.New(&http.Client{Timeout: 30 * time.Second}, retry, nil),
		parser:  gofeed.NewParser(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Entries returns the uploads listed in the channel feed, newest first.
func (f *ChannelFeed) Entries(ctx context.Context, channelID string) ([]FeedEntry, error) {
	feedURL := f.baseURL + "/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
	resp, err := f.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "buzzradar/1.0")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch channel feed %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("channel feed %s: %w", channelID, buzz.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel feed %s status %d", channelID, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse channel feed %s: %w", channelID, err)
	}

	entries := make([]FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		e := FeedEntry{
			VideoID: extValue(item.Extensions, "yt", "videoId"),
			Title:   item.Title,
		}
		if item.PublishedParsed != nil {
			e.PublishedAt = item.PublishedParsed.UTC()
		}
		if views, ok := mediaViews(item.Extensions); ok {
			e.Views = views
			e.HasViews = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AverageRecentViews averages the view counts of the feed's uploads. A feed
// without any view statistics wraps buzz.ErrUnavailable.
func (f *ChannelFeed) AverageRecentViews(ctx context.Context, channelID string) (float64, error) {
	entries, err := f.Entries(ctx, channelID)
	if err != nil {
		return 0, err
	}

	var sum int64
	n := 0
	for _, e := range entries {
		if e.HasViews {
			sum += e.Views
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("channel feed %s has no view counts: %w", channelID, buzz.ErrUnavailable)
	}
	return float64(sum) / float64(n), nil
}

func extValue(exts ext.Extensions, ns, name string) string {
	if vals := exts[ns][name]; len(vals) > 0 {
		return vals[0].Value
	}
	return ""
}

// mediaViews reads media:group/media:community/media:statistics@views.
func mediaViews(exts ext.Extensions) (int64, bool) {
	groups := exts["media"]["group"]
	if len(groups) == 0 {
		return 0, false
	}
	community := groups[0].Children["community"]
	if len(community) == 0 {
		return 0, false
	}
	stats := community[0].Children["statistics"]
	if len(stats) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(stats[0].Attrs["views"], 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
