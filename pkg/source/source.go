// Package source talks to YouTube: the Data API for charts, search, video
// and channel statistics and comment threads, and the public channel feeds
// for recent upload views.
package source

import (
	"errors"
	"time"

	"github.com/elonfeng/buzzradar/pkg/buzz"
)

// ErrNotFound is returned when the API does not know the requested video.
var ErrNotFound = errors.New("not found")

// Video is one video with its current statistics.
type Video struct {
	ID           string          `json:"id"`
	ChannelID    string          `json:"channel_id"`
	ChannelTitle string          `json:"channel_title"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CategoryID   string          `json:"category_id"`
	Tags         []string        `json:"tags,omitempty"`
	PublishedAt  time.Time       `json:"published_at"`
	Stats        buzz.VideoStats `json:"stats"`
}

// URL returns the watch page of the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Channel is one channel with its current statistics.
type Channel struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Stats buzz.ChannelStats `json:"stats"`
}

// FeedEntry is one upload listed in a channel feed.
type FeedEntry struct {
	VideoID     string
	Title       string
	PublishedAt time.Time
	Views       int64
	HasViews    bool
}
