package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

const channelFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Channel A</title>
 <entry>
  <id>yt:video:v1</id>
  <yt:videoId>v1</yt:videoId>
  <title>First upload</title>
  <published>2026-05-30T10:00:00+00:00</published>
  <media:group>
   <media:title>First upload</media:title>
   <media:community>
    <media:starRating count="10" average="5.00" min="1" max="5"/>
    <media:statistics views="3000"/>
   </media:community>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:v2</id>
  <yt:videoId>v2</yt:videoId>
  <title>Second upload</title>
  <published>2026-05-29T10:00:00+00:00</published>
  <media:group>
   <media:community>
    <media:statistics views="1000"/>
   </media:community>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:v3</id>
  <yt:videoId>v3</yt:videoId>
  <title>Premiere</title>
 </entry>
</feed>`

const emptyFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Empty</title></feed>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/videos.xml" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("channel_id") {
		case "chan-a":
			w.Write([]byte(channelFeedXML))
		case "empty":
			w.Write([]byte(emptyFeedXML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChannelFeed_Entries(t *testing.T) {
	srv := newFeedServer(t)
	feed := NewChannelFeed(srv.URL, httpretry.Config{MaxRetries: 0})

	entries, err := feed.Entries(context.Background(), "chan-a")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "v1", entries[0].VideoID)
	assert.Equal(t, "First upload", entries[0].Title)
	assert.Equal(t, int64(3000), entries[0].Views)
	assert.True(t, entries[0].HasViews)
	assert.Equal(t, time.Date(2026, 5, 30, 10, 0, 0, 0, time.UTC), entries[0].PublishedAt)
	assert.False(t, entries[2].HasViews)
}

func TestChannelFeed_AverageRecentViews(t *testing.T) {
	srv := newFeedServer(t)
	feed := NewChannelFeed(srv.URL, httpretry.Config{MaxRetries: 0})
	ctx := context.Background()

	avg, err := feed.AverageRecentViews(ctx, "chan-a")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, avg)

	_, err = feed.AverageRecentViews(ctx, "empty")
	assert.ErrorIs(t, err, buzz.ErrUnavailable)

	_, err = feed.AverageRecentViews(ctx, "unknown")
	assert.ErrorIs(t, err, buzz.ErrUnavailable)
}
