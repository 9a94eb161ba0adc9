package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

func fastRetry() httpretry.Config {
	return httpretry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

type capture struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func (c *capture) handler(status func(n int) int) http.HandlerFunc {
	var calls atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status(int(calls.Add(1))))
	}
}

func ok(int) int { return http.StatusOK }

func testNotification() *Notification {
	rec := buzz.Record{
		VideoID:        "abc123",
		ComputedAt:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Total:          72.5,
		Sentiment:      buzz.SentimentResult{Dominant: buzz.SentimentPositive},
		Trend:          buzz.TrendIncreasing,
		EngagementRate: 4.25,
		Foreign:        buzz.ForeignReaction{Examples: []string{"so cute\nlove it"}},
	}
	return FromRecord(rec, "Cat video", "Cat Channel")
}

func TestFromRecord(t *testing.T) {
	n := testNotification()
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", n.URL)
	assert.Equal(t, 72.5, n.Score)
	assert.Equal(t, "Score 72.5 | positive | trend increasing | engagement 4.25%", n.Summary())

	untitled := FromRecord(buzz.Record{VideoID: "x"}, "", "")
	assert.Equal(t, "x", untitled.Title)
}

func TestSlack_Send(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(ok))
	defer srv.Close()

	require.NoError(t, NewSlack(srv.URL, fastRetry()).Send(context.Background(), testNotification()))

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Equal(t, "context", payload.Blocks[2]["type"])
}

func TestDiscord_RetriesServerErrors(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(func(n int) int {
		if n == 1 {
			return http.StatusBadGateway
		}
		return http.StatusNoContent
	}))
	defer srv.Close()

	require.NoError(t, NewDiscord(srv.URL, fastRetry()).Send(context.Background(), testNotification()))
	assert.Len(t, c.bodies, 2)

	var payload struct {
		Embeds []map[string]any `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[1], &payload))
	assert.Equal(t, "2026-05-01T09:00:00Z", payload.Embeds[0]["timestamp"])
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", payload.Embeds[0]["url"])
}

func TestWebhook_Signature(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(ok))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "s3cret", fastRetry()).Send(context.Background(), testNotification()))

	body := c.bodies[0]
	assert.Equal(t, Sign("s3cret", body), c.headers[0].Get(SignatureHeader))
	assert.Equal(t, "buzzradar/1.0", c.headers[0].Get("User-Agent"))

	var got Notification
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "abc123", got.VideoID)
	assert.Equal(t, buzz.TrendIncreasing, got.Trend)
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(func(int) int { return http.StatusBadRequest }))
	defer srv.Close()

	err := NewWebhook(srv.URL, "", fastRetry()).Send(context.Background(), testNotification())
	assert.ErrorContains(t, err, "status 400")
	assert.Len(t, c.bodies, 1)
	assert.Empty(t, c.headers[0].Get(SignatureHeader))
}

type fakeNotifier struct {
	name string
	err  error
	sent int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(context.Context, *Notification) error {
	f.sent++
	return f.err
}

func TestManager_Broadcast(t *testing.T) {
	good := &fakeNotifier{name: "good"}
	bad := &fakeNotifier{name: "bad", err: errors.New("down")}

	outcomes := map[string]error{}
	m := NewManager([]Notifier{good, bad}, func(name string, err error) { outcomes[name] = err })
	assert.True(t, m.HasNotifiers())

	err := m.Broadcast(context.Background(), testNotification())
	assert.ErrorContains(t, err, "bad: down")
	assert.Equal(t, 1, good.sent)
	assert.Equal(t, 1, bad.sent)
	assert.NoError(t, outcomes["good"])
	assert.Error(t, outcomes["bad"])

	assert.False(t, NewManager(nil, nil).HasNotifiers())
}
