// Package alert broadcasts the topic of the day to chat and webhook
// destinations.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/buzzradar/internal/httpretry"
	"github.com/elonfeng/buzzradar/pkg/buzz"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	VideoID        string              `json:"video_id"`
	Title          string              `json:"title"`
	ChannelTitle   string              `json:"channel_title"`
	URL            string              `json:"url"`
	Score          float64             `json:"score"`
	Breakdown      buzz.Breakdown      `json:"breakdown"`
	Sentiment      buzz.Sentiment      `json:"dominant_sentiment"`
	Trend          buzz.TrendDirection `json:"trend_direction"`
	EngagementRate float64             `json:"engagement_rate"`
	Comments       []string            `json:"comment_examples,omitempty"`
	ComputedAt     time.Time           `json:"computed_at"`
}

// FromRecord builds the topic-of-the-day notification for rec.
func FromRecord(rec buzz.Record, title, channelTitle string) *Notification {
	if title == "" {
		title = rec.VideoID
	}
	return &Notification{
		VideoID:        rec.VideoID,
		Title:          title,
		ChannelTitle:   channelTitle,
		URL:            "https://www.youtube.com/watch?v=" + rec.VideoID,
		Score:          rec.Total,
		Breakdown:      rec.Breakdown,
		Sentiment:      rec.Sentiment.Dominant,
		Trend:          rec.Trend,
		EngagementRate: rec.EngagementRate,
		Comments:       rec.Foreign.Examples,
		ComputedAt:     rec.ComputedAt,
	}
}

// Summary is the one-line description shared by chat notifiers.
func (n *Notification) Summary() string {
	return fmt.Sprintf("Score %.1f | %s | trend %s | engagement %.2f%%",
		n.Score, n.Sentiment, n.Trend, n.EngagementRate)
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	observe   func(notifier string, err error)
}

// NewManager creates a new alert manager. observe, if set, is called with
// the outcome of every delivery.
func NewManager(notifiers []Notifier, observe func(notifier string, err error)) *Manager {
	return &Manager{notifiers: notifiers, observe: observe}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		err := notifier.Send(ctx, n)
		if m.observe != nil {
			m.observe(notifier.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// post sends body as JSON through client and expects a 2xx answer.
func post(ctx context.Context, client *httpretry.Client, name, url string, body []byte, headers map[string]string) error {
	resp, err := client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send %s webhook: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s webhook status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func newClient(retry httpretry.Config) *httpretry.Client {
	return httpretry.New(&http.Client{Timeout: 10 * time.Second}, retry, nil)
}
