package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elonfeng/buzzradar/internal/httpretry"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *httpretry.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string, retry httpretry.Config) *Slack {
	return &Slack{
		client:     newClient(retry),
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	header := n.Title
	if n.ChannelTitle != "" {
		header += " / " + n.ChannelTitle
	}

	// Build Slack Block Kit message.
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("🔥 Topic of the day: %s", header),
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("<%s|%s>\n*%s*", n.URL, n.Title, n.Summary()),
			},
		},
	}

	if len(n.Comments) > 0 {
		var elements []map[string]any
		for _, c := range n.Comments {
			elements = append(elements, map[string]any{
				"type": "mrkdwn",
				"text": "> " + strings.ReplaceAll(c, "\n", " "),
			})
		}
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": elements,
		})
	}

	body, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return post(ctx, s.client, "slack", s.webhookURL, body, nil)
}
