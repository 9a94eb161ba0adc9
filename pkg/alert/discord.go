package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/buzzradar/internal/httpretry"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *httpretry.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string, retry httpretry.Config) *Discord {
	return &Discord{
		client:     newClient(retry),
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var quotes []string
	for _, c := range n.Comments {
		quotes = append(quotes, "> "+strings.ReplaceAll(c, "\n", " "))
	}

	description := fmt.Sprintf("**%s**", n.Summary())
	if n.ChannelTitle != "" {
		description = n.ChannelTitle + "\n" + description
	}
	if len(quotes) > 0 {
		description += "\n\n" + strings.Join(quotes, "\n")
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🔥 %s", n.Title),
		"url":         n.URL,
		"description": description,
		"color":       0xFF0000,
		"timestamp":   n.ComputedAt.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return post(ctx, d.client, "discord", d.webhookURL, body, nil)
}
