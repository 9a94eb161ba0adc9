package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/buzzradar/internal/httpretry"
)

const polarityPrompt = `You rate the sentiment of a single YouTube comment. Comments may be written in any language, including Japanese, and may contain slang or emoji.

Return a polarity between -1.0 and 1.0:
- 1.0: enthusiastic praise
- 0.5: mildly positive
- 0.0: neutral, factual, or a question
- -0.5: mildly negative
- -1.0: hostile or disgusted

Comment:
%s

Respond with a JSON object {"polarity": <number>} and nothing else.`

// Providers supported by LLMClassifier.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMClassifier asks a chat model for the polarity of each comment.
type LLMClassifier struct {
	client   *httpretry.Client
	provider string
	model    string
	apiKey   string
	baseURL  string
}

// NewLLMClassifier creates a classifier for provider ("openai" or
// "anthropic"). Empty model and baseURL select the provider defaults.
func NewLLMClassifier(provider, model, apiKey, baseURL string, retry httpretry.Config) *LLMClassifier {
	if model == "" {
		switch provider {
		case ProviderAnthropic:
			model = "claude-3-5-haiku-latest"
		default:
			model = "gpt-4o-mini"
		}
	}
	if baseURL == "" {
		switch provider {
		case ProviderAnthropic:
			baseURL = "https://api.anthropic.com"
		default:
			baseURL = "https://api.openai.com"
		}
	}
	return &LLMClassifier{
		client:   httpretry.New(&http.Client{Timeout: 30 * time.Second}, retry, nil),
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Classify implements buzz.Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (float64, error) {
	prompt := fmt.Sprintf(polarityPrompt, truncate(text, 2000))

	var raw string
	var err error
	switch c.provider {
	case ProviderAnthropic:
		raw, err = c.callAnthropic(ctx, prompt)
	default:
		raw, err = c.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return 0, err
	}
	return parsePolarity(raw)
}

func parsePolarity(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	// Models sometimes wrap the answer in a markdown code block.
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
	}

	var out struct {
		Polarity *float64 `json:"polarity"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("parse llm response: %w (raw: %s)", err, truncate(raw, 200))
	}
	if out.Polarity == nil || math.IsNaN(*out.Polarity) {
		return 0, fmt.Errorf("llm response has no polarity (raw: %s)", truncate(raw, 200))
	}
	return math.Max(-1, math.Min(1, *out.Polarity)), nil
}

func (c *LLMClassifier) callOpenAI(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.post(ctx, "openai", c.baseURL+"/v1/chat/completions", headers, payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *LLMClassifier) callAnthropic(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 64,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := c.post(ctx, "anthropic", c.baseURL+"/v1/messages", headers, payload, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", errors.New("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func (c *LLMClassifier) post(ctx context.Context, name, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}

	resp, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
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
		return fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
