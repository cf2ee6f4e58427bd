package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parbhatkapila4/vectormail-worker/internal/service"
)

const (
	EmbeddingsAPIURL = "https://api.openai.com/v1/embeddings"
	ChatAPIURL       = "https://api.openai.com/v1/chat/completions"

	EmbeddingModel = "text-embedding-3-small"
	SummaryModel   = "gpt-4o-mini"

	// Keep prompts bounded; long marketing emails do not summarize better
	// past this point.
	maxInputChars = 8000
)

type Client struct {
	apiKey        string
	httpClient    *http.Client
	embeddingsURL string
	chatURL       string
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // embedding + summary calls can be slow
		},
		embeddingsURL: EmbeddingsAPIURL,
		chatURL:       ChatAPIURL,
	}
}

// SetEndpoints overrides the provider URLs (used by tests)
func (c *Client) SetEndpoints(embeddingsURL string, chatURL string) {
	c.embeddingsURL = embeddingsURL
	c.chatURL = chatURL
}

// Embed returns an embedding vector for the given text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model": EmbeddingModel,
		"input": truncate(text, maxInputChars),
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, c.embeddingsURL, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}
	return resp.Data[0].Embedding, nil
}

// Summarize returns a short summary of the message
func (c *Client) Summarize(ctx context.Context, msg service.MessageContent) (string, error) {
	reqBody := map[string]interface{}{
		"model": SummaryModel,
		"messages": []map[string]string{
			{"role": "system", "content": "You summarize emails in two or three sentences. Reply with the summary only."},
			{"role": "user", "content": buildSummaryPrompt(msg)},
		},
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, c.chatURL, reqBody, &resp); err != nil {
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary response contained no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, url string, reqBody interface{}, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func buildSummaryPrompt(msg service.MessageContent) string {
	var b strings.Builder
	b.WriteString("From: ")
	b.WriteString(msg.From)
	b.WriteString("\nSubject: ")
	b.WriteString(msg.Subject)
	b.WriteString("\n\n")
	b.WriteString(truncate(msg.Body, maxInputChars))
	return b.String()
}

// truncate cuts s to at most max bytes, backing up to a rune boundary so the
// cut never splits a multi-byte character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
