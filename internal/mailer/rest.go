package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"github.com/parbhatkapila4/vectormail-worker/internal/service"
)

// RestStrategy sends through the transactional send API with a flat payload.
type RestStrategy struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewRestStrategy(apiURL string, apiKey string) *RestStrategy {
	return &RestStrategy{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type restSendRequest struct {
	From        string              `json:"from"`
	To          []string            `json:"to"`
	CC          []string            `json:"cc,omitempty"`
	BCC         []string            `json:"bcc,omitempty"`
	Subject     string              `json:"subject"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type restSendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts the flat payload to the send API
func (s *RestStrategy) Send(ctx context.Context, account *models.Account, payload *models.RestSendPayload) (*service.SendResult, error) {
	if s.apiURL == "" {
		return nil, fmt.Errorf("send API not configured")
	}

	reqBody := restSendRequest{
		From:        account.EmailAddress,
		To:          payload.To,
		CC:          payload.CC,
		BCC:         payload.BCC,
		Subject:     payload.Subject,
		Text:        payload.Body,
		HTML:        payload.BodyHTML,
		Attachments: payload.Attachments,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read send response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("send API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed restSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse send response: %w", err)
	}
	return &service.SendResult{ProviderMessageID: parsed.ID}, nil
}
