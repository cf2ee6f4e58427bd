package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const restReleaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`

// RestBackend talks to an Upstash-style key-value store over its REST API.
// Commands are posted as JSON arrays; acquire maps to SET NX EX and release
// to a server-side EVAL so the compare-and-delete stays atomic.
type RestBackend struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewRestBackend(baseURL string, authToken string) *RestBackend {
	return &RestBackend{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *RestBackend) Name() string { return "rest" }

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (b *RestBackend) execute(ctx context.Context, command []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kv rest request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kv rest returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed restResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("kv rest error: %s", parsed.Error)
	}
	return parsed.Result, nil
}

func (b *RestBackend) Acquire(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	result, err := b.execute(ctx, []interface{}{"SET", key, token, "NX", "EX", strconv.FormatInt(seconds, 10)})
	if err != nil {
		return false, err
	}

	// SET NX answers "OK" when the key was set and null when it already exists
	var status *string
	if err := json.Unmarshal(result, &status); err != nil {
		return false, fmt.Errorf("unexpected set response %s: %w", string(result), err)
	}
	return status != nil && *status == "OK", nil
}

func (b *RestBackend) Release(ctx context.Context, key string, token string) error {
	_, err := b.execute(ctx, []interface{}{"EVAL", restReleaseScript, "1", key, token})
	return err
}
