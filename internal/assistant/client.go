package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parleychat/parley/internal/chat"
)

// Client proxies prompts to an external completion API. Any transport or
// backend failure surfaces as chat.ErrExternalService so handlers map it
// to a 502.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an assistant client for the given backend.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Reply string `json:"reply"`
}

// Complete sends a prompt and returns the backend's reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: assistant backend returned %d", chat.ErrExternalService, resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: undecodable assistant response", chat.ErrExternalService)
	}
	return out.Reply, nil
}
