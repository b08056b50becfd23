package polish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls the hosted correction service. One retry, short timeout:
// the coordinator's window is the real deadline.
type Client struct {
	http *resty.Client
}

// ClientConfig holds correction service settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type polishRequest struct {
	Text    string `json:"text"`
	TraceID string `json:"traceId"`
}

type polishResponse struct {
	Text    string `json:"text"`
	Message string `json:"message,omitempty"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("polish service base URL is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	http := resty.New()
	http.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	http.SetTimeout(cfg.Timeout)
	http.SetRetryCount(1)
	http.SetRetryWaitTime(500 * time.Millisecond)
	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: http}, nil
}

// Polish returns the corrected version of text.
func (c *Client) Polish(ctx context.Context, text, traceID string) (string, error) {
	var out polishResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(polishRequest{Text: text, TraceID: traceID}).
		SetResult(&out).
		Post("/v1/polish")
	if err != nil {
		return "", fmt.Errorf("polish request failed: %w", err)
	}
	if resp.IsError() {
		message := out.Message
		if message == "" {
			message = resp.Status()
		}
		return "", fmt.Errorf("polish service returned %s", message)
	}
	return strings.TrimSpace(out.Text), nil
}
