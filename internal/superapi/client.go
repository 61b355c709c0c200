// Package superapi is the HTTP client for the Super API messaging gateway
// that relays messages to WhatsApp, Instagram and Facebook.
package superapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/naperu/embudo/pkg/logger"
	"golang.org/x/time/rate"
)

const sendMessagePath = "/api/v1/send-message"

// Client is a rate-limited HTTP client for the Super API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a new Super API client. rps <= 0 disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Component("superapi"),
	}
}

// Media is an attachment sent along with a message.
type Media struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
}

// SendRequest is the body of POST /api/v1/send-message.
type SendRequest struct {
	ChatID   string `json:"chatId"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
	Client   string `json:"client"`
	Media    *Media `json:"media,omitempty"`
}

// SendResponse is the gateway answer. The gateway is not consistent about
// where it puts the message id, so every known location is decoded.
type SendResponse struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"messageId"`
	ID        string          `json:"id"`
	Data      *sendData       `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

type sendData struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

// ExternalID returns the gateway's id for the sent message, if it gave one.
func (r *SendResponse) ExternalID() string {
	switch {
	case r == nil:
		return ""
	case r.MessageID != "":
		return r.MessageID
	case r.ID != "":
		return r.ID
	case r.Data != nil && r.Data.MessageID != "":
		return r.Data.MessageID
	case r.Data != nil:
		return r.Data.ID
	}
	return ""
}

// APIError is returned when the gateway answers with a non-2xx status or
// explicitly reports "success": false.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superapi returned %d: %s", e.StatusCode, e.Body)
}

// SendMessage issues one outbound message with the instance's bearer token.
func (c *Client) SendMessage(ctx context.Context, token string, req SendRequest) (*SendResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, sendMessagePath, token, req)
	if err != nil {
		return nil, err
	}

	// a 2xx means the gateway took the message, so an unreadable body only
	// costs us the external id
	resp := &SendResponse{Raw: body}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}
	var flag struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &flag); err != nil {
		c.log.WithError(err).Warn("superapi returned a non-JSON success body")
		return &SendResponse{Raw: body}, nil
	}
	if flag.Success != nil && !*flag.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Body: string(body)}
	}
	if err := json.Unmarshal(body, resp); err != nil {
		c.log.WithError(err).Warn("superapi response did not match the expected shape")
		return &SendResponse{Raw: body}, nil
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("superapi rate limit: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("superapi marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("superapi %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("superapi read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
