// Package mailer sends transactional email through the Resend API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned by Send when no API key was provided.
var ErrNotConfigured = errors.New("email provider not configured")

// Email is one outgoing message.
type Email struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Resend is a minimal client for POST /emails.
type Resend struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func NewResend(baseURL, apiKey, from string) *Resend {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	return &Resend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendPayload struct {
	From string `json:"from"`
	Email
}

// Send delivers the email and returns the provider message id.
func (r *Resend) Send(ctx context.Context, email Email) (string, error) {
	if r.apiKey == "" {
		return "", ErrNotConfigured
	}

	data, err := json.Marshal(sendPayload{From: r.from, Email: email})
	if err != nil {
		return "", fmt.Errorf("resend marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("resend read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("resend decode response: %w", err)
	}
	return out.ID, nil
}
