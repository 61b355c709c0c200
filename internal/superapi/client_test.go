package superapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/send-message", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"wamid.ABC"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, 0)
	resp, err := c.SendMessage(context.Background(), "tok-123", SendRequest{
		ChatID:   "5491122334455@c.us",
		Message:  "hola",
		Platform: "whatsapp",
		Client:   "empresa-1",
		Media:    &Media{URL: "https://cdn.test/a.png", Type: "image"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "wamid.ABC", resp.ExternalID())
	assert.Equal(t, "5491122334455@c.us", got.ChatID)
	assert.Equal(t, "empresa-1", got.Client)
	require.NotNil(t, got.Media)
	assert.Equal(t, "image", got.Media.Type)
}

func TestSendMessageOmitsMediaWhenNil(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, 100).SendMessage(context.Background(), "t", SendRequest{ChatID: "1", Message: "x", Platform: "instagram", Client: "c"})
	require.NoError(t, err)

	_, hasMedia := raw["media"]
	assert.False(t, hasMedia)
	assert.Equal(t, "", resp.ExternalID())
}

func TestSendMessageNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, 0).SendMessage(context.Background(), "bad", SendRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad token")
}

func TestSendMessageNonJSONSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`queued`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, 0).SendMessage(context.Background(), "t", SendRequest{ChatID: "1", Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "", resp.ExternalID())
	assert.Equal(t, "queued", string(resp.Raw))
}

func TestSendMessageExplicitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":false,"error":"session closed"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, 0).SendMessage(context.Background(), "t", SendRequest{ChatID: "1", Message: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "session closed")
}

func TestExternalIDPrecedence(t *testing.T) {
	assert.Equal(t, "", (*SendResponse)(nil).ExternalID())
	assert.Equal(t, "a", (&SendResponse{MessageID: "a", ID: "b"}).ExternalID())
	assert.Equal(t, "b", (&SendResponse{ID: "b", Data: &sendData{ID: "c"}}).ExternalID())
	assert.Equal(t, "d", (&SendResponse{Data: &sendData{ID: "c", MessageID: "d"}}).ExternalID())
}
