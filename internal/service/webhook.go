package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/phone"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/logger"
)

var (
	// ErrWebhookSecretMissing means the server has no secret to verify against.
	ErrWebhookSecretMissing = errors.New("webhook secret not configured")
	// ErrInvalidSignature is returned for a missing or mismatching signature.
	ErrInvalidSignature = &apperrors.AuthorizationError{Message: "Invalid signature"}
)

// VerifySignature checks an X-Hub-Signature-256 style header against the
// HMAC-SHA256 of body. The "sha256=" prefix is optional.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "sha256=")
	if header == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.ToLower(header))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value VerifySignature accepts for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyChallenge answers the provider's GET handshake.
func VerifyChallenge(verifyToken, mode, token string) bool {
	if verifyToken == "" || mode != "subscribe" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(verifyToken), []byte(token)) == 1
}

// WebhookPayload is the gateway event body.
type WebhookPayload struct {
	Event      string      `json:"event"`
	Client     string      `json:"client,omitempty"`
	InstanceID string      `json:"instanceId,omitempty"`
	Data       WebhookData `json:"data"`
}

type WebhookData struct {
	ChatID    string          `json:"chatId"`
	From      string          `json:"from,omitempty"`
	FromMe    bool            `json:"fromMe,omitempty"`
	Message   string          `json:"message,omitempty"`
	Body      string          `json:"body,omitempty"`
	Platform  string          `json:"platform,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Media     *WebhookMedia   `json:"media,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type WebhookMedia struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Text returns message, falling back to body.
func (d WebhookData) Text() string {
	if d.Message != "" {
		return d.Message
	}
	return d.Body
}

// SentAt decodes the timestamp as unix seconds, unix millis or RFC3339.
func (d WebhookData) SentAt() (time.Time, bool) {
	raw := strings.Trim(string(d.Timestamp), `"`)
	if raw == "" || raw == "null" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// SenderRole derives who wrote the message. Outgoing events and anything
// flagged fromMe (message_create echoes included) belong to the team.
func SenderRole(p WebhookPayload) string {
	switch strings.ToLower(p.Event) {
	case "message.sent", "message.outgoing":
		return domain.SenderTeam
	}
	if p.Data.FromMe {
		return domain.SenderTeam
	}
	return domain.SenderLead
}

// WebhookResult reports what Ingest did with an event.
type WebhookResult struct {
	Skipped bool            `json:"skipped,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
}

// WebhookService stores inbound gateway events as messages.
type WebhookService struct {
	leads     LeadStore
	messages  MessageStore
	instances InstanceStore
	hub       Broadcaster
	metrics   *metrics.Metrics
	now       func() time.Time
	log       *logger.Logger
}

func NewWebhookService(leads LeadStore, messages MessageStore, instances InstanceStore, hub Broadcaster, m *metrics.Metrics) *WebhookService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &WebhookService{
		leads:     leads,
		messages:  messages,
		instances: instances,
		hub:       hub,
		metrics:   m,
		now:       time.Now,
		log:       logger.Component("webhook-chat"),
	}
}

// Ingest resolves the lead of an already verified payload and records the
// message. A missing lead is not an error.
func (s *WebhookService) Ingest(ctx context.Context, p WebhookPayload) (*WebhookResult, error) {
	log := s.log.WithFields(map[string]interface{}{"event": p.Event, "client": p.Client})

	instance, err := s.resolveInstance(ctx, p)
	if err != nil {
		s.metrics.WebhookEvent("error")
		return nil, err
	}

	raw := p.Data.ChatID
	if raw == "" {
		raw = p.Data.From
	}
	digits := phone.Normalize(raw)
	if digits == "" {
		log.Info("webhook skipped: no phone in payload")
		s.metrics.WebhookEvent("skipped")
		return &WebhookResult{Skipped: true, Reason: "no phone in payload"}, nil
	}

	var scope *uuid.UUID
	if instance != nil {
		scope = &instance.EmpresaID
	}
	lead, err := s.leads.FindByPhone(ctx, scope, digits)
	if err != nil {
		s.metrics.WebhookEvent("error")
		return nil, err
	}
	if lead == nil {
		log.WithField("phone", digits).Info("webhook skipped: no lead for phone")
		s.metrics.WebhookEvent("skipped")
		return &WebhookResult{Skipped: true, Reason: "lead not found for " + digits}, nil
	}

	channel := p.Data.Platform
	if !phone.ValidChannel(channel) {
		channel = lead.Channel
	}
	if channel == "" {
		channel = phone.ChannelWhatsApp
	}

	msg := &domain.Message{
		EmpresaID: lead.EmpresaID,
		LeadID:    lead.ID,
		Sender:    SenderRole(p),
		Content:   p.Data.Text(),
		Channel:   channel,
		Metadata: map[string]interface{}{
			domain.MetaEvent:    p.Event,
			domain.MetaPlatform: channel,
		},
		Status: "received",
	}
	if instance != nil {
		msg.Metadata[domain.MetaInstanceID] = instance.ID.String()
	}
	if p.Data.MessageID != "" {
		ext := p.Data.MessageID
		msg.ExternalID = &ext
	}
	if p.Data.Media != nil && p.Data.Media.URL != "" {
		msg.MediaURL = &p.Data.Media.URL
		if p.Data.Media.Type != "" {
			msg.MediaType = &p.Data.Media.Type
		}
	}
	if msg.Sender == domain.SenderTeam {
		msg.Status = "sent"
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		s.metrics.WebhookEvent("error")
		return nil, err
	}

	at := msg.CreatedAt
	if sent, ok := p.Data.SentAt(); ok {
		at = sent
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.leads.TouchLastMessage(ctx, lead.ID, at); err != nil {
		log.WithError(err).Warn("failed to touch lead last_message_at")
	}

	s.hub.BroadcastToEmpresa(lead.EmpresaID, ws.EventNewMessage, msg)
	s.metrics.WebhookEvent("stored")
	return &WebhookResult{Message: msg}, nil
}

func (s *WebhookService) resolveInstance(ctx context.Context, p WebhookPayload) (*domain.Instance, error) {
	if id, err := uuid.Parse(p.InstanceID); err == nil {
		inst, err := s.instances.Get(ctx, id)
		if err != nil || inst != nil {
			return inst, err
		}
	}
	if p.Client != "" {
		return s.instances.FindByClient(ctx, p.Client)
	}
	return nil, nil
}
