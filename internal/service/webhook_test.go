package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"message"}`)
	sig := Sign("s3cret", body)

	assert.NoError(t, VerifySignature("s3cret", body, sig))
	assert.NoError(t, VerifySignature("s3cret", body, sig[len("sha256="):]), "prefix is optional")

	err := VerifySignature("s3cret", body, Sign("other", body))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, 403, apperrors.StatusCode(err))

	assert.ErrorIs(t, VerifySignature("s3cret", []byte(`{"event":"tampered"}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", body, "sha256=zz"), ErrInvalidSignature)
	assert.True(t, errors.Is(VerifySignature("", body, sig), ErrWebhookSecretMissing))
}

func TestVerifyChallenge(t *testing.T) {
	assert.True(t, VerifyChallenge("tok", "subscribe", "tok"))
	assert.False(t, VerifyChallenge("tok", "subscribe", "bad"))
	assert.False(t, VerifyChallenge("tok", "unsubscribe", "tok"))
	assert.False(t, VerifyChallenge("", "subscribe", ""))
}

func TestSenderRole(t *testing.T) {
	assert.Equal(t, domain.SenderLead, SenderRole(WebhookPayload{Event: "message"}))
	assert.Equal(t, domain.SenderTeam, SenderRole(WebhookPayload{Event: "message.sent"}))
	assert.Equal(t, domain.SenderTeam, SenderRole(WebhookPayload{Event: "message_create", Data: WebhookData{FromMe: true}}))
}

func TestWebhookData_SentAt(t *testing.T) {
	ts, ok := WebhookData{Timestamp: json.RawMessage(`1700000000`)}.SentAt()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), ts.Unix())

	ts, ok = WebhookData{Timestamp: json.RawMessage(`1700000000123`)}.SentAt()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())

	_, ok = WebhookData{Timestamp: json.RawMessage(`"2024-03-01T10:00:00Z"`)}.SentAt()
	assert.True(t, ok)

	_, ok = WebhookData{}.SentAt()
	assert.False(t, ok)
}

type webhookFixture struct {
	empresaID uuid.UUID
	lead      *domain.Lead
	instance  *domain.Instance
	leads     *fakeLeads
	messages  *fakeMessages
	hub       *fakeHub
	svc       *WebhookService
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{empresaID: uuid.New()}
	p := "51987654321"
	f.lead = &domain.Lead{ID: uuid.New(), EmpresaID: f.empresaID, Name: "Ana", Phone: &p, Channel: "whatsapp"}
	f.instance = &domain.Instance{ID: uuid.New(), EmpresaID: f.empresaID, Channel: "whatsapp", ClientID: "client-1", IsActive: true}
	f.leads = newFakeLeads(f.lead)
	f.messages = newFakeMessages()
	f.hub = &fakeHub{}
	f.svc = NewWebhookService(f.leads, f.messages, newFakeInstances(f.instance), f.hub, nil)
	return f
}

func TestWebhookIngest_StoresInboundMessage(t *testing.T) {
	f := newWebhookFixture()

	res, err := f.svc.Ingest(context.Background(), WebhookPayload{
		Event:  "message",
		Client: "client-1",
		Data: WebhookData{
			ChatID:    "51987654321@c.us",
			Message:   "Hola, quiero información",
			MessageID: "wamid.1",
			Timestamp: json.RawMessage(`1700000000`),
		},
	})
	require.NoError(t, err)
	require.False(t, res.Skipped)

	msg := res.Message
	assert.Equal(t, f.lead.ID, msg.LeadID)
	assert.Equal(t, domain.SenderLead, msg.Sender)
	assert.Equal(t, "Hola, quiero información", msg.Content)
	require.NotNil(t, msg.ExternalID)
	assert.Equal(t, "wamid.1", *msg.ExternalID)
	id, ok := msg.InstanceID()
	require.True(t, ok)
	assert.Equal(t, f.instance.ID, id)

	assert.Equal(t, int64(1700000000), f.leads.touched[f.lead.ID].Unix())
	require.Len(t, f.hub.events, 1)
	assert.Equal(t, ws.EventNewMessage, f.hub.events[0].event)
	assert.Equal(t, f.empresaID, f.hub.events[0].empresaID)
}

func TestWebhookIngest_FromMeIsTeam(t *testing.T) {
	f := newWebhookFixture()

	res, err := f.svc.Ingest(context.Background(), WebhookPayload{
		Event: "message_create",
		Data:  WebhookData{From: "+51 987 654 321", Body: "te escribo", FromMe: true},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SenderTeam, res.Message.Sender)
	assert.Equal(t, "sent", res.Message.Status)
}

func TestWebhookIngest_UnknownLeadIsSkipped(t *testing.T) {
	f := newWebhookFixture()

	res, err := f.svc.Ingest(context.Background(), WebhookPayload{
		Event: "message",
		Data:  WebhookData{ChatID: "51911111111@c.us", Message: "hola"},
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "51911111111")
	assert.Empty(t, f.messages.created)
	assert.Empty(t, f.hub.events)
}

func TestWebhookIngest_NoPhoneIsSkipped(t *testing.T) {
	f := newWebhookFixture()

	res, err := f.svc.Ingest(context.Background(), WebhookPayload{Event: "message", Data: WebhookData{Message: "hola"}})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.leads.searched)
}

func TestWebhookIngest_ScopesLookupToInstanceEmpresa(t *testing.T) {
	f := newWebhookFixture()
	otherPhone := "51900000000"
	other := &domain.Lead{ID: uuid.New(), EmpresaID: uuid.New(), Phone: &otherPhone}
	f.leads.byID[other.ID] = other

	res, err := f.svc.Ingest(context.Background(), WebhookPayload{
		Event:      "message",
		InstanceID: f.instance.ID.String(),
		Data:       WebhookData{ChatID: "51900000000@c.us", Message: "hola"},
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}
