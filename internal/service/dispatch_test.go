package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	empresaID uuid.UUID
	lead      *domain.Lead
	older     *domain.Instance
	newer     *domain.Instance
	leads     *fakeLeads
	messages  *fakeMessages
	instances *fakeInstances
	gateway   *fakeGateway
	hub       *fakeHub
	svc       *DispatchService
}

func newDispatchFixture(msgs ...*domain.Message) *dispatchFixture {
	f := &dispatchFixture{empresaID: uuid.New()}
	p := "51987654321"
	f.lead = &domain.Lead{ID: uuid.New(), EmpresaID: f.empresaID, Name: "Ana", Phone: &p, Channel: "whatsapp"}
	now := time.Now()
	f.older = &domain.Instance{ID: uuid.New(), EmpresaID: f.empresaID, Channel: "whatsapp", ClientID: "c-old", APIToken: "tok-old", IsActive: true, CreatedAt: now.Add(-time.Hour)}
	f.newer = &domain.Instance{ID: uuid.New(), EmpresaID: f.empresaID, Channel: "whatsapp", ClientID: "c-new", APIToken: "tok-new", IsActive: true, CreatedAt: now}
	f.leads = newFakeLeads(f.lead)
	f.messages = newFakeMessages(msgs...)
	f.instances = newFakeInstances(f.older, f.newer)
	f.gateway = &fakeGateway{}
	f.hub = &fakeHub{}
	f.svc = NewDispatchService(f.leads, f.messages, f.instances, f.gateway, f.hub, nil)
	return f
}

func inboundVia(empresaID, leadID, instanceID uuid.UUID) *domain.Message {
	return &domain.Message{
		ID:        uuid.New(),
		EmpresaID: empresaID,
		LeadID:    leadID,
		Sender:    domain.SenderLead,
		Metadata:  map[string]interface{}{domain.MetaInstanceID: instanceID.String()},
	}
}

func TestDispatch_ExplicitInstanceWins(t *testing.T) {
	f := newDispatchFixture()
	f.messages = newFakeMessages(inboundVia(f.empresaID, f.lead.ID, f.older.ID))
	f.svc = NewDispatchService(f.leads, f.messages, f.instances, f.gateway, f.hub, nil)

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.New(), SendMessageInput{
		LeadID:     f.lead.ID,
		Message:    "hola",
		InstanceID: &f.newer.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, ResolvedExplicit, res.ResolvedBy)
	assert.Equal(t, f.newer.ID, res.InstanceID)
	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "tok-new", f.gateway.token)
	assert.Equal(t, "51987654321@c.us", f.gateway.calls[0].ChatID)
	assert.Equal(t, "c-new", f.gateway.calls[0].Client)
}

func TestDispatch_PlatformFollowsInstanceChannel(t *testing.T) {
	f := newDispatchFixture()
	ig := &domain.Instance{ID: uuid.New(), EmpresaID: f.empresaID, Channel: "instagram", ClientID: "c-ig", APIToken: "tok-ig", IsActive: true}
	f.instances.byID[ig.ID] = ig
	igChat := "17841400000000001"
	f.leads.byID[f.lead.ID].ChatID = &igChat

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.New(), SendMessageInput{
		LeadID:     f.lead.ID,
		Message:    "hola",
		InstanceID: &ig.ID,
	})
	require.NoError(t, err)

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "instagram", f.gateway.calls[0].Platform)
	assert.Equal(t, "c-ig", f.gateway.calls[0].Client)
	assert.Equal(t, "instagram", res.Message.Channel)
	assert.Equal(t, "instagram", res.Message.Metadata[domain.MetaPlatform])
}

func TestDispatch_ReplyToUsesInstanceOfRepliedMessage(t *testing.T) {
	f := newDispatchFixture()
	reply := inboundVia(f.empresaID, f.lead.ID, f.newer.ID)
	last := inboundVia(f.empresaID, f.lead.ID, f.older.ID)
	f.messages = newFakeMessages(reply, last)
	f.svc = NewDispatchService(f.leads, f.messages, f.instances, f.gateway, f.hub, nil)

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{
		LeadID:           f.lead.ID,
		Message:          "respuesta",
		ReplyToMessageID: &reply.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, ResolvedReplyTo, res.ResolvedBy)
	assert.Equal(t, f.newer.ID, res.InstanceID)
	assert.Equal(t, reply.ID.String(), res.Message.Metadata[domain.MetaReplyTo])
}

func TestDispatch_ReplyToOfAnotherLeadIsIgnored(t *testing.T) {
	f := newDispatchFixture()
	foreign := inboundVia(f.empresaID, uuid.New(), f.newer.ID)
	f.messages = newFakeMessages(foreign)
	f.lead.PreferredInstanceID = &f.older.ID
	f.svc = NewDispatchService(f.leads, f.messages, f.instances, f.gateway, f.hub, nil)

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{
		LeadID:           f.lead.ID,
		Message:          "hola",
		ReplyToMessageID: &foreign.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, ResolvedLeadPreferred, res.ResolvedBy)
	assert.Equal(t, f.older.ID, res.InstanceID)
}

func TestDispatch_LastInboundBeatsPreferred(t *testing.T) {
	f := newDispatchFixture()
	f.messages = newFakeMessages(inboundVia(f.empresaID, f.lead.ID, f.newer.ID))
	f.lead.PreferredInstanceID = &f.older.ID
	f.svc = NewDispatchService(f.leads, f.messages, f.instances, f.gateway, f.hub, nil)

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.NoError(t, err)

	assert.Equal(t, ResolvedLastInbound, res.ResolvedBy)
	assert.Equal(t, f.newer.ID, f.leads.preferred[f.lead.ID])
}

func TestDispatch_SingleActiveInstance(t *testing.T) {
	f := newDispatchFixture()
	f.older.IsActive = false

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, ResolvedSingleActive, res.ResolvedBy)
	assert.Equal(t, f.newer.ID, res.InstanceID)
}

func TestDispatch_FallsBackToOldestActive(t *testing.T) {
	f := newDispatchFixture()

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, ResolvedFallbackActive, res.ResolvedBy)
	assert.Equal(t, f.older.ID, res.InstanceID)
}

func TestDispatch_InactiveExplicitInstanceFallsBack(t *testing.T) {
	f := newDispatchFixture()
	f.newer.IsActive = false

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{
		LeadID:     f.lead.ID,
		Message:    "hola",
		InstanceID: &f.newer.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, ResolvedFallbackActive, res.ResolvedBy)
	assert.Equal(t, f.older.ID, res.InstanceID)
}

func TestDispatch_ForeignInstanceIsNotUsed(t *testing.T) {
	f := newDispatchFixture()
	foreign := &domain.Instance{ID: uuid.New(), EmpresaID: uuid.New(), Channel: "whatsapp", APIToken: "other", IsActive: true}
	f.instances.byID[foreign.ID] = foreign

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{
		LeadID:     f.lead.ID,
		Message:    "hola",
		InstanceID: &foreign.ID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, foreign.ID, res.InstanceID)
	assert.NotEqual(t, "other", f.gateway.token)
}

func TestDispatch_NoActiveInstance(t *testing.T) {
	f := newDispatchFixture()
	f.older.IsActive = false
	f.newer.IsActive = false

	_, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.Error(t, err)
	assert.Equal(t, StepValidateInstance, apperrors.StepName(err))
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
	assert.Empty(t, f.gateway.calls)
}

func TestDispatch_GatewayFailureIs502(t *testing.T) {
	f := newDispatchFixture()
	f.gateway.err = errors.New("connection refused")

	_, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.Error(t, err)
	assert.Equal(t, StepSendToGateway, apperrors.StepName(err))
	assert.Equal(t, http.StatusBadGateway, apperrors.StatusCode(err))
	assert.Contains(t, err.Error(), "[send_to_gateway]")
	assert.Empty(t, f.messages.created)
}

func TestDispatch_SaveFailureIs500(t *testing.T) {
	f := newDispatchFixture()
	f.messages.createErr = errors.New("db down")

	_, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.Error(t, err)
	assert.Equal(t, StepSaveMessage, apperrors.StepName(err))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
}

func TestDispatch_PreferredInstanceFailureIsWarning(t *testing.T) {
	f := newDispatchFixture()
	f.leads.prefErr = errors.New("timeout")

	res, err := f.svc.Send(context.Background(), f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "hola"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], StepUpdateLeadInstance)
}

func TestDispatch_RecordsMessageAndBroadcasts(t *testing.T) {
	f := newDispatchFixture()
	userID := uuid.New()

	res, err := f.svc.Send(context.Background(), f.empresaID, userID, SendMessageInput{LeadID: f.lead.ID, Message: "  hola  "})
	require.NoError(t, err)

	msg := res.Message
	assert.Equal(t, "hola", msg.Content)
	assert.Equal(t, domain.SenderTeam, msg.Sender)
	assert.Equal(t, &userID, msg.UserID)
	require.NotNil(t, msg.ExternalID)
	assert.Equal(t, "ext-1", *msg.ExternalID)
	id, ok := msg.InstanceID()
	assert.True(t, ok)
	assert.Equal(t, res.InstanceID, id)

	assert.Contains(t, f.leads.touched, f.lead.ID)
	require.Len(t, f.hub.events, 1)
	assert.Equal(t, ws.EventNewMessage, f.hub.events[0].event)
}

func TestDispatch_RequestValidation(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.empresaID, uuid.Nil, SendMessageInput{Message: "hola"})
	assert.Equal(t, StepParseRequest, apperrors.StepName(err))

	_, err = f.svc.Send(ctx, f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "   "})
	assert.Equal(t, StepParseRequest, apperrors.StepName(err))

	_, err = f.svc.Send(ctx, f.empresaID, uuid.Nil, SendMessageInput{LeadID: f.lead.ID, Message: "x", Channel: "telegram"})
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	_, err = f.svc.Send(ctx, f.empresaID, uuid.Nil, SendMessageInput{LeadID: uuid.New(), Message: "x"})
	assert.Equal(t, StepLoadLead, apperrors.StepName(err))
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
}
