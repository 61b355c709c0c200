package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/phone"
	"github.com/naperu/embudo/internal/superapi"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/logger"
)

// send-message step names, echoed back to the caller on failure.
const (
	StepParseRequest       = "parse_request"
	StepLoadLead           = "load_lead"
	StepResolveInstance    = "resolve_instance"
	StepValidateInstance   = "validate_instance"
	StepUpdateLeadInstance = "update_lead_instance"
	StepSendToGateway      = "send_to_gateway"
	StepSaveMessage        = "save_message"
)

// How the sending instance was chosen.
const (
	ResolvedExplicit       = "explicit"
	ResolvedReplyTo        = "reply_to"
	ResolvedLastInbound    = "last_inbound"
	ResolvedLeadPreferred  = "lead_preferred"
	ResolvedSingleActive   = "single_active"
	ResolvedFallbackActive = "fallback_active"
)

// SendMessageInput is the body of send-message.
type SendMessageInput struct {
	LeadID           uuid.UUID       `json:"leadId"`
	Message          string          `json:"message"`
	InstanceID       *uuid.UUID      `json:"instanceId,omitempty"`
	Channel          string          `json:"channel,omitempty"`
	ReplyToMessageID *uuid.UUID      `json:"replyToMessageId,omitempty"`
	Media            *superapi.Media `json:"media,omitempty"`
}

// SendMessageResult is returned on a successful dispatch.
type SendMessageResult struct {
	Message    *domain.Message `json:"message"`
	InstanceID uuid.UUID       `json:"instanceId"`
	ResolvedBy string          `json:"resolvedBy"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// DispatchService sends a team message to a lead through the gateway.
type DispatchService struct {
	leads     LeadStore
	messages  MessageStore
	instances InstanceStore
	gateway   Gateway
	hub       Broadcaster
	metrics   *metrics.Metrics
	now       func() time.Time
	log       *logger.Logger
}

func NewDispatchService(leads LeadStore, messages MessageStore, instances InstanceStore, gateway Gateway, hub Broadcaster, m *metrics.Metrics) *DispatchService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &DispatchService{
		leads:     leads,
		messages:  messages,
		instances: instances,
		gateway:   gateway,
		hub:       hub,
		metrics:   m,
		now:       time.Now,
		log:       logger.Component("send-message"),
	}
}

// Send runs the dispatch steps in order. Every returned error is a
// *errors.StepError naming the failed step.
func (s *DispatchService) Send(ctx context.Context, empresaID, userID uuid.UUID, in SendMessageInput) (*SendMessageResult, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.LeadID == uuid.Nil {
		return nil, apperrors.Step(StepParseRequest, http.StatusBadRequest, fmt.Errorf("leadId is required"))
	}
	if in.Message == "" && (in.Media == nil || in.Media.URL == "") {
		return nil, apperrors.Step(StepParseRequest, http.StatusBadRequest, fmt.Errorf("message or media is required"))
	}
	if in.Channel != "" && !phone.ValidChannel(in.Channel) {
		return nil, apperrors.Step(StepParseRequest, http.StatusBadRequest, fmt.Errorf("unsupported channel %q", in.Channel))
	}

	lead, err := s.leads.Get(ctx, empresaID, in.LeadID)
	if err != nil {
		return nil, apperrors.Step(StepLoadLead, http.StatusInternalServerError, err)
	}
	if lead == nil {
		return nil, apperrors.Step(StepLoadLead, http.StatusNotFound, apperrors.ErrLeadNotFound)
	}

	channel := in.Channel
	if channel == "" {
		channel = lead.Channel
	}
	if channel == "" {
		channel = phone.ChannelWhatsApp
	}

	candidate, resolvedBy, err := s.resolveInstance(ctx, empresaID, lead, channel, in)
	if err != nil {
		return nil, apperrors.Step(StepResolveInstance, http.StatusInternalServerError, err)
	}

	instance, resolvedBy, err := s.validateInstance(ctx, empresaID, channel, candidate, resolvedBy)
	if err != nil {
		return nil, err
	}

	// the instance decides the platform; an explicit instance may belong to
	// another channel than the lead's
	if instance.Channel != "" && instance.Channel != channel {
		channel = instance.Channel
	}

	result := &SendMessageResult{InstanceID: instance.ID, ResolvedBy: resolvedBy}
	s.metrics.InstanceResolved(resolvedBy)

	if lead.PreferredInstanceID == nil || *lead.PreferredInstanceID != instance.ID {
		if err := s.leads.SetPreferredInstance(ctx, lead.ID, instance.ID); err != nil {
			s.log.WithError(err).WithField("lead_id", lead.ID).Warn("failed to persist preferred instance")
			result.Warnings = append(result.Warnings, fmt.Sprintf("[%s] %v", StepUpdateLeadInstance, err))
		} else {
			id := instance.ID
			lead.PreferredInstanceID = &id
		}
	}

	chatID := phone.ChatID(deref(lead.ChatID), deref(lead.Phone), channel)
	if chatID == "" {
		return nil, apperrors.Step(StepSendToGateway, http.StatusBadRequest, fmt.Errorf("lead has no phone or chat id"))
	}

	resp, err := s.gateway.SendMessage(ctx, instance.APIToken, superapi.SendRequest{
		ChatID:   chatID,
		Message:  in.Message,
		Platform: channel,
		Client:   instance.ClientID,
		Media:    in.Media,
	})
	if err != nil {
		s.metrics.MessageDispatched(channel, "failed")
		return nil, apperrors.Step(StepSendToGateway, http.StatusBadGateway, &apperrors.UpstreamError{Service: "superapi", Err: err})
	}

	msg := &domain.Message{
		EmpresaID: empresaID,
		LeadID:    lead.ID,
		Sender:    domain.SenderTeam,
		Content:   in.Message,
		Channel:   channel,
		Metadata: map[string]interface{}{
			domain.MetaInstanceID: instance.ID.String(),
			domain.MetaPlatform:   channel,
		},
		Status: "sent",
	}
	if userID != uuid.Nil {
		uid := userID
		msg.UserID = &uid
	}
	if in.ReplyToMessageID != nil {
		msg.Metadata[domain.MetaReplyTo] = in.ReplyToMessageID.String()
	}
	if in.Media != nil && in.Media.URL != "" {
		msg.MediaURL = &in.Media.URL
		if in.Media.Type != "" {
			msg.MediaType = &in.Media.Type
		}
	}
	if ext := resp.ExternalID(); ext != "" {
		msg.ExternalID = &ext
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		s.metrics.MessageDispatched(channel, "unsaved")
		return nil, apperrors.Step(StepSaveMessage, http.StatusInternalServerError, err)
	}
	s.metrics.MessageDispatched(channel, "sent")

	if err := s.leads.TouchLastMessage(ctx, lead.ID, msg.CreatedAt); err != nil {
		s.log.WithError(err).WithField("lead_id", lead.ID).Warn("failed to touch lead last_message_at")
	}
	s.hub.BroadcastToEmpresa(empresaID, ws.EventNewMessage, msg)

	result.Message = msg
	return result, nil
}

// resolveInstance walks the fallback chain. It may return a nil id when no
// rule matched; validateInstance then picks any active instance.
func (s *DispatchService) resolveInstance(ctx context.Context, empresaID uuid.UUID, lead *domain.Lead, channel string, in SendMessageInput) (*uuid.UUID, string, error) {
	if in.InstanceID != nil && *in.InstanceID != uuid.Nil {
		return in.InstanceID, ResolvedExplicit, nil
	}

	if in.ReplyToMessageID != nil {
		reply, err := s.messages.Get(ctx, empresaID, *in.ReplyToMessageID)
		if err != nil {
			return nil, "", err
		}
		if reply != nil && reply.LeadID == lead.ID {
			if id, ok := reply.InstanceID(); ok {
				return &id, ResolvedReplyTo, nil
			}
		}
	}

	last, err := s.messages.LastInbound(ctx, lead.ID)
	if err != nil {
		return nil, "", err
	}
	if id, ok := last.InstanceID(); ok {
		return &id, ResolvedLastInbound, nil
	}

	if lead.PreferredInstanceID != nil && *lead.PreferredInstanceID != uuid.Nil {
		return lead.PreferredInstanceID, ResolvedLeadPreferred, nil
	}

	active, err := s.instances.ListActive(ctx, empresaID, channel)
	if err != nil {
		return nil, "", err
	}
	if len(active) == 1 {
		id := active[0].ID
		return &id, ResolvedSingleActive, nil
	}
	return nil, "", nil
}

func (s *DispatchService) validateInstance(ctx context.Context, empresaID uuid.UUID, channel string, candidate *uuid.UUID, resolvedBy string) (*domain.Instance, string, error) {
	if candidate != nil {
		inst, err := s.instances.Get(ctx, *candidate)
		if err != nil {
			return nil, "", apperrors.Step(StepValidateInstance, http.StatusInternalServerError, err)
		}
		if inst != nil && inst.IsActive && inst.EmpresaID == empresaID {
			return inst, resolvedBy, nil
		}
		s.log.WithFields(map[string]interface{}{
			"instance_id": *candidate,
			"resolved_by": resolvedBy,
		}).Warn("resolved instance unusable, falling back to any active instance")
	}

	active, err := s.instances.ListActive(ctx, empresaID, channel)
	if err != nil {
		return nil, "", apperrors.Step(StepValidateInstance, http.StatusInternalServerError, err)
	}
	if len(active) == 0 {
		return nil, "", apperrors.Step(StepValidateInstance, http.StatusBadRequest,
			&apperrors.ValidationError{Field: "instanceId", Message: fmt.Sprintf("no active instance for channel %s", channel)})
	}
	return active[0], ResolvedFallbackActive, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
