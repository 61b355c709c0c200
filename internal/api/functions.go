package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/service"
)

// stepFailure writes {error:"[step] msg", step} with the status carried by err.
func (s *Server) stepFailure(c *fiber.Ctx, err error) error {
	status := apperrors.StatusCode(err)
	body := fiber.Map{"error": err.Error()}
	if step := apperrors.StepName(err); step != "" {
		body["step"] = step
	}
	if status >= fiber.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("function failed")
	}
	return c.Status(status).JSON(body)
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var in service.SendMessageInput
	if err := c.BodyParser(&in); err != nil {
		return s.stepFailure(c, apperrors.Step(service.StepParseRequest, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err)))
	}

	result, err := s.services.Dispatch.Send(c.UserContext(), empresaID(c), userID(c), in)
	if err != nil {
		return s.stepFailure(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    result.Message,
		"instanceId": result.InstanceID,
		"resolvedBy": result.ResolvedBy,
		"warnings":   result.Warnings,
	})
}

func (s *Server) handleWebhookChallenge(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if !service.VerifyChallenge(s.cfg.WebhookVerifyToken, mode, token) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Verification failed"})
	}
	return c.SendString(c.Query("hub.challenge"))
}

func (s *Server) handleWebhookChat(c *fiber.Ctx) error {
	if s.cfg.WebhookSecret == "" {
		s.log.Error("webhook received but WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook secret not configured"})
	}

	body := c.Body()
	signature := c.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = c.Get("X-Signature")
	}
	if err := service.VerifySignature(s.cfg.WebhookSecret, body, signature); err != nil {
		s.metrics.WebhookEvent("rejected")
		s.log.WithField("ip", c.IP()).Warn("webhook signature rejected")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Invalid signature"})
	}

	var payload service.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.metrics.WebhookEvent("invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON payload"})
	}

	result, err := s.services.Webhook.Ingest(c.UserContext(), payload)
	if err != nil {
		s.log.WithError(err).WithField("event", payload.Event).Error("webhook ingest failed")
		return c.Status(apperrors.StatusCode(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if result.Skipped {
		return c.JSON(fiber.Map{"success": true, "skipped": true, "reason": result.Reason})
	}
	return c.JSON(fiber.Map{"success": true, "message": result.Message})
}

func (s *Server) handleInviteMember(c *fiber.Ctx) error {
	var in service.InviteInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := s.services.Invitation.Invite(c.UserContext(), userID(c), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	resp := fiber.Map{
		"success":    true,
		"invitation": result.Invitation,
		"emailSent":  result.EmailSent,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *Server) handleBookAppointment(c *fiber.Ctx) error {
	var in service.BookingInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if header := c.Get("X-Booking-Token"); header != "" {
		in.Token = header
	}

	result, err := s.services.Booking.Book(c.UserContext(), in)
	if err != nil {
		var notFound *service.LeadNotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":        false,
				"error":          notFound.Error(),
				"phone_searched": notFound.PhoneSearched,
			})
		}
		return s.fail(c, err)
	}

	resp := fiber.Map{
		"success":     true,
		"appointment": result.Appointment,
		"lead":        result.Lead,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}
