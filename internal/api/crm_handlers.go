package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/internal/service"
	"github.com/naperu/embudo/internal/storage"
)

// --- Pipelines ---

func (s *Server) handleGetPipelines(c *fiber.Ctx) error {
	pipelines, err := s.services.Pipeline.List(c.UserContext(), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "pipelines": pipelines})
}

func (s *Server) handleGetPipeline(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	p, err := s.services.Pipeline.Get(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "pipeline": p})
}

func (s *Server) handleCreatePipeline(c *fiber.Ctx) error {
	var in service.PipelineInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	p, err := s.services.Pipeline.Create(c.UserContext(), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "pipeline": p})
}

func (s *Server) handleUpdatePipeline(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.PipelineInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	p, err := s.services.Pipeline.Update(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "pipeline": p})
}

func (s *Server) handleDeletePipeline(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Pipeline.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleCreateStage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.StageInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	st, err := s.services.Pipeline.CreateStage(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "stage": st})
}

func (s *Server) handleUpdateStage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.StageInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	st, err := s.services.Pipeline.UpdateStage(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "stage": st})
}

func (s *Server) handleDeleteStage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Pipeline.DeleteStage(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleReorderStages(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var req struct {
		StageIDs []uuid.UUID `json:"stage_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := s.services.Pipeline.ReorderStages(c.UserContext(), empresaID(c), id, req.StageIDs); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Leads ---

func (s *Server) handleGetLeads(c *fiber.Ctx) error {
	filter := domain.LeadFilter{
		PipelineID: queryUUID(c, "pipeline_id"),
		StageID:    queryUUID(c, "stage_id"),
		AssignedTo: queryUUID(c, "assigned_to"),
		TagID:      queryUUID(c, "tag_id"),
		Search:     strings.TrimSpace(c.Query("search")),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	leads, total, err := s.services.Lead.List(c.UserContext(), empresaID(c), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"leads":   leads,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (s *Server) handleGetLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	l, err := s.services.Lead.Get(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": l})
}

func (s *Server) handleCreateLead(c *fiber.Ctx) error {
	var in service.LeadInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	l, err := s.services.Lead.Create(c.UserContext(), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "lead": l})
}

func (s *Server) handleUpdateLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.LeadInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	l, err := s.services.Lead.Update(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": l})
}

func (s *Server) handleDeleteLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Lead.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleMoveLeadStage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var req struct {
		StageID uuid.UUID `json:"stage_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.StageID == uuid.Nil {
		return badRequest(c, "stage_id is required")
	}
	l, err := s.services.Lead.MoveStage(c.UserContext(), empresaID(c), id, req.StageID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": l})
}

func (s *Server) handleAssignLead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	// a null user_id unassigns
	var req struct {
		UserID *uuid.UUID `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	l, err := s.services.Lead.Assign(c.UserContext(), empresaID(c), id, req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": l})
}

func (s *Server) handleAddLeadTag(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	tagID, err := paramID(c, "tagId")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Lead.AddTag(c.UserContext(), empresaID(c), id, tagID); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleRemoveLeadTag(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	tagID, err := paramID(c, "tagId")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Lead.RemoveTag(c.UserContext(), empresaID(c), id, tagID); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleGetLeadMessages(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var before *time.Time
	if t := queryTime(c, "before"); !t.IsZero() {
		before = &t
	}
	messages, err := s.services.Lead.Messages(c.UserContext(), empresaID(c), id, c.QueryInt("limit", 50), before)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "messages": messages})
}

func (s *Server) handleGetLeadAppointments(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	appointments, err := s.services.Appointment.ListByLead(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "appointments": appointments})
}

// --- Tags ---

func (s *Server) handleGetTags(c *fiber.Ctx) error {
	tags, err := s.services.Tag.List(c.UserContext(), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "tags": tags})
}

func (s *Server) handleCreateTag(c *fiber.Ctx) error {
	var in service.TagInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	tag, err := s.services.Tag.Create(c.UserContext(), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "tag": tag})
}

func (s *Server) handleUpdateTag(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.TagInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	tag, err := s.services.Tag.Update(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "tag": tag})
}

func (s *Server) handleDeleteTag(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Tag.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Catalog ---

func (s *Server) handleGetCatalog(c *fiber.Ctx) error {
	items, err := s.services.Catalog.List(c.UserContext(), empresaID(c), queryBool(c, "active"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "items": items})
}

func (s *Server) handleGetCatalogItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	item, err := s.services.Catalog.Get(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "item": item})
}

func (s *Server) handleCreateCatalogItem(c *fiber.Ctx) error {
	var in service.CatalogInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	item, err := s.services.Catalog.Create(c.UserContext(), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "item": item})
}

func (s *Server) handleUpdateCatalogItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.CatalogInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	item, err := s.services.Catalog.Update(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "item": item})
}

func (s *Server) handleDeleteCatalogItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Catalog.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Tasks ---

func (s *Server) handleGetTasks(c *fiber.Ctx) error {
	filter := domain.TaskFilter{
		LeadID:     queryUUID(c, "lead_id"),
		AssignedTo: queryUUID(c, "assigned_to"),
		Status:     c.Query("status"),
		Limit:      c.QueryInt("limit", 100),
		Offset:     c.QueryInt("offset", 0),
	}
	if c.Query("mine") == "true" {
		me := userID(c)
		filter.AssignedTo = &me
	}
	tasks, err := s.services.Task.List(c.UserContext(), empresaID(c), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "tasks": tasks})
}

func (s *Server) handleGetTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	t, err := s.services.Task.Get(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "task": t})
}

func (s *Server) handleCreateTask(c *fiber.Ctx) error {
	var in service.TaskInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	t, err := s.services.Task.Create(c.UserContext(), empresaID(c), userID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "task": t})
}

func (s *Server) handleUpdateTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.TaskInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	t, err := s.services.Task.Update(c.UserContext(), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "task": t})
}

func (s *Server) handleCompleteTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	t, err := s.services.Task.Complete(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "task": t})
}

func (s *Server) handleReopenTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	t, err := s.services.Task.Reopen(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "task": t})
}

func (s *Server) handleDeleteTask(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Task.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Appointments ---

func (s *Server) handleGetAppointments(c *fiber.Ctx) error {
	appointments, err := s.services.Appointment.List(c.UserContext(), empresaID(c), queryTime(c, "from"), queryTime(c, "to"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "appointments": appointments})
}

func (s *Server) handleGetAppointment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	a, err := s.services.Appointment.Get(c.UserContext(), empresaID(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "appointment": a})
}

func (s *Server) handleCreateAppointment(c *fiber.Ctx) error {
	var in service.AppointmentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	a, err := s.services.Appointment.Create(c.UserContext(), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "appointment": a})
}

func (s *Server) handleUpdateAppointmentStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	a, err := s.services.Appointment.UpdateStatus(c.UserContext(), empresaID(c), id, req.Status)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "appointment": a})
}

func (s *Server) handleDeleteAppointment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Appointment.Delete(c.UserContext(), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Instances ---

func (s *Server) handleGetInstances(c *fiber.Ctx) error {
	instances, err := s.services.Instance.List(c.UserContext(), empresaID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "instances": instances})
}

func (s *Server) handleCreateInstance(c *fiber.Ctx) error {
	var in service.InstanceInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	inst, err := s.services.Instance.Create(c.UserContext(), userID(c), empresaID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "instance": inst})
}

func (s *Server) handleUpdateInstance(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var in service.InstanceInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	inst, err := s.services.Instance.Update(c.UserContext(), userID(c), empresaID(c), id, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "instance": inst})
}

func (s *Server) handleDeleteInstance(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Instance.Delete(c.UserContext(), userID(c), empresaID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Notifications ---

func (s *Server) handleGetNotifications(c *fiber.Ctx) error {
	list, err := s.services.Notification.List(c.UserContext(), empresaID(c), userID(c), queryBool(c, "unread"), c.QueryInt("limit", 50))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": list.Notifications,
		"unread":        list.Unread,
	})
}

func (s *Server) handleMarkNotificationRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.services.Notification.MarkRead(c.UserContext(), empresaID(c), userID(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleMarkAllNotificationsRead(c *fiber.Ctx) error {
	n, err := s.services.Notification.MarkAllRead(c.UserContext(), empresaID(c), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

// --- Analytics ---

func (s *Server) handleGetAnalytics(c *fiber.Ctx) error {
	a, err := s.services.Analytics.Summary(c.UserContext(), empresaID(c), queryUUID(c, "pipeline_id"), c.QueryInt("days", 30))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "analytics": a})
}

// --- Media ---

const maxUploadSize = 50 * 1024 * 1024

var allowedMediaFolders = map[string]bool{"images": true, "videos": true, "audio": true, "documents": true}

func (s *Server) handleDirectUpload(c *fiber.Ctx) error {
	if s.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "Storage not configured"})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file provided")
	}
	if file.Size > maxUploadSize {
		return badRequest(c, "File too large (max 50MB)")
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	folder := c.FormValue("folder")
	if !allowedMediaFolders[folder] {
		folder = storage.MediaType(contentType) + "s"
		if !allowedMediaFolders[folder] {
			folder = "documents"
		}
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "Failed to read file"})
	}
	defer src.Close()

	url, err := s.storage.Upload(c.UserContext(), empresaID(c), folder, file.Filename, src, file.Size, contentType)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"url":      url,
		"type":     storage.MediaType(contentType),
		"filename": file.Filename,
		"size":     file.Size,
	})
}

func (s *Server) handleGetUploadURL(c *fiber.Ctx) error {
	if s.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "Storage not configured"})
	}
	filename := c.Query("filename")
	if filename == "" {
		return badRequest(c, "filename is required")
	}
	folder := c.Query("folder", "documents")
	if !allowedMediaFolders[folder] {
		return badRequest(c, "Invalid folder")
	}

	uploadURL, publicURL, err := s.storage.PresignedUploadURL(c.UserContext(), empresaID(c), folder, filename)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "upload_url": uploadURL, "public_url": publicURL})
}

func (s *Server) handleDeleteMedia(c *fiber.Ctx) error {
	if s.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "Storage not configured"})
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return badRequest(c, "url is required")
	}
	if err := s.storage.Delete(c.UserContext(), empresaID(c), req.URL); err != nil {
		if errors.Is(err, storage.ErrForeignObject) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": err.Error()})
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
