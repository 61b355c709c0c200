package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/service"
	"github.com/naperu/embudo/internal/storage"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/config"
	"github.com/naperu/embudo/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	services *service.Services
	hub      *ws.Hub
	storage  *storage.Storage
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewServer wires middleware and routes. store and m may be nil.
func NewServer(cfg *config.Config, services *service.Services, hub *ws.Hub, store *storage.Storage, m *metrics.Metrics) *Server {
	app := fiber.New(fiber.Config{
		AppName:   "Embudo CRM",
		BodyLimit: 32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		},
	})

	app.Use(recover.New())
	if !cfg.IsTest() {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
			TimeFormat: "15:04:05",
		}))
	}

	app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicy: "cross-origin",
		PermissionPolicy:          "geolocation=(), microphone=(), camera=()",
	}))

	// the webhook is called by the gateway from a handful of IPs
	app.Use(limiter.New(limiter.Config{
		Max:        500,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "too many requests, please slow down",
			})
		},
		Next: func(c *fiber.Ctx) bool {
			path := c.Path()
			return strings.HasPrefix(path, "/ws") || path == "/functions/v1/webhook-chat" || path == "/metrics"
		},
	}))

	corsOrigins := "http://localhost:3000,http://localhost:5173"
	if cfg.IsProduction() && len(cfg.CORSOrigins) > 0 {
		corsOrigins = strings.Join(cfg.CORSOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Booking-Token,Upgrade,Connection",
		AllowCredentials: true,
	}))

	server := &Server{
		app:      app,
		cfg:      cfg,
		services: services,
		hub:      hub,
		storage:  store,
		metrics:  m,
		log:      logger.Component("api"),
	}
	if m != nil {
		app.Use(server.metricsMiddleware)
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now(),
		})
	})
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	// Edge functions
	fn := s.app.Group("/functions/v1")
	fn.Get("/webhook-chat", s.handleWebhookChallenge)
	fn.Post("/webhook-chat", s.handleWebhookChat)
	fn.Post("/book-appointment", s.handleBookAppointment)
	fn.Post("/send-message", s.authMiddleware, s.empresaMiddleware, s.handleSendMessage)
	fn.Post("/invite-member", s.authMiddleware, s.handleInviteMember)

	api := s.app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", s.handleRegister)
	auth.Post("/login", s.handleLogin)

	protected := api.Group("", s.authMiddleware)
	protected.Get("/me", s.handleGetMe)
	protected.Get("/me/empresas", s.handleGetMyEmpresas)
	protected.Post("/auth/switch-empresa", s.handleSwitchEmpresa)
	protected.Post("/invitations/accept", s.handleAcceptInvitation)

	scoped := protected.Group("", s.empresaMiddleware)

	empresa := scoped.Group("/empresa")
	empresa.Get("/", s.handleGetEmpresa)
	empresa.Put("/", s.handleUpdateEmpresa)
	empresa.Get("/booking-link", s.handleGetBookingLink)
	empresa.Get("/booking-qr", s.handleGetBookingQR)
	empresa.Post("/booking-token/rotate", s.handleRotateBookingToken)

	team := scoped.Group("/team")
	team.Get("/", s.handleGetMembers)
	team.Patch("/:id/role", s.handleChangeMemberRole)
	team.Delete("/:id", s.handleRemoveMember)

	invitations := scoped.Group("/invitations")
	invitations.Get("/", s.handleGetInvitations)
	invitations.Post("/:id/resend", s.handleResendInvitation)
	invitations.Delete("/:id", s.handleRevokeInvitation)

	pipelines := scoped.Group("/pipelines")
	pipelines.Get("/", s.handleGetPipelines)
	pipelines.Post("/", s.handleCreatePipeline)
	pipelines.Get("/:id", s.handleGetPipeline)
	pipelines.Put("/:id", s.handleUpdatePipeline)
	pipelines.Delete("/:id", s.handleDeletePipeline)
	pipelines.Post("/:id/stages", s.handleCreateStage)
	pipelines.Put("/:id/stages/reorder", s.handleReorderStages)

	stages := scoped.Group("/stages")
	stages.Put("/:id", s.handleUpdateStage)
	stages.Delete("/:id", s.handleDeleteStage)

	leads := scoped.Group("/leads")
	leads.Get("/", s.handleGetLeads)
	leads.Post("/", s.handleCreateLead)
	leads.Get("/:id", s.handleGetLead)
	leads.Put("/:id", s.handleUpdateLead)
	leads.Delete("/:id", s.handleDeleteLead)
	leads.Patch("/:id/stage", s.handleMoveLeadStage)
	leads.Patch("/:id/assign", s.handleAssignLead)
	leads.Post("/:id/tags/:tagId", s.handleAddLeadTag)
	leads.Delete("/:id/tags/:tagId", s.handleRemoveLeadTag)
	leads.Get("/:id/messages", s.handleGetLeadMessages)
	leads.Get("/:id/appointments", s.handleGetLeadAppointments)

	tags := scoped.Group("/tags")
	tags.Get("/", s.handleGetTags)
	tags.Post("/", s.handleCreateTag)
	tags.Put("/:id", s.handleUpdateTag)
	tags.Delete("/:id", s.handleDeleteTag)

	catalog := scoped.Group("/catalog")
	catalog.Get("/", s.handleGetCatalog)
	catalog.Post("/", s.handleCreateCatalogItem)
	catalog.Get("/:id", s.handleGetCatalogItem)
	catalog.Put("/:id", s.handleUpdateCatalogItem)
	catalog.Delete("/:id", s.handleDeleteCatalogItem)

	tasks := scoped.Group("/tasks")
	tasks.Get("/", s.handleGetTasks)
	tasks.Post("/", s.handleCreateTask)
	tasks.Get("/:id", s.handleGetTask)
	tasks.Put("/:id", s.handleUpdateTask)
	tasks.Post("/:id/complete", s.handleCompleteTask)
	tasks.Post("/:id/reopen", s.handleReopenTask)
	tasks.Delete("/:id", s.handleDeleteTask)

	appointments := scoped.Group("/appointments")
	appointments.Get("/", s.handleGetAppointments)
	appointments.Post("/", s.handleCreateAppointment)
	appointments.Get("/:id", s.handleGetAppointment)
	appointments.Patch("/:id/status", s.handleUpdateAppointmentStatus)
	appointments.Delete("/:id", s.handleDeleteAppointment)

	instances := scoped.Group("/instances")
	instances.Get("/", s.handleGetInstances)
	instances.Post("/", s.handleCreateInstance)
	instances.Put("/:id", s.handleUpdateInstance)
	instances.Delete("/:id", s.handleDeleteInstance)

	notifications := scoped.Group("/notifications")
	notifications.Get("/", s.handleGetNotifications)
	notifications.Post("/read-all", s.handleMarkAllNotificationsRead)
	notifications.Post("/:id/read", s.handleMarkNotificationRead)

	media := scoped.Group("/media")
	media.Get("/upload-url", s.handleGetUploadURL)
	media.Post("/upload", s.handleDirectUpload)
	media.Delete("/", s.handleDeleteMedia)

	scoped.Get("/analytics", s.handleGetAnalytics)

	s.app.Use("/ws", s.wsUpgrade)
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

func (s *Server) metricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	s.metrics.InFlight(1)
	defer s.metrics.InFlight(-1)

	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	s.metrics.ObserveRequest(c.Method(), c.Route().Path, status, time.Since(start))
	return err
}

// bearerToken reads the JWT from the Authorization header or the auth cookie.
func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		authHeader = c.Cookies("auth-token")
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func (s *Server) authMiddleware(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}

	claims, err := s.services.Auth.ValidateToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token",
		})
	}

	c.Locals("claims", claims)
	c.Locals("user_id", claims.UserID)
	c.Locals("empresa_id", claims.EmpresaID)
	return c.Next()
}

// empresaMiddleware rejects sessions that are not acting inside an empresa
// the user still belongs to, and stores the current role.
func (s *Server) empresaMiddleware(c *fiber.Ctx) error {
	if empresaID(c) == uuid.Nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "No active empresa for this session",
		})
	}
	role, err := s.services.Auth.Membership(c.UserContext(), empresaID(c), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	if role == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "Not a member of this empresa",
		})
	}
	c.Locals("role", role)
	return c.Next()
}

func (s *Server) wsUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Missing token"})
		}

		claims, err := s.services.Auth.ValidateToken(token)
		if err != nil || claims.EmpresaID == uuid.Nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Invalid token"})
		}
		role, err := s.services.Auth.Membership(c.UserContext(), claims.EmpresaID, claims.UserID)
		if err != nil {
			return s.fail(c, err)
		}
		if role == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": "Not a member of this empresa"})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	claims := c.Locals("claims").(*service.JWTClaims)

	client := ws.NewClient(s.hub, c, claims.EmpresaID, claims.UserID)
	s.hub.Register(client)
	s.metrics.SocketDelta(1)
	defer s.metrics.SocketDelta(-1)

	go client.WritePump()
	client.ReadPump()
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// --- helpers ---

func userID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals("user_id").(uuid.UUID)
	return id
}

func empresaID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals("empresa_id").(uuid.UUID)
	return id
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, &apperrors.ValidationError{Field: name, Message: "must be a valid id"}
	}
	return id, nil
}

func queryUUID(c *fiber.Ctx, name string) *uuid.UUID {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func queryTime(c *fiber.Ctx, name string) time.Time {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}

func queryBool(c *fiber.Ctx, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

// fail writes the standard error body with the status mapped from err.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := apperrors.StatusCode(err)
	if status >= fiber.StatusInternalServerError {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}
