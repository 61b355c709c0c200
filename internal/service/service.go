package service

import (
	"time"

	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/repository"
)

type Services struct {
	Auth         *AuthService
	Empresa      *EmpresaService
	Invitation   *InvitationService
	Dispatch     *DispatchService
	Webhook      *WebhookService
	Booking      *BookingService
	Pipeline     *PipelineService
	Lead         *LeadService
	Tag          *TagService
	Catalog      *CatalogService
	Task         *TaskService
	Appointment  *AppointmentService
	Instance     *InstanceService
	Notification *NotificationService
	Analytics    *AnalyticsService
}

// Options carries the settings the services read from config.
type Options struct {
	JWTSecret        string
	AppURL           string
	InvitationTTL    time.Duration
	InstanceCacheTTL time.Duration
}

// Deps are the collaborators outside the database. Cache may be nil.
type Deps struct {
	Gateway Gateway
	Mailer  Mailer
	Hub     Broadcaster
	Cache   JSONCache
	Metrics *metrics.Metrics
}

func NewServices(repos *repository.Repositories, deps Deps, opts Options) *Services {
	instances := NewCachedInstances(repos.Instance, deps.Cache, opts.InstanceCacheTTL)

	return &Services{
		Auth:    NewAuthService(repos.User, repos.Empresa, repos.Member, opts.JWTSecret),
		Empresa: NewEmpresaService(repos.Empresa, repos.Member, opts.AppURL),
		Invitation: NewInvitationService(repos.Invitation, repos.Member, repos.Empresa, repos.User, deps.Mailer, deps.Metrics,
			InvitationConfig{AppURL: opts.AppURL, TTL: opts.InvitationTTL}),
		Dispatch:     NewDispatchService(repos.Lead, repos.Message, instances, deps.Gateway, deps.Hub, deps.Metrics),
		Webhook:      NewWebhookService(repos.Lead, repos.Message, instances, deps.Hub, deps.Metrics),
		Booking:      NewBookingService(repos.Empresa, repos.Lead, repos.Appointment, repos.Member, repos.Notification, deps.Hub, deps.Metrics),
		Pipeline:     NewPipelineService(repos.Pipeline),
		Lead:         NewLeadService(repos.Lead, repos.Pipeline, repos.Tag, repos.Message, repos.Member, deps.Hub),
		Tag:          NewTagService(repos.Tag),
		Catalog:      NewCatalogService(repos.Catalog),
		Task:         NewTaskService(repos.Task, repos.Lead, repos.Member),
		Appointment:  NewAppointmentService(repos.Appointment, repos.Lead, repos.Member, deps.Hub),
		Instance:     NewInstanceService(instances, repos.Member),
		Notification: NewNotificationService(repos.Notification),
		Analytics:    NewAnalyticsService(repos.Analytics, repos.Pipeline, deps.Cache),
	}
}
