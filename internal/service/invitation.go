package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/mailer"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/repository"
	"github.com/naperu/embudo/pkg/logger"
)

// InviteInput is the body of invite-member.
type InviteInput struct {
	Email     string     `json:"email" validate:"required,email"`
	Role      string     `json:"role" validate:"oneof=admin member"`
	EmpresaID *uuid.UUID `json:"empresaId,omitempty"`
	Name      string     `json:"name,omitempty" validate:"max=255"`
}

// InviteResult is the invite-member response payload.
type InviteResult struct {
	Invitation *domain.Invitation `json:"invitation"`
	EmailSent  bool               `json:"emailSent"`
	Warning    string             `json:"warning,omitempty"`
}

type InvitationConfig struct {
	AppURL string
	TTL    time.Duration
}

// InvitationService creates, delivers and redeems team invitations.
type InvitationService struct {
	invitations InvitationStore
	members     MemberStore
	empresas    EmpresaStore
	users       UserStore
	mail        Mailer
	metrics     *metrics.Metrics
	cfg         InvitationConfig
	now         func() time.Time
	log         *logger.Logger
}

func NewInvitationService(invitations InvitationStore, members MemberStore, empresas EmpresaStore, users UserStore, mail Mailer, m *metrics.Metrics, cfg InvitationConfig) *InvitationService {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &InvitationService{
		invitations: invitations,
		members:     members,
		empresas:    empresas,
		users:       users,
		mail:        mail,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
		log:         logger.Component("invite-member"),
	}
}

// requireManager fails with 403 unless the user is owner or admin of the empresa.
func requireManager(ctx context.Context, members MemberStore, empresaID, userID uuid.UUID) (string, error) {
	role, err := members.GetRole(ctx, empresaID, userID)
	if err != nil {
		return "", err
	}
	if !domain.CanManageTeam(role) {
		return role, apperrors.ErrForbidden
	}
	return role, nil
}

// Invite runs authorize, validate, uniqueness, insert, then email. Email
// failures do not roll the invitation back.
func (s *InvitationService) Invite(ctx context.Context, callerID, activeEmpresaID uuid.UUID, in InviteInput) (*InviteResult, error) {
	empresaID := activeEmpresaID
	if in.EmpresaID != nil && *in.EmpresaID != uuid.Nil {
		empresaID = *in.EmpresaID
	}

	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = domain.RoleMember
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	empresa, err := s.empresas.GetByID(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	if empresa == nil {
		return nil, apperrors.ErrEmpresaNotFound
	}

	existing, err := s.members.GetByEmail(ctx, empresaID, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrMemberExists
	}
	if err := s.invitations.ExpireStaleFor(ctx, empresaID, in.Email, s.now()); err != nil {
		return nil, err
	}
	pending, err := s.invitations.GetPending(ctx, empresaID, in.Email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, apperrors.ErrPendingInvitationExists
	}

	token, err := randomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	inviter := callerID
	inv := &domain.Invitation{
		EmpresaID: empresaID,
		Email:     in.Email,
		Role:      in.Role,
		Token:     token,
		Status:    domain.InvitationPending,
		InvitedBy: &inviter,
		ExpiresAt: s.now().Add(s.cfg.TTL),
	}
	if in.Name != "" {
		inv.Name = &in.Name
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrPendingInvitationExists
		}
		return nil, err
	}
	inv.EmpresaName = empresa.Name

	result := &InviteResult{Invitation: inv}
	if err := s.deliver(ctx, inv, callerID); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"invitation_id": inv.ID,
			"empresa_id":    empresaID,
		}).Warn("invitation created but email was not sent")
		result.Warning = fmt.Sprintf("invitation created but email could not be sent: %v", err)
	} else {
		result.EmailSent = true
	}
	s.metrics.InvitationSent(result.EmailSent)
	return result, nil
}

// AcceptURL is the frontend link embedded in the email.
func (s *InvitationService) AcceptURL(token string) string {
	return strings.TrimRight(s.cfg.AppURL, "/") + "/invitacion?token=" + url.QueryEscape(token)
}

func (s *InvitationService) deliver(ctx context.Context, inv *domain.Invitation, inviterID uuid.UUID) error {
	if s.mail == nil {
		return mailer.ErrNotConfigured
	}
	var inviterName string
	if s.users != nil {
		if u, err := s.users.GetByID(ctx, inviterID); err == nil && u != nil {
			inviterName = u.DisplayName
		}
	}
	email, err := mailer.InvitationEmail(inv.Email, mailer.InvitationData{
		EmpresaName: inv.EmpresaName,
		InviterName: inviterName,
		Role:        inv.Role,
		AcceptURL:   s.AcceptURL(inv.Token),
		ExpiresAt:   inv.ExpiresAt.Format("02/01/2006"),
	})
	if err != nil {
		return err
	}
	_, err = s.mail.Send(ctx, email)
	return err
}

func (s *InvitationService) ListPending(ctx context.Context, callerID, empresaID uuid.UUID) ([]*domain.Invitation, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}
	return s.invitations.ListPending(ctx, empresaID)
}

func (s *InvitationService) getPending(ctx context.Context, empresaID, id uuid.UUID) (*domain.Invitation, error) {
	inv, err := s.invitations.GetByID(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Status != domain.InvitationPending {
		return nil, apperrors.ErrInvitationNotFound
	}
	return inv, nil
}

func (s *InvitationService) Revoke(ctx context.Context, callerID, empresaID, id uuid.UUID) error {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return err
	}
	inv, err := s.getPending(ctx, empresaID, id)
	if err != nil {
		return err
	}
	return s.invitations.UpdateStatus(ctx, inv.ID, domain.InvitationRevoked)
}

// Resend extends the expiry and emails the same link again.
func (s *InvitationService) Resend(ctx context.Context, callerID, empresaID, id uuid.UUID) (*InviteResult, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}
	inv, err := s.getPending(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	inv.ExpiresAt = s.now().Add(s.cfg.TTL)
	if err := s.invitations.Renew(ctx, inv.ID, inv.ExpiresAt); err != nil {
		return nil, err
	}

	result := &InviteResult{Invitation: inv}
	if err := s.deliver(ctx, inv, callerID); err != nil {
		result.Warning = fmt.Sprintf("email could not be sent: %v", err)
	} else {
		result.EmailSent = true
	}
	s.metrics.InvitationSent(result.EmailSent)
	return result, nil
}

// Accept redeems the token for the signed-in user whose email it was sent to.
func (s *InvitationService) Accept(ctx context.Context, userID uuid.UUID, token string) (*domain.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &apperrors.ValidationError{Field: "token", Message: "is required"}
	}
	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || subtle.ConstantTimeCompare([]byte(inv.Token), []byte(token)) != 1 {
		return nil, apperrors.ErrInvitationNotFound
	}

	switch inv.Status {
	case domain.InvitationPending:
	case domain.InvitationAccepted:
		return nil, &apperrors.GoneError{Message: "invitation already accepted"}
	case domain.InvitationExpired:
		return nil, apperrors.ErrInvitationExpired
	default:
		return nil, apperrors.ErrInvitationNotFound
	}
	if inv.IsExpired(s.now()) {
		if err := s.invitations.UpdateStatus(ctx, inv.ID, domain.InvitationExpired); err != nil {
			s.log.WithError(err).Warn("failed to mark invitation expired")
		}
		return nil, apperrors.ErrInvitationExpired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(user.Email), inv.Email) {
		return nil, &apperrors.AuthorizationError{Message: "invitation was sent to a different email"}
	}

	if err := s.invitations.Accept(ctx, inv, userID); err != nil {
		return nil, err
	}
	return inv, nil
}

// ExpireStale is called periodically by the reminder worker.
func (s *InvitationService) ExpireStale(ctx context.Context) (int64, error) {
	return s.invitations.ExpireStale(ctx, s.now())
}
