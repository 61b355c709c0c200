package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// EmpresaService manages the current tenant and its team
type EmpresaService struct {
	empresas EmpresaStore
	members  MemberStore
	appURL   string
}

func NewEmpresaService(empresas EmpresaStore, members MemberStore, appURL string) *EmpresaService {
	return &EmpresaService{empresas: empresas, members: members, appURL: strings.TrimRight(appURL, "/")}
}

func (s *EmpresaService) Get(ctx context.Context, empresaID uuid.UUID) (*domain.Empresa, error) {
	e, err := s.empresas.GetByID(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperrors.ErrEmpresaNotFound
	}
	return e, nil
}

type UpdateEmpresaInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

func (s *EmpresaService) Update(ctx context.Context, callerID, empresaID uuid.UUID, in UpdateEmpresaInput) (*domain.Empresa, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	e.Name = in.Name
	if in.Timezone != "" {
		e.Timezone = in.Timezone
	}
	if err := s.empresas.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// BookingLink is the public booking page URL carrying the empresa's token.
func (s *EmpresaService) BookingLink(e *domain.Empresa) string {
	q := url.Values{}
	q.Set("empresa", e.ID.String())
	q.Set("token", e.BookingToken)
	return s.appURL + "/agendar?" + q.Encode()
}

// BookingInfo returns the link; only managers may see the token.
func (s *EmpresaService) BookingInfo(ctx context.Context, callerID, empresaID uuid.UUID) (string, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return "", err
	}
	e, err := s.Get(ctx, empresaID)
	if err != nil {
		return "", err
	}
	return s.BookingLink(e), nil
}

// BookingQR renders the booking link as a PNG QR code.
func (s *EmpresaService) BookingQR(ctx context.Context, callerID, empresaID uuid.UUID, size int) ([]byte, error) {
	link, err := s.BookingInfo(ctx, callerID, empresaID)
	if err != nil {
		return nil, err
	}
	if size < 128 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return png, nil
}

// RotateBookingToken invalidates every previously shared booking link.
func (s *EmpresaService) RotateBookingToken(ctx context.Context, callerID, empresaID uuid.UUID) (string, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return "", err
	}
	e, err := s.Get(ctx, empresaID)
	if err != nil {
		return "", err
	}
	token, err := randomToken(24)
	if err != nil {
		return "", err
	}
	if err := s.empresas.SetBookingToken(ctx, empresaID, token); err != nil {
		return "", err
	}
	e.BookingToken = token
	return s.BookingLink(e), nil
}

// ListMembers is visible to every member of the empresa.
func (s *EmpresaService) ListMembers(ctx context.Context, callerID, empresaID uuid.UUID) ([]*domain.Member, error) {
	role, err := s.members.GetRole(ctx, empresaID, callerID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, apperrors.ErrForbidden
	}
	return s.members.List(ctx, empresaID)
}

// ChangeRole enforces: only the owner grants admin, the owner role is never
// granted or removed here.
func (s *EmpresaService) ChangeRole(ctx context.Context, callerID, empresaID, memberID uuid.UUID, role string) (*domain.Member, error) {
	callerRole, err := requireManager(ctx, s.members, empresaID, callerID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, &apperrors.ValidationError{Field: "role", Message: "must be one of: admin member"}
	}
	m, err := s.members.Get(ctx, empresaID, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperrors.ErrMemberNotFound
	}
	if m.Role == domain.RoleOwner {
		return nil, &apperrors.AuthorizationError{Message: "the owner role cannot be changed"}
	}
	if callerRole != domain.RoleOwner && (role == domain.RoleAdmin || m.Role == domain.RoleAdmin) {
		return nil, &apperrors.AuthorizationError{Message: "only the owner can manage admins"}
	}
	if err := s.members.UpdateRole(ctx, m.ID, role); err != nil {
		return nil, err
	}
	m.Role = role
	return m, nil
}

func (s *EmpresaService) RemoveMember(ctx context.Context, callerID, empresaID, memberID uuid.UUID) error {
	callerRole, err := requireManager(ctx, s.members, empresaID, callerID)
	if err != nil {
		return err
	}
	m, err := s.members.Get(ctx, empresaID, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.ErrMemberNotFound
	}
	if m.Role == domain.RoleOwner {
		return &apperrors.AuthorizationError{Message: "the owner cannot be removed"}
	}
	if m.Role == domain.RoleAdmin && callerRole != domain.RoleOwner {
		return &apperrors.AuthorizationError{Message: "only the owner can remove admins"}
	}
	return s.members.Remove(ctx, m.ID)
}
