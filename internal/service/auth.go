package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 7 * 24 * time.Hour

// AuthService handles registration, login and session tokens
type AuthService struct {
	users    UserStore
	empresas EmpresaStore
	members  MemberStore
	secret   []byte
	now      func() time.Time
}

func NewAuthService(users UserStore, empresas EmpresaStore, members MemberStore, jwtSecret string) *AuthService {
	return &AuthService{
		users:    users,
		empresas: empresas,
		members:  members,
		secret:   []byte(jwtSecret),
		now:      time.Now,
	}
}

// JWTClaims carry the user and the empresa the session is acting in.
type JWTClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	EmpresaID uuid.UUID `json:"empresa_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,max=255"`
	EmpresaName string `json:"empresa_name" validate:"required,max=255"`
}

type Session struct {
	Token   string          `json:"token"`
	User    *domain.User    `json:"user"`
	Empresa *domain.Empresa `json:"empresa,omitempty"`
}

// Register creates the user, its first empresa with an owner membership and
// a default pipeline.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.EmpresaName = strings.TrimSpace(in.EmpresaName)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &domain.User{Email: in.Email, PasswordHash: string(hash), DisplayName: in.DisplayName}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrUserExists
		}
		return nil, err
	}

	empresa, err := NewEmpresa(in.EmpresaName)
	if err != nil {
		return nil, err
	}
	pipeline := &domain.Pipeline{Name: "Pipeline Principal", IsDefault: true, Stages: domain.DefaultStages()}
	if err := s.empresas.CreateWithOwner(ctx, empresa, user.ID, pipeline); err != nil {
		return nil, fmt.Errorf("failed to create empresa: %w", err)
	}

	token, err := s.issue(user, empresa.ID, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, Empresa: empresa}, nil
}

// Login checks the password and opens a session in the user's first empresa.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	empresas, err := s.empresas.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	sess := &Session{User: user}
	empresaID, role := uuid.Nil, ""
	if len(empresas) > 0 {
		sess.Empresa = empresas[0]
		empresaID, role = empresas[0].ID, empresas[0].Role
	}
	if sess.Token, err = s.issue(user, empresaID, role); err != nil {
		return nil, err
	}
	return sess, nil
}

// SwitchEmpresa reissues the token for another empresa the user belongs to.
func (s *AuthService) SwitchEmpresa(ctx context.Context, userID, empresaID uuid.UUID) (*Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	role, err := s.members.GetRole(ctx, empresaID, userID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, apperrors.ErrForbidden
	}
	empresa, err := s.empresas.GetByID(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	if empresa == nil {
		return nil, apperrors.ErrEmpresaNotFound
	}
	empresa.Role = role

	token, err := s.issue(user, empresaID, role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, Empresa: empresa}, nil
}

func (s *AuthService) issue(user *domain.User, empresaID uuid.UUID, role string) (string, error) {
	now := s.now()
	claims := &JWTClaims{
		UserID:    user.ID,
		EmpresaID: empresaID,
		Email:     user.Email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a bearer token.
func (s *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, &apperrors.AuthenticationError{Message: "invalid token"}
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &apperrors.AuthenticationError{Message: "invalid token"}
	}
	return claims, nil
}

// Membership returns the user's current role in the empresa, or "" once the
// membership is gone. Tokens outlive removals, so scoped requests re-check it.
func (s *AuthService) Membership(ctx context.Context, empresaID, userID uuid.UUID) (string, error) {
	return s.members.GetRole(ctx, empresaID, userID)
}

func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (s *AuthService) ListEmpresas(ctx context.Context, userID uuid.UUID) ([]*domain.Empresa, error) {
	return s.empresas.ListForUser(ctx, userID)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// NewEmpresa prepares an empresa row with a unique slug and booking token.
func NewEmpresa(name string) (*domain.Empresa, error) {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "empresa"
	}
	suffix, err := randomToken(3)
	if err != nil {
		return nil, err
	}
	bookingToken, err := randomToken(24)
	if err != nil {
		return nil, err
	}
	return &domain.Empresa{
		Name:         name,
		Slug:         slug + "-" + suffix,
		Plan:         "free",
		BookingToken: bookingToken,
		Timezone:     "America/Lima",
	}, nil
}
