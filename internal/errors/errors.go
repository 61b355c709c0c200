package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is enables errors.Is() comparison for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Entity  string
	Context string
}

func (e *AlreadyExistsError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s already exists %s", e.Entity, e.Context)
	}
	return fmt.Sprintf("%s already exists", e.Entity)
}

// Is enables errors.Is() comparison for AlreadyExistsError
func (e *AlreadyExistsError) Is(target error) bool {
	t, ok := target.(*AlreadyExistsError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// AuthenticationError represents authentication-related errors
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// AuthorizationError represents authorization-related errors
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// GoneError represents a resource that existed but is no longer usable (expired invitations)
type GoneError struct {
	Message string
}

func (e *GoneError) Error() string {
	return e.Message
}

// UpstreamError represents a failure of a third-party service (gateway, email provider)
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StepError tags an error with the pipeline step that produced it and the
// HTTP status it maps to.
type StepError struct {
	Step   string
	Status int
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step wraps err with a step label. A nil err stays nil.
func Step(step string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Status: status, Err: err}
}

// Entity Not Found Errors
var (
	ErrEmpresaNotFound      = &NotFoundError{Entity: "empresa"}
	ErrUserNotFound         = &NotFoundError{Entity: "user"}
	ErrMemberNotFound       = &NotFoundError{Entity: "member"}
	ErrInvitationNotFound   = &NotFoundError{Entity: "invitation"}
	ErrPipelineNotFound     = &NotFoundError{Entity: "pipeline"}
	ErrStageNotFound        = &NotFoundError{Entity: "stage"}
	ErrLeadNotFound         = &NotFoundError{Entity: "lead"}
	ErrMessageNotFound      = &NotFoundError{Entity: "message"}
	ErrInstanceNotFound     = &NotFoundError{Entity: "instance"}
	ErrTaskNotFound         = &NotFoundError{Entity: "task"}
	ErrAppointmentNotFound  = &NotFoundError{Entity: "appointment"}
	ErrTagNotFound          = &NotFoundError{Entity: "tag"}
	ErrCatalogItemNotFound  = &NotFoundError{Entity: "catalog item"}
	ErrNotificationNotFound = &NotFoundError{Entity: "notification"}
)

// Already Exists Errors
var (
	ErrUserExists              = &AlreadyExistsError{Entity: "user", Context: "with this email"}
	ErrMemberExists            = &AlreadyExistsError{Entity: "member", Context: "with this email in the empresa"}
	ErrPendingInvitationExists = &AlreadyExistsError{Entity: "pending invitation", Context: "for this email in the empresa"}
	ErrTagExists               = &AlreadyExistsError{Entity: "tag", Context: "with this name"}
)

var (
	ErrInvalidCredentials = &AuthenticationError{Message: "invalid credentials"}
	ErrForbidden          = &AuthorizationError{Message: "insufficient permissions"}
	ErrInvitationExpired  = &GoneError{Message: "invitation expired"}
)

// StatusCode maps an error to the HTTP status handlers should answer with.
func StatusCode(err error) int {
	var (
		stepErr     *StepError
		notFound    *NotFoundError
		exists      *AlreadyExistsError
		validation  *ValidationError
		authn       *AuthenticationError
		authz       *AuthorizationError
		gone        *GoneError
		upstreamErr *UpstreamError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &stepErr):
		return stepErr.Status
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &exists):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &authn):
		return http.StatusUnauthorized
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &gone):
		return http.StatusGone
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StepName returns the step label of err, or "" when it carries none.
func StepName(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}
