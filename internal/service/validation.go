package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/naperu/embudo/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags and reports the first failure as a
// ValidationError.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &apperrors.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return &apperrors.ValidationError{Field: field, Message: "is required"}
	case "email":
		return &apperrors.ValidationError{Field: field, Message: "must be a valid email"}
	case "oneof":
		return &apperrors.ValidationError{Field: field, Message: fmt.Sprintf("must be one of: %s", fe.Param())}
	case "min", "gte":
		return &apperrors.ValidationError{Field: field, Message: fmt.Sprintf("must be at least %s", fe.Param())}
	case "max", "lte":
		return &apperrors.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %s", fe.Param())}
	default:
		return &apperrors.ValidationError{Field: field, Message: fmt.Sprintf("failed %s validation", fe.Tag())}
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// randomToken returns n random bytes hex encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
