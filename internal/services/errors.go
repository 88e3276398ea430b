package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrExternalSystem = errors.New("external system error")
	ErrPersistence    = errors.New("persistence error")
	ErrInvalidSession = errors.New("invalid session")
	ErrTransient      = errors.New("transient failure")
)

// Wire codes carried in API error bodies. The offline agent keys its
// recovery behaviour off CodeInvalidSession.
const (
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeExternalSystem = "external_system"
	CodePersistence    = "persistence"
	CodeInvalidSession = "invalid_session"
	CodeTransient      = "transient"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Code returns the wire code for the outermost marker found in err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSession):
		return CodeInvalidSession
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrExternalSystem):
		return CodeExternalSystem
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	default:
		return CodeTransient
	}
}

// HTTPStatus maps a marked error onto the status code the API returns.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidSession:
		return http.StatusGone
	case CodeExternalSystem:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MarkerForCode is the inverse of Code. Unknown codes map to ErrTransient.
func MarkerForCode(code string) error {
	switch strings.TrimSpace(code) {
	case CodeValidation:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeConflict:
		return ErrConflict
	case CodeExternalSystem:
		return ErrExternalSystem
	case CodePersistence:
		return ErrPersistence
	case CodeInvalidSession:
		return ErrInvalidSession
	default:
		return ErrTransient
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
