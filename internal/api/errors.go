package api

import (
	"fmt"
	"net/http"
	"strings"

	"pickline/internal/services"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api %d (%s): %s", e.Status, e.Code, message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, message)
}

// Is maps the wire code back onto the services sentinels.
func (e *Error) Is(target error) bool {
	if e.Code == "" {
		return false
	}
	return services.MarkerForCode(e.Code) == target
}

// Permanent reports whether resubmitting the same request cannot succeed.
// Every 4xx qualifies; 5xx and unclassified responses may be retried.
func (e *Error) Permanent() bool {
	return e.Status >= 400 && e.Status < 500
}

// NewError builds the body the daemon writes for err.
func NewError(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: services.Code(err)}
}
