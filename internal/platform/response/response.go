// Package response renders the JSON envelope every API endpoint answers with:
//
//	{"status": "success"|"error", "message": "...", "data": ..., "errors": {...}}
package response

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the outer shape of every response body.
type Envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Success writes a success envelope.
func Success(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, Envelope{Status: StatusSuccess, Message: message, Data: data})
}

// Fail writes an error envelope carrying data, for outcomes that are not
// errors in the Go sense (a reading that needs a recheck, for instance).
func Fail(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, Envelope{Status: StatusError, Message: message, Data: data})
}

// ValidationError collects field-level input problems.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message against field.
func (v *ValidationError) Add(field, format string, args ...interface{}) {
	v.Fields[field] = append(v.Fields[field], fmt.Sprintf(format, args...))
}

// HasErrors reports whether any field failed.
func (v *ValidationError) HasErrors() bool {
	return len(v.Fields) > 0
}

// Err returns v as an error, or nil when nothing was recorded.
func (v *ValidationError) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Fields))
	for f := range v.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(v.Fields[f], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ErrorHandler renders handler errors as error envelopes. Validation errors
// become 422 with their field map; unexpected errors are logged and hidden
// behind a generic 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		env := Envelope{Status: StatusError}
		code := http.StatusInternalServerError

		var ve *ValidationError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ve):
			code = http.StatusUnprocessableEntity
			env.Message = "Validation failed"
			env.Errors = ve.Fields
		case errors.As(err, &he):
			code = he.Code
			env.Message = fmt.Sprint(he.Message)
			if he.Internal != nil && code >= http.StatusInternalServerError {
				logger.Error().Err(he.Internal).Str("path", c.Path()).Msg("request failed")
			}
		default:
			env.Message = "Internal server error"
			logger.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, env)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
