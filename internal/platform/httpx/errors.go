// Package httpx holds the HTTP edge helpers shared by every handler: the canonical
// error envelope, JSON encoding, request validation and request-scoped identifiers.
package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Error is a client-facing API error. Err carries the internal cause and is never rendered.
type Error struct {
	Status      int
	Code        string
	Message     string
	FieldErrors map[string][]string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Error codes returned in the envelope.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidCreds      = "INVALID_CREDENTIALS"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeForbidden         = "FORBIDDEN"
	CodeEntitlement       = "ENTITLEMENT_REQUIRED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeSignatureInvalid  = "WEBHOOK_SIGNATURE_INVALID"
	CodeWebhookInFlight   = "WEBHOOK_IN_FLIGHT"
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	CodeProviderError     = "PAYMENT_PROVIDER_ERROR"
	CodeTenantNotFound    = "TENANT_NOT_FOUND"
	CodeTenantUnavailable = "TENANT_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Validation returns a 400 VALIDATION_ERROR with optional per-field messages.
func Validation(message string, fields map[string][]string) *Error {
	if message == "" {
		message = "Validation failed"
	}
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, FieldErrors: fields}
}

// InvalidCredentials is the single 401 used for every failed login.
func InvalidCredentials() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeInvalidCreds, Message: "Invalid credentials"}
}

// AuthRequired is returned when a route needs a session and none is present.
func AuthRequired() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeAuthRequired, Message: "Authentication required"}
}

// Forbidden is returned for role failures and every cross-tenant access.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// NotFound builds a 404 with a resource-specific code such as ORDER_NOT_FOUND.
func NotFound(code, message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Message: message}
}

// New builds an arbitrary client error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Internal wraps an unexpected failure. The cause is logged, never returned to the client.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}

type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details envelopeDetails `json:"details"`
}

type envelopeDetails struct {
	FieldErrors map[string][]string `json:"fieldErrors"`
	Meta        envelopeMeta        `json:"meta"`
}

type envelopeMeta struct {
	RequestID string `json:"requestId,omitempty"`
}

// WriteError renders err in the canonical envelope. Anything that is not an *Error
// becomes a 500 INTERNAL_ERROR; 5xx causes are logged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}
	reqID := RequestID(r.Context())
	if apiErr.Status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", apiErr.Code),
			zap.Error(apiErr.Err),
		)
	}
	fields := apiErr.FieldErrors
	if fields == nil {
		fields = map[string][]string{}
	}
	WriteJSON(w, apiErr.Status, envelope{Error: envelopeBody{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: envelopeDetails{FieldErrors: fields, Meta: envelopeMeta{RequestID: reqID}},
	}})
}
