package errors

import (
	"fmt"
	"net/http"
)

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewValidationError creates an input validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewAuthMismatchError is returned when a subscription handshake fails
func NewAuthMismatchError(mode string) *AppError {
	return New(ErrCodeAuthMismatch, "verify token or mode mismatch").
		WithContext("mode", mode)
}

// NewMalformedEnvelopeError is returned for webhook bodies that are not page events
func NewMalformedEnvelopeError(object string, cause error) *AppError {
	if cause != nil {
		return Wrap(cause, ErrCodeMalformedEnvelope, "failed to decode webhook envelope")
	}
	return New(ErrCodeMalformedEnvelope, "webhook object is not a page subscription").
		WithContext("object", object)
}

// NewAPIError creates an error for a failed call to an external reply API
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeExternalAPI, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// transport errors carry status 0
	appErr.Retryable = statusCode == 0 || statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	return appErr
}

// NewSendError creates an error for a failed Send API call
func NewSendError(statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeSendFailure, "send API call failed").
		WithContext("service", "messenger").
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode == 0 || statusCode >= 500
	return appErr
}

// NewCircuitOpenError is returned when a breaker rejects a call
func NewCircuitOpenError(service string, err error) *AppError {
	return Wrap(err, ErrCodeCircuitOpen, fmt.Sprintf("%s circuit is open", service)).
		WithContext("service", service)
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration)
}

// HTTPStatusCode maps error codes to the status returned on the webhook endpoint
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthMismatch:
		return http.StatusForbidden
	case ErrCodeMalformedEnvelope:
		if appErr, ok := As(err); ok && appErr.Cause != nil {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeExternalAPI, ErrCodeSendFailure, ErrCodeCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
