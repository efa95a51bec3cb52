package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for different failure scenarios
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrExternalAPI      = "EXTERNAL_API_ERROR"
	ErrValidation       = "VALIDATION_ERROR"
	ErrResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrBackpressureDrop = "BACKPRESSURE_DROP"
	ErrTransport        = "TRANSPORT_ERROR"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
)

// CodingError represents a standardized error with a machine-readable code.
type CodingError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *CodingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodingError creates a new CodingError with timestamp
func NewCodingError(code, message, details string) *CodingError {
	return &CodingError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode extracts the machine-readable code from err. Unclassified
// errors map to ErrInternalServer.
func ErrorCode(err error) string {
	var coding *CodingError
	if errors.As(err, &coding) {
		return coding.Code
	}
	return ErrInternalServer
}
