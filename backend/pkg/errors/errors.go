package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeCanvas represents graph store errors
	ErrorTypeCanvas ErrorType = "canvas"
	// ErrorTypeAI represents AI collaborator errors
	ErrorTypeAI ErrorType = "ai"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// AI Errors

// ErrAIRequestFailed is returned when a collaborator call fails
type ErrAIRequestFailed struct {
	*BaseError
	Operation string
	Model     string
	Retryable bool
}

func NewAIRequestFailed(operation, model string, retryable bool, err error) *ErrAIRequestFailed {
	return &ErrAIRequestFailed{
		BaseError: NewBaseError(ErrorTypeAI, fmt.Sprintf("%s request failed", operation), err),
		Operation: operation,
		Model:     model,
		Retryable: retryable,
	}
}

// ErrAIEmptyResult is returned when a collaborator answers with nothing usable
type ErrAIEmptyResult struct {
	*BaseError
	Operation string
}

func NewAIEmptyResult(operation string) *ErrAIEmptyResult {
	return &ErrAIEmptyResult{
		BaseError: NewBaseError(ErrorTypeAI, fmt.Sprintf("empty result from %s", operation), nil),
		Operation: operation,
	}
}

// ErrAIJobFailed is returned when a remote generation job ends in a failed state
type ErrAIJobFailed struct {
	*BaseError
	JobID  string
	Status string
}

func NewAIJobFailed(jobID, status, reason string) *ErrAIJobFailed {
	return &ErrAIJobFailed{
		BaseError: NewBaseError(ErrorTypeAI, fmt.Sprintf("job %s ended with status %s: %s", jobID, status, reason), nil),
		JobID:     jobID,
		Status:    status,
	}
}

// Canvas Errors

// ErrCanvasNodeNotFound is returned by outer surfaces when a node id is unknown.
// The store itself never returns it.
type ErrCanvasNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewCanvasNodeNotFound(nodeID string) *ErrCanvasNodeNotFound {
	return &ErrCanvasNodeNotFound{
		BaseError: NewBaseError(ErrorTypeCanvas, fmt.Sprintf("node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// typed is implemented by every error in this package through the embedded BaseError
type typed interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok && t.errorType() == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var reqErr *ErrAIRequestFailed
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	return false
}
