package services

import (
	"errors"
	"fmt"
)

// ErrAlreadyGenerating is returned when a generation request targets a slide
// slot that already has an active task and force was not set.
var ErrAlreadyGenerating = errors.New("a generation task is already running for this slide")

// NotFoundError indicates a project, slide, or image variant does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates a rejected request payload
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation creates a ValidationError
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a failure from an image-generation engine
type ProviderError struct {
	Engine string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Engine, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
