package services

import "errors"

// ErrGeneration marks AI output that could not be used. It is wrapped, so
// callers test it with errors.Is.
var ErrGeneration = errors.New("ai generation failed")

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// PreconditionError means the input is well formed but cannot be used,
// such as a PDF with no extractable text.
type PreconditionError struct{ Message string }

func (e *PreconditionError) Error() string { return e.Message }

// TooLargeError is returned for uploads over the configured size limit.
type TooLargeError struct{ Message string }

func (e *TooLargeError) Error() string { return e.Message }
