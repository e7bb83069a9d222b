package types

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCategory string

const (
	CategoryNone              ErrorCategory = ""
	CategorySourceUnreachable ErrorCategory = "SourceUnreachable"
	CategorySourceUnsupported ErrorCategory = "SourceUnsupported"
	CategorySourceTooLarge    ErrorCategory = "SourceTooLarge"
	CategoryInvalidMedia      ErrorCategory = "InvalidMedia"
	CategoryTranscription     ErrorCategory = "TranscriptionError"
	CategoryMediaTooLong      ErrorCategory = "MediaTooLong"
	CategoryDetection         ErrorCategory = "DetectionError"
	CategoryRender            ErrorCategory = "RenderError"
	CategoryPublish           ErrorCategory = "PublishError"
	CategoryTimeout           ErrorCategory = "Timeout"
	CategoryCancelled         ErrorCategory = "Cancelled"
	CategoryInternal          ErrorCategory = "Internal"
)

const FamilySource ErrorCategory = "SourceError"

// Family groups the source and transcription sub-categories.
func (c ErrorCategory) Family() ErrorCategory {
	switch c {
	case CategorySourceUnreachable, CategorySourceUnsupported, CategorySourceTooLarge, CategoryInvalidMedia:
		return FamilySource
	case CategoryMediaTooLong:
		return CategoryTranscription
	}
	return c
}

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrEngineUnavailable = errors.New("scoring engine unavailable")
)

// Error carries the category a failure is reported under.
type Error struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	default:
		return string(e.Category)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(cat ErrorCategory, op string, err error) error {
	return &Error{Category: cat, Op: op, Err: err}
}

func Errorf(cat ErrorCategory, op, format string, args ...any) error {
	return &Error{Category: cat, Op: op, Err: fmt.Errorf(format, args...)}
}

// CategoryOf reports the outermost category attached to err.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return CategoryNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	}
	return CategoryInternal
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
