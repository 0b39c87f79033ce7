package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient           = errors.New("transient failure")
	ErrFatal               = errors.New("fatal failure")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrExternalTool        = errors.New("external tool error")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrTimeout             = errors.New("timeout")
)

// Class is the retry classification of an executor failure.
type Class string

const (
	ClassTransient Class = "transient"
	ClassFatal     Class = "fatal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an executor error to the retry class the policy should apply.
// Anything not explicitly fatal is retried.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, ErrFatal), errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConfiguration):
		return ClassFatal
	default:
		return ClassTransient
	}
}

// IsCancellation reports whether err stems from context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
