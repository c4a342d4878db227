package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrAPI           = errors.New("api error")
	ErrProcessing    = errors.New("processing error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
)

// Category names reported for failed jobs.
const (
	CategoryValidation = "validation"
	CategoryAPI        = "api"
	CategoryProcessing = "processing"
	CategoryCanceled   = "canceled"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Category maps an error onto one of the broad failure categories. Errors
// without a marker are treated as processing failures.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return CategoryValidation
	case errors.Is(err, ErrAPI):
		return CategoryAPI
	default:
		return CategoryProcessing
	}
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
