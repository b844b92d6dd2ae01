package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors shared by the pipeline stages. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrInvalidImage indicates the uploaded bytes are empty or not a supported encoding.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidPrompt indicates an empty generation prompt.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrConfig indicates a style selection or configuration value outside its option set.
	ErrConfig = errors.New("invalid configuration")
	// ErrRateLimited indicates upstream throttling; the caller may retry with backoff.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable indicates a network, auth or server failure on an upstream call.
	ErrUnavailable = errors.New("service unavailable")
	// ErrModelUnavailable indicates the configured model is not permitted for the
	// current credentials; retrying without a config change will not help.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrStorage indicates history persistence failed. It never fails a generation.
	ErrStorage = errors.New("storage failure")
)

// FromStatus maps an upstream HTTP status onto the taxonomy.
func FromStatus(code int) error {
	if code == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrUnavailable
}

// Classify maps an error from a model SDK call onto the taxonomy. Already
// classified errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrInvalidImage, ErrInvalidPrompt, ErrConfig,
		ErrRateLimited, ErrUnavailable, ErrModelUnavailable, ErrStorage,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case isRateLimitMessage(msg):
		return fmt.Errorf("%v: %w", err, ErrRateLimited)
	case isModelUnavailableMessage(msg):
		return fmt.Errorf("%v: %w", err, ErrModelUnavailable)
	default:
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
}

func isRateLimitMessage(msg string) bool {
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}

func isModelUnavailableMessage(msg string) bool {
	if !strings.Contains(msg, "model") {
		return false
	}
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not_found") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "not permitted") ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "does not have access")
}
