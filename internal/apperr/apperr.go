package apperr

import "errors"

// Sentinel errors shared across services. Handlers translate these to HTTP
// statuses; services wrap them with context via fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound covers resources that are absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict covers duplicate quiz completion, a concurrent turn on the
	// same conversation, and extraction that has already been applied.
	ErrConflict = errors.New("conflict")
	// ErrValidation covers malformed requests and partial quiz submissions.
	ErrValidation = errors.New("invalid argument")
	// ErrUpstreamUnavailable covers transient completion-service failures.
	// A turn that fails with it is retryable; the user message is already durable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrExtractionFailed is terminal, reported after extraction retries
	// are exhausted. The profile is left untouched.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsRetryable(err error) bool    { return errors.Is(err, ErrUpstreamUnavailable) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
