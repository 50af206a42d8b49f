package domain

import "errors"

// Business-rule violations. Callers must not retry these automatically.
var ErrInvalidTransition = errors.New("invalid status transition")
var ErrPreconditionNotMet = errors.New("precondition not met")

// Lookup failures, surfaced to the caller as-is.
var ErrOrderNotFound = errors.New("order not found")
var ErrDriverNotFound = errors.New("driver not found")
var ErrLocationNotFound = errors.New("location not found")
var ErrIncidentNotFound = errors.New("incident not found")

// Infrastructure failures. ErrStorage is transient and safe to retry with
// backoff; ErrUpstreamUnavailable means a collaborating service could not
// answer and the operation failed closed.
var ErrStorage = errors.New("storage failure")
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")
