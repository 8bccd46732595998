package domain

import "errors"

// Error taxonomy (sentinels). Only the HTTP boundary converts these to
// status codes; everything else wraps them with fmt.Errorf("op=...: %w", ...).
var (
	ErrValidation           = errors.New("validation failed")
	ErrAuthMissing          = errors.New("authentication missing")
	ErrAuthInvalid          = errors.New("authentication invalid")
	ErrSessionInvalid       = errors.New("session invalid")
	ErrSessionNotInProgress = errors.New("session not in progress")
	ErrSessionExpired       = errors.New("session expired")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrRateLimited          = errors.New("rate limited")
	ErrLLMUnavailable       = errors.New("llm unavailable")
	ErrLLMBadJSON           = errors.New("llm bad json")
	ErrLLMRateLimited       = errors.New("llm rate limited")
	ErrSandboxUnavailable   = errors.New("sandbox unavailable")
	ErrSandboxTimeout       = errors.New("sandbox timeout")
	ErrInternal             = errors.New("internal error")
)
