package service

import "errors"

// Relay error taxonomy. Which of these reach the client depends on
// whether any output was already delivered; see RelayService.Relay.
var (
	// ErrInvalidRequest means the inbound request failed validation.
	// No side effects have happened.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStoreUnavailable means the user turn could not be durably
	// recorded, so no generation was attempted.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBackendUnavailable means the model backend produced no output
	// at all for this request.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
