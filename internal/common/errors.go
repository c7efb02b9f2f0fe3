// Package common defines constants and sentinel errors shared by the client
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Session flow errors.
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionExpired  = errors.New("session expired")
	ErrNotOwner        = errors.New("only the session owner can do this")

	// Validation errors, raised before any network call.
	ErrInvalidCode  = errors.New("invalid session code")
	ErrFileTooLarge = errors.New("file too large")
	ErrEmptyNote    = errors.New("note is empty")

	// Local file bookkeeping.
	ErrFileNotFound = errors.New("file not found")
)
