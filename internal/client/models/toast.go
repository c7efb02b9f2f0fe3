package models

import "time"

// Severity of a toast.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// ToastAction is an optional follow-up offered with a toast: either a
// navigation target or a callback.
type ToastAction struct {
	Label    string
	Navigate string
	Callback func()
}

// Toast is a transient user-facing notification.
type Toast struct {
	ID        string
	Message   string
	Severity  Severity
	Action    *ToastAction
	Duration  time.Duration
	CreatedAt time.Time
}

// Settings are per-participant preferences stored on the server.
type Settings struct {
	AutoDownload bool
}
