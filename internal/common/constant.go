package common

import "time"

// AuthorizationHeaderName carries the bearer token on REST calls and on the
// STOMP CONNECT frame.
const AuthorizationHeaderName = "Authorization"

const (
	// DefaultSessionTTL is used only when the server does not report an expiry.
	DefaultSessionTTL = 600 * time.Second

	// TempIDPrefix marks client-generated ids for optimistic rows.
	TempIDPrefix = "tmp-"
)
