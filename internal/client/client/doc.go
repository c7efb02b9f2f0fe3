// Package client contains the transport side of the drop-session client.
//
// # Overview
//
// The package provides:
//  1. The backend contract (see the Client interface): session create/resolve/end,
//     participant join/leave/roster/settings, file upload-url/confirm/list/download,
//     and notes.
//  2. A concrete REST implementation (see HTTPClient) that attaches a bearer token
//     when one is available, bounds every request with a timeout, and maps HTTP
//     statuses to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an SQLite
//     database and applying embedded goose migrations.
//
// # Error Handling
//
// Non-2xx responses are returned as *APIError, which unwraps to one of
// ErrUnauthorized, ErrForbidden, ErrNotFound, ErrRateLimited or ErrUnavailable.
// Network failures and timeouts wrap ErrUnavailable.
//
// All operations accept context.Context and honor cancellation.
package client
