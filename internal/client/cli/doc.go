// Package cli provides the interactive LazyDrop command-line client.
//
// NewApp wires configuration, the local state database, the REST client, the
// live channel and the session service together. App.Run resumes the last
// remembered session and then serves a line-oriented REPL: create or join a
// session, send files and notes, download what peers share, and leave or end
// the session. Toasts raised by the session service are printed as they
// arrive.
package cli
