// Package downloads remembers which session files this client already saved.
//
// # Overview
//
// The orchestrator marks a file after a successful download and consults the
// list when it rebuilds a session (for example after a restart), so that
// DownloadedByMe survives and auto-download does not fetch the same file twice.
//
// Key Types
//
//   - type Repository: contract used by the session service
//   - type SQLiteRepository: SQLite implementation over dbx.DBTX
//
// Typical Usage
//
//	repo := downloads.NewSQLiteRepository(db)
//	_ = repo.Mark(ctx, sessionID, fileID)
//	ids, _ := repo.ListBySession(ctx, sessionID)
//	_ = repo.DeleteBySession(ctx, sessionID)
package downloads
