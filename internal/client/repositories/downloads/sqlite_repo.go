package downloads

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/dbx"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Mark(ctx context.Context, sessionID, fileID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads (session_id, file_id, downloaded_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id, file_id) DO NOTHING
	`, sessionID, fileID, r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to mark download %s/%s: %w", sessionID, fileID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListBySession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT file_id FROM downloads WHERE session_id = ? ORDER BY downloaded_at, file_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download rows: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete downloads of %s: %w", sessionID, err)
	}
	return nil
}
