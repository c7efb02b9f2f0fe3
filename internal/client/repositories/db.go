// Package repositories opens the local state database and bundles the
// repositories built on top of it.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/lazydrop/internal/client/migrations"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories/downloads"
	"github.com/dmitrijs2005/lazydrop/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/lazydrop/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB        *sql.DB
	Metadata  metadata.Repository
	Downloads downloads.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dsn, err)
	}

	return &Repositories{
		DB:        db,
		Metadata:  metadata.NewSQLiteRepository(db),
		Downloads: downloads.NewSQLiteRepository(db),
	}, nil
}

// Forget drops the remembered session pointer and the download marks of
// sessionID in one transaction.
func (r *Repositories) Forget(ctx context.Context, sessionID string) error {
	return dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := metadata.ForgetPointer(ctx, metadata.NewSQLiteRepository(tx)); err != nil {
			return err
		}
		return downloads.NewSQLiteRepository(tx).DeleteBySession(ctx, sessionID)
	})
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}
