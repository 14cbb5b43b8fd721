package knowledge

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// schemaStep is applied once and recorded in kb_schema.
type schemaStep struct {
	version int
	name    string
	stmts   []string
}

var schemaSteps = []schemaStep{
	{
		version: 1,
		name:    "documents and chunks",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				mime_type   TEXT NOT NULL DEFAULT '',
				size        INTEGER NOT NULL DEFAULT 0,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				created_at  INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS document_chunks (
				id          TEXT PRIMARY KEY,
				document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				chunk_index INTEGER NOT NULL,
				content     TEXT NOT NULL,
				tokens      INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(document_id, chunk_index)`,
		},
	},
}

// runMigrations brings the schema up to the newest step. Each step commits
// on its own, so a failure leaves earlier steps in place.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kb_schema (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create kb_schema: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for _, step := range schemaSteps {
		if step.version <= current {
			continue
		}
		if err := applyStep(db, step); err != nil {
			return fmt.Errorf("schema v%d (%s): %w", step.version, step.name, err)
		}
		logger.Info("knowledge schema upgraded", "version", step.version, "step", step.name)
	}
	return nil
}

func applyStep(db *sql.DB, step schemaStep) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range step.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO kb_schema (version, name, applied_at) VALUES (?, ?, ?)`,
		step.version, step.name, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM kb_schema`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
