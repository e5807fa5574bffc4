package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all aquaproc tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id             TEXT PRIMARY KEY,
		process_id     TEXT NOT NULL,
		state          TEXT NOT NULL DEFAULT 'ACCEPTED',
		async          INTEGER NOT NULL DEFAULT 0,
		inputs         TEXT NOT NULL DEFAULT '{}',
		outputs        TEXT NOT NULL DEFAULT '{}',
		message        TEXT NOT NULL DEFAULT '',
		container_name TEXT NOT NULL DEFAULT '',
		stdout         TEXT NOT NULL DEFAULT '',
		stderr         TEXT NOT NULL DEFAULT '',
		exit_code      INTEGER,
		created_at     TEXT NOT NULL,
		started_at     TEXT,
		completed_at   TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_process_id ON jobs(process_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs(completed_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "jobs",
		column:   "output_dir",
		alterSQL: "ALTER TABLE jobs ADD COLUMN output_dir TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}

	exists := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
