package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"entgo.io/ent/dialect"
)

// column types that differ between Postgres and SQLite.
type ddlTypes struct {
	id, json, ts string
}

func typesFor(d string) ddlTypes {
	if d == dialect.Postgres {
		return ddlTypes{id: "UUID", json: "JSONB", ts: "TIMESTAMPTZ"}
	}
	return ddlTypes{id: "TEXT", json: "TEXT", ts: "DATETIME"}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	content     {{json}} NOT NULL,
	received_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_received_at_idx ON documents (received_at);

CREATE TABLE IF NOT EXISTS ground_truth (
	document_id TEXT NOT NULL,
	field_name  TEXT NOT NULL,
	value       TEXT,
	PRIMARY KEY (document_id, field_name)
);

CREATE TABLE IF NOT EXISTS mapping_rules (
	id                   {{id}} PRIMARY KEY,
	field_name           TEXT NOT NULL,
	extraction_type      TEXT NOT NULL,
	pattern              {{json}} NOT NULL,
	priority             INTEGER NOT NULL DEFAULT 0,
	confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	version              INTEGER NOT NULL DEFAULT 1,
	status               TEXT NOT NULL,
	created_at           {{ts}} NOT NULL,
	updated_at           {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS mapping_rules_field_idx ON mapping_rules (field_name, priority);

CREATE TABLE IF NOT EXISTS test_tasks (
	id               {{id}} PRIMARY KEY,
	rule_id          {{id}},
	field_name       TEXT NOT NULL,
	rule_type        TEXT NOT NULL,
	original_type    TEXT NOT NULL,
	original_pattern {{json}} NOT NULL,
	test_pattern     {{json}} NOT NULL,
	corpus           {{json}} NOT NULL,
	status           TEXT NOT NULL,
	progress         INTEGER NOT NULL DEFAULT 0,
	total_documents  INTEGER NOT NULL DEFAULT 0,
	tested_documents INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	summary          {{json}},
	error_message    TEXT,
	created_at       {{ts}} NOT NULL,
	started_at       {{ts}},
	finished_at      {{ts}}
);
CREATE INDEX IF NOT EXISTS test_tasks_status_idx ON test_tasks (status);

CREATE TABLE IF NOT EXISTS test_details (
	task_id             {{id}} NOT NULL REFERENCES test_tasks (id) ON DELETE CASCADE,
	seq                 INTEGER NOT NULL,
	document_id         TEXT NOT NULL,
	original_result     TEXT,
	original_confidence DOUBLE PRECISION NOT NULL,
	test_result         TEXT,
	test_confidence     DOUBLE PRECISION NOT NULL,
	actual_value        TEXT,
	original_accurate   BOOLEAN NOT NULL,
	test_accurate       BOOLEAN NOT NULL,
	change_type         TEXT NOT NULL,
	PRIMARY KEY (task_id, seq)
);
`

// Migrate creates missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	t := typesFor(db.Dialect())
	ddl := strings.NewReplacer("{{id}}", t.id, "{{json}}", t.json, "{{ts}}", t.ts).Replace(schemaDDL)
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.exec(ctx, stmt, nil); err != nil {
			logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("database schema ready", "dialect", db.Dialect())
	return nil
}
