// Package postgres provides PostgreSQL repository implementations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all database migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create cases table",
			SQL: `CREATE TABLE IF NOT EXISTS cases (
				id UUID PRIMARY KEY,
				status VARCHAR(50) NOT NULL,
				priority VARCHAR(50) NOT NULL,
				jurisdiction VARCHAR(100),
				submitter_id VARCHAR(255) NOT NULL,
				assigned_officer_id VARCHAR(255),
				origin_case_id UUID REFERENCES cases(id),
				root_case_id UUID REFERENCES cases(id),
				lineage_depth INT NOT NULL DEFAULT 0,
				escalation_level INT NOT NULL DEFAULT 0,
				sla_due_at TIMESTAMP,
				sla_violated BOOLEAN NOT NULL DEFAULT FALSE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
				resolved_at TIMESTAMP
			)`,
		},
		{
			Version:     2,
			Description: "Create submissions table",
			SQL: `CREATE TABLE IF NOT EXISTS submissions (
				id UUID PRIMARY KEY,
				case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
				kind VARCHAR(20) NOT NULL,
				content TEXT NOT NULL,
				normalized_content TEXT NOT NULL,
				dedup_hash VARCHAR(64) NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(case_id, dedup_hash)
			)`,
		},
		{
			Version:     3,
			Description: "Create audit_entries table",
			SQL: `CREATE TABLE IF NOT EXISTS audit_entries (
				id UUID PRIMARY KEY,
				case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
				seq BIGINT NOT NULL,
				actor_id VARCHAR(255) NOT NULL,
				action VARCHAR(50) NOT NULL,
				old_state VARCHAR(50),
				new_state VARCHAR(50) NOT NULL,
				reason_code VARCHAR(100) NOT NULL,
				meta JSONB,
				created_at TIMESTAMP NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				UNIQUE(case_id, seq)
			)`,
		},
		{
			Version:     4,
			Description: "Create sla_warnings table",
			SQL: `CREATE TABLE IF NOT EXISTS sla_warnings (
				case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
				due_at TIMESTAMP NOT NULL,
				warned_at TIMESTAMP NOT NULL DEFAULT NOW(),
				PRIMARY KEY (case_id, due_at)
			)`,
		},
		{
			Version:     5,
			Description: "Create case and submission indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
				  CREATE INDEX IF NOT EXISTS idx_cases_sla_due_at ON cases(sla_due_at) WHERE sla_due_at IS NOT NULL;
				  CREATE INDEX IF NOT EXISTS idx_cases_submitter ON cases(submitter_id);
				  CREATE INDEX IF NOT EXISTS idx_cases_officer ON cases(assigned_officer_id);
				  CREATE INDEX IF NOT EXISTS idx_submissions_hash ON submissions(dedup_hash);
				  CREATE INDEX IF NOT EXISTS idx_audit_entries_case ON audit_entries(case_id)`,
		},
		{
			Version:     6,
			Description: "Create migrations tracking table",
			SQL: `CREATE TABLE IF NOT EXISTS schema_migrations (
				version INT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT NOW()
			)`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Ensure schema_migrations table exists
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	migrations := Migrations()
	for _, m := range migrations {
		// Check if migration already applied
		var exists bool
		err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if exists {
			continue
		}

		// Apply migration
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		// Record migration
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// CurrentVersion returns the current schema version.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}
