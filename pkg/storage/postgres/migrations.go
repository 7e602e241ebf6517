package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema gatehouse reads from. The statements stay
// within the subset of SQL that SQLite also accepts.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and credentials",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGINT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					locked BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE TABLE IF NOT EXISTS api_keys (
					id BIGINT PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					hashed_key TEXT NOT NULL UNIQUE,
					expires_at TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS sessions (
					token_hash TEXT PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					expires_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create teams, memberships and features",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGINT PRIMARY KEY,
					slug TEXT NOT NULL,
					is_organization BOOLEAN NOT NULL DEFAULT FALSE,
					parent_id BIGINT REFERENCES teams(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					team_id BIGINT REFERENCES teams(id) ON DELETE CASCADE,
					name TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					resource TEXT NOT NULL,
					action TEXT NOT NULL,
					PRIMARY KEY (role_id, resource, action)
				);

				CREATE TABLE IF NOT EXISTS memberships (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					custom_role_id TEXT REFERENCES roles(id) ON DELETE SET NULL,
					accepted BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (user_id, team_id)
				);

				CREATE TABLE IF NOT EXISTS team_features (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					feature TEXT NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					PRIMARY KEY (team_id, feature)
				);

				CREATE TABLE IF NOT EXISTS custom_domains (
					domain TEXT PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					verified BOOLEAN NOT NULL DEFAULT FALSE
				);
			`,
		},
		{
			Version:     3,
			Description: "Create oauth clients",
			SQL: `
				CREATE TABLE IF NOT EXISTS oauth_clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					permissions BIGINT NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS oauth_access_tokens (
					token_hash TEXT PRIMARY KEY,
					client_id TEXT NOT NULL REFERENCES oauth_clients(id) ON DELETE CASCADE,
					expires_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_oauth_access_tokens_client_id ON oauth_access_tokens(client_id);
			`,
		},
		{
			Version:     4,
			Description: "Create audit events",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id TEXT PRIMARY KEY,
					occurred_at TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					user_id BIGINT,
					subject TEXT NOT NULL DEFAULT '',
					operation TEXT NOT NULL DEFAULT '',
					target TEXT NOT NULL DEFAULT '',
					request_id TEXT NOT NULL DEFAULT '',
					method TEXT NOT NULL DEFAULT '',
					path TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					metadata TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
			`,
		},
	}
}

// Migrate applies pending migrations in version order, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}
