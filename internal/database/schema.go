package database

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist yet. The statements are
// idempotent so the server can run them unconditionally at startup.
func Migrate(ctx context.Context, db *Database) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tbl_user (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tbl_client (
			id TEXT PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			redirect_uris TEXT[] NOT NULL DEFAULT '{}',
			first_party BOOLEAN NOT NULL DEFAULT FALSE,
			owner_user_id UUID REFERENCES tbl_user (id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tbl_authorization_code (
			code TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES tbl_client (id),
			user_id UUID NOT NULL REFERENCES tbl_user (id),
			redirect_uri TEXT NOT NULL,
			scopes TEXT[] NOT NULL DEFAULT '{}',
			used BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_authorization_code_expires_at ON tbl_authorization_code (expires_at)`,
		`CREATE TABLE IF NOT EXISTS tbl_access_token (
			token TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES tbl_client (id),
			user_id UUID NOT NULL REFERENCES tbl_user (id),
			scopes TEXT[] NOT NULL DEFAULT '{}',
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_token_expires_at ON tbl_access_token (expires_at)`,
		`CREATE TABLE IF NOT EXISTS tbl_refresh_token (
			token TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES tbl_client (id),
			user_id UUID NOT NULL REFERENCES tbl_user (id),
			scopes TEXT[] NOT NULL DEFAULT '{}',
			used BOOLEAN NOT NULL DEFAULT FALSE,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tbl_session (
			id UUID PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			user_id UUID REFERENCES tbl_user (id),
			pending_authorize JSONB,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}
