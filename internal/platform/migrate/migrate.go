// Package migrate applies the schema migrations embedded in the binary.
// Versions are tracked in a schema_migrations table; each migration runs in
// its own transaction so a failure leaves no half-applied version behind.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	Name    string
	Up      string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "accounts",
		Up: `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL,
    username TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    -- NULL for local-only accounts; the store maps NULL and '' both to the
    -- empty string on the way out.
    provider TEXT,
    subject_id TEXT,
    role TEXT NOT NULL DEFAULT 'customer',
    status TEXT NOT NULL DEFAULT 'active',
    password_hash TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

-- Uniqueness applies to live accounts only. Anonymized rows keep their
-- synthetic addresses out of the live namespace, freeing the original
-- email and username for re-registration.
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email_live
    ON accounts (lower(email)) WHERE status <> 'deleted';
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username_live
    ON accounts (lower(username)) WHERE status <> 'deleted';
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_provider_subject
    ON accounts (provider, subject_id) WHERE provider <> '' AND subject_id <> '';
CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts (status);
`,
	},
	{
		Version: 2,
		Name:    "vendor_applications",
		Up: `
CREATE TABLE IF NOT EXISTS vendor_applications (
    id UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts (id),
    -- NULL until the vendor completes store setup.
    store_name TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    documents TEXT[] NOT NULL DEFAULT '{}',
    limit_flavors INT NOT NULL DEFAULT 5,
    limit_drums INT NOT NULL DEFAULT 2,
    limit_orders INT NOT NULL DEFAULT 50,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

-- One application per account, for its whole lifecycle.
CREATE UNIQUE INDEX IF NOT EXISTS idx_vendor_applications_account
    ON vendor_applications (account_id);
CREATE INDEX IF NOT EXISTS idx_vendor_applications_status
    ON vendor_applications (status);
`,
	},
}

// Run applies all pending migrations in version order.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	return exists, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
