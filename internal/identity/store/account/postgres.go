package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercato/internal/identity/models"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/pgerr"
	"mercato/pkg/platform/sentinel"
	txcontext "mercato/pkg/platform/tx"
)

// PostgresStore persists accounts in PostgreSQL. Email and username
// uniqueness among non-deleted rows is enforced by partial unique indexes
// (see internal/platform/migrate); the store surfaces violations as
// sentinel.ErrConflict so the reconciler can run its single retry.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const accountColumns = `id, email, username, first_name, last_name, provider, subject_id, role, status, password_hash, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uuid.UUID(accountID))
	return scanAccount(row)
}

// FindByEmail matches the stored email exactly. Deleted rows are returned
// too; the reconciler needs them to drive restoration.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *PostgresStore) FindBySubjectID(ctx context.Context, provider, subjectID string) (*models.Account, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE provider = $1 AND subject_id = $2`,
		provider, subjectID)
	return scanAccount(row)
}

func (s *PostgresStore) UsernameTaken(ctx context.Context, username string, excludeAnonymized bool) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1))`
	if excludeAnonymized {
		query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1) AND status <> 'deleted')`
	}
	var taken bool
	if err := s.querier(ctx).QueryRowContext(ctx, query, username).Scan(&taken); err != nil {
		return false, storeErr("check username", err)
	}
	return taken, nil
}

func (s *PostgresStore) Insert(ctx context.Context, acct *models.Account) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(acct.ID), acct.Email, acct.Username, acct.FirstName, acct.LastName,
		nullable(acct.Provider), nullable(acct.SubjectID),
		string(acct.Role), string(acct.Status), nullable(acct.PasswordHash),
		acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return fmt.Errorf("insert account: %w", sentinel.ErrConflict)
		}
		return storeErr("insert account", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, acct *models.Account) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE accounts
		SET email = $2, username = $3, first_name = $4, last_name = $5,
		    provider = $6, subject_id = $7, role = $8, status = $9,
		    password_hash = $10, updated_at = $11
		WHERE id = $1`,
		uuid.UUID(acct.ID), acct.Email, acct.Username, acct.FirstName, acct.LastName,
		nullable(acct.Provider), nullable(acct.SubjectID),
		string(acct.Role), string(acct.Status), nullable(acct.PasswordHash),
		acct.UpdatedAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return fmt.Errorf("update account: %w", sentinel.ErrConflict)
		}
		return storeErr("update account", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update account", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute locks the row with FOR UPDATE, runs validate then mutate, and
// writes the result in the same transaction. Validation errors roll back
// without touching the row. When the context already carries a transaction
// (tx.SQLRunner), Execute joins it instead of opening its own; commit and
// rollback then belong to the runner.
func (s *PostgresStore) Execute(ctx context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	if dbTx, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, dbTx, accountID, validate, mutate)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	acct, err := s.executeIn(ctx, dbTx, accountID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, storeErr("commit tx", err)
	}
	return acct, nil
}

func (s *PostgresStore) executeIn(ctx context.Context, dbTx *sql.Tx, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	row := dbTx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, uuid.UUID(accountID))
	acct, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if err := validate(acct); err != nil {
		return nil, err
	}
	mutate(acct)

	if err := s.Update(txcontext.WithTx(ctx, dbTx), acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// ListDeletedIDs returns the IDs of all anonymized accounts, including
// legacy rows recognizable only by the reserved email pattern.
func (s *PostgresStore) ListDeletedIDs(ctx context.Context) ([]id.AccountID, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT id FROM accounts
		 WHERE status = 'deleted'
		    OR email LIKE 'deleted\_%@deleted.local'
		    OR first_name = 'Deleted User'`)
	if err != nil {
		return nil, storeErr("list deleted accounts", err)
	}
	defer rows.Close()

	var out []id.AccountID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, storeErr("scan deleted account", err)
		}
		out = append(out, id.AccountID(u))
	}
	return out, rows.Err()
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var acct models.Account
	var u uuid.UUID
	var provider, subjectID, passwordHash sql.NullString
	var role, status string
	var createdAt, updatedAt time.Time
	err := row.Scan(&u, &acct.Email, &acct.Username, &acct.FirstName, &acct.LastName,
		&provider, &subjectID, &role, &status, &passwordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeErr("scan account", err)
	}
	acct.ID = id.AccountID(u)
	acct.Provider = provider.String
	acct.SubjectID = subjectID.String
	acct.PasswordHash = passwordHash.String
	acct.Role = models.Role(role)
	acct.Status = models.Status(status)
	acct.CreatedAt = createdAt
	acct.UpdatedAt = updatedAt
	models.NormalizeLegacyDeleted(&acct)
	return &acct, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
