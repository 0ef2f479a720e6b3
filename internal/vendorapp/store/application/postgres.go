package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/pgerr"
	"mercato/pkg/platform/sentinel"
	txcontext "mercato/pkg/platform/tx"
)

// PostgresStore persists vendor applications in PostgreSQL. One application
// per account is enforced by a unique index on account_id (see
// internal/platform/migrate).
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

const appColumns = `id, account_id, store_name, status, documents, limit_flavors, limit_drums, limit_orders, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.VendorApplication, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM vendor_applications WHERE id = $1`, uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.VendorApplication, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM vendor_applications WHERE account_id = $1`, uuid.UUID(accountID))
	return scanApplication(row)
}

func (s *PostgresStore) Insert(ctx context.Context, app *models.VendorApplication) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO vendor_applications (`+appColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(app.ID), uuid.UUID(app.AccountID),
		sql.NullString{String: app.StoreName, Valid: app.StoreName != ""},
		string(app.Status), pq.Array(docStrings(app.Documents)),
		app.Limits.Flavors, app.Limits.Drums, app.Limits.Orders,
		app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return fmt.Errorf("insert application: %w", sentinel.ErrConflict)
		}
		return storeErr("insert application", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.VendorApplication) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE vendor_applications
		SET store_name = $2, status = $3, documents = $4,
		    limit_flavors = $5, limit_drums = $6, limit_orders = $7, updated_at = $8
		WHERE id = $1`,
		uuid.UUID(app.ID),
		sql.NullString{String: app.StoreName, Valid: app.StoreName != ""},
		string(app.Status), pq.Array(docStrings(app.Documents)),
		app.Limits.Flavors, app.Limits.Drums, app.Limits.Orders, app.UpdatedAt)
	if err != nil {
		return storeErr("update application", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update application", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, appID id.ApplicationID) error {
	res, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM vendor_applications WHERE id = $1`, uuid.UUID(appID))
	if err != nil {
		return storeErr("delete application", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete application", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute locks the row with FOR UPDATE, validates, mutates, and writes in
// one transaction. Validation errors roll back without touching the row.
// When the context already carries a transaction (tx.SQLRunner), Execute
// joins it; commit and rollback then belong to the runner.
func (s *PostgresStore) Execute(ctx context.Context, appID id.ApplicationID, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, error) {
	if dbTx, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, dbTx, appID, validate, mutate)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	app, err := s.executeIn(ctx, dbTx, appID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, storeErr("commit tx", err)
	}
	return app, nil
}

func (s *PostgresStore) executeIn(ctx context.Context, dbTx *sql.Tx, appID id.ApplicationID, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, error) {
	row := dbTx.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM vendor_applications WHERE id = $1 FOR UPDATE`, uuid.UUID(appID))
	app, err := scanApplication(row)
	if err != nil {
		return nil, err
	}
	if err := validate(app); err != nil {
		return nil, err
	}
	mutate(app)

	if err := s.Update(txcontext.WithTx(ctx, dbTx), app); err != nil {
		return nil, err
	}
	return app, nil
}

// ListByAccountIDs returns every application owned by one of the given
// accounts.
func (s *PostgresStore) ListByAccountIDs(ctx context.Context, accountIDs []id.AccountID) ([]*models.VendorApplication, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	raw := make([]uuid.UUID, len(accountIDs))
	for i, accountID := range accountIDs {
		raw[i] = uuid.UUID(accountID)
	}
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+appColumns+` FROM vendor_applications WHERE account_id = ANY($1)`, pq.Array(raw))
	if err != nil {
		return nil, storeErr("list applications", err)
	}
	defer rows.Close()

	var out []*models.VendorApplication
	for rows.Next() {
		app, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func scanApplication(row *sql.Row) (*models.VendorApplication, error) {
	app, err := scanInto(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

func scanApplicationRows(rows *sql.Rows) (*models.VendorApplication, error) {
	return scanInto(rows.Scan)
}

func scanInto(scan func(dest ...any) error) (*models.VendorApplication, error) {
	var app models.VendorApplication
	var appID, accountID uuid.UUID
	var storeName sql.NullString
	var status string
	var documents pq.StringArray
	var createdAt, updatedAt time.Time
	err := scan(&appID, &accountID, &storeName, &status, &documents,
		&app.Limits.Flavors, &app.Limits.Drums, &app.Limits.Orders,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("scan application", err)
	}
	app.ID = id.ApplicationID(appID)
	app.AccountID = id.AccountID(accountID)
	app.StoreName = storeName.String
	app.Status = models.Status(status)
	app.Documents = make([]models.DocumentRef, len(documents))
	for i, d := range documents {
		app.Documents[i] = models.DocumentRef(d)
	}
	app.CreatedAt = createdAt
	app.UpdatedAt = updatedAt
	return &app, nil
}

func docStrings(docs []models.DocumentRef) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = string(d)
	}
	return out
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
