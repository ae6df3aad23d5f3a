// Package postgres stores procurement documents as JSONB rows with a version
// column. Optimistic checks run in the UPDATE predicate; unique violations
// and serialization failures both surface as store.ErrConflict.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend implements store.Backend on PostgreSQL.
type Backend struct {
	pool    *pgxpool.Pool
	q       querier
	timeout time.Duration
	inTx    bool
}

// New wraps pool. timeout bounds every single statement; zero disables it.
func New(pool *pgxpool.Pool, timeout time.Duration) *Backend {
	return &Backend{pool: pool, q: pool, timeout: timeout}
}

// Migrate creates the document, approval and idempotency tables.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

// Collection returns the collection for kind.
func (b *Backend) Collection(kind store.Kind) store.Collection {
	return &collection{backend: b, kind: kind}
}

// WithTx runs fn inside a RepeatableRead transaction. Nested calls run in a
// savepoint so a failed statement does not poison the outer transaction.
func (b *Backend) WithTx(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	if b.inTx {
		tx, ok := b.q.(pgx.Tx)
		if !ok {
			return fn(ctx, b)
		}
		sp, err := tx.Begin(ctx)
		if err != nil {
			return translate(err)
		}
		defer func() {
			_ = sp.Rollback(ctx)
		}()
		if err := fn(ctx, &Backend{pool: b.pool, q: sp, timeout: b.timeout, inTx: true}); err != nil {
			return err
		}
		return translate(sp.Commit(ctx))
	}
	err := db.WithTx(ctx, b.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Backend{pool: b.pool, q: tx, timeout: b.timeout, inTx: true})
	})
	return translate(err)
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// translate maps driver errors onto the store contract.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrTimeout) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	return err
}

const selectColumns = `tenant_id, kind, id, number, status, ref_id, version, body, created_at, updated_at`

type collection struct {
	backend *Backend
	kind    store.Kind
}

func scanDocument(row pgx.Row) (store.Document, error) {
	var doc store.Document
	var kind string
	if err := row.Scan(&doc.TenantID, &kind, &doc.ID, &doc.Number, &doc.Status, &doc.RefID, &doc.Version, &doc.Body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return store.Document{}, err
	}
	doc.Kind = store.Kind(kind)
	return doc, nil
}

func (c *collection) Get(ctx context.Context, tenantID, id string) (store.Document, error) {
	ctx, cancel := c.backend.withTimeout(ctx)
	defer cancel()
	row := c.backend.q.QueryRow(ctx, `SELECT `+selectColumns+` FROM procurement_documents
WHERE tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, string(c.kind), id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	return doc, translate(err)
}

func (c *collection) List(ctx context.Context, tenantID string, filter store.Filter) ([]store.Document, error) {
	ctx, cancel := c.backend.withTimeout(ctx)
	defer cancel()
	limit := any(nil)
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := c.backend.q.Query(ctx, `SELECT `+selectColumns+` FROM procurement_documents
WHERE tenant_id=$1 AND kind=$2
  AND ($3 = '' OR status = $3)
  AND ($4 = '' OR ref_id = $4)
ORDER BY created_at ASC, id ASC
LIMIT $5 OFFSET $6`, tenantID, string(c.kind), filter.Status, filter.RefID, limit, max(filter.Offset, 0))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var docs []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, translate(err)
		}
		docs = append(docs, doc)
	}
	return docs, translate(rows.Err())
}

func (c *collection) Put(ctx context.Context, tenantID string, doc store.Document, expectedVersion int64) (store.Document, error) {
	ctx, cancel := c.backend.withTimeout(ctx)
	defer cancel()
	doc.TenantID = tenantID
	doc.Kind = c.kind
	if expectedVersion == 0 {
		row := c.backend.q.QueryRow(ctx, `INSERT INTO procurement_documents
(tenant_id, kind, id, number, status, ref_id, version, body, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 1, $7, NOW(), NOW())
RETURNING `+selectColumns, tenantID, string(c.kind), doc.ID, doc.Number, doc.Status, doc.RefID, doc.Body)
		saved, err := scanDocument(row)
		return saved, translate(err)
	}
	row := c.backend.q.QueryRow(ctx, `UPDATE procurement_documents
SET number=$4, status=$5, ref_id=$6, body=$7, version=version+1, updated_at=NOW()
WHERE tenant_id=$1 AND kind=$2 AND id=$3 AND version=$8
RETURNING `+selectColumns, tenantID, string(c.kind), doc.ID, doc.Number, doc.Status, doc.RefID, doc.Body, expectedVersion)
	saved, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, store.ErrConflict
	}
	return saved, translate(err)
}

func (c *collection) Delete(ctx context.Context, tenantID, id string) error {
	ctx, cancel := c.backend.withTimeout(ctx)
	defer cancel()
	tag, err := c.backend.q.Exec(ctx, `DELETE FROM procurement_documents WHERE tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, string(c.kind), id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
