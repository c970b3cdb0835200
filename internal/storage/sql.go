package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"logfilters/internal/constants"
	"logfilters/internal/filters"
	pkgerrors "logfilters/pkg/errors"
	"logfilters/pkg/tracing"
)

const pgUniqueViolation = "23505"

// SQLRepository stores records in filter_records on sqlite3 or postgres.
// Queries are written with ? placeholders and rebound per dialect.
type SQLRepository struct {
	db      *sql.DB
	dialect string
}

func NewSQLRepository(db *sql.DB, dialect string) (*SQLRepository, error) {
	switch dialect {
	case constants.DatabaseSQLite, constants.DatabasePostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLRepository{db: db, dialect: dialect}, nil
}

func (r *SQLRepository) rebind(query string) string {
	if r.dialect != constants.DatabasePostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *SQLRepository) Insert(ctx context.Context, records []filters.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	if err := validateAll(records); err != nil {
		return err
	}

	ctx, span := tracing.StartStoreSpan(ctx, "storage.insert", string(records[0].Partition()))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(r.dialect, "insert", start, err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO filter_records (id, kind, content, exclusion, created_at)
		VALUES (?, ?, ?, ?, ?)
	`))
	if err != nil {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx, rec.ID, string(rec.Kind), rec.Content, rec.Exclusion, rec.CreatedAt.UTC()); err != nil {
			return r.insertError(rec, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to commit insert: %w", err))
	}
	return nil
}

func (r *SQLRepository) insertError(rec filters.Record, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return pkgerrors.ErrConflict.WithCause(err).WithDetail("record_id", rec.ID)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return pkgerrors.ErrConflict.WithCause(err).WithDetail("record_id", rec.ID)
	}
	return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to insert record %s: %w", rec.ID, err))
}

func (r *SQLRepository) List(ctx context.Context, partition filters.Partition) (records []filters.Record, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "storage.list", string(partition))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(r.dialect, "list", start, err) }()

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, kind, content, exclusion, created_at
		FROM filter_records
		WHERE exclusion = ?
		ORDER BY created_at ASC, id ASC
	`), partition.IsExclusion())
	if err != nil {
		return nil, pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to list records: %w", err))
	}
	defer rows.Close()

	records = make([]filters.Record, 0)
	for rows.Next() {
		var (
			rec  filters.Record
			kind string
		)
		if err = rows.Scan(&rec.ID, &kind, &rec.Content, &rec.Exclusion, &rec.CreatedAt); err != nil {
			return nil, pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to scan record: %w", err))
		}
		rec.Kind = filters.Kind(kind)
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, pkgerrors.ErrPersistence.WithCause(fmt.Errorf("rows iteration error: %w", err))
	}

	return records, nil
}

func (r *SQLRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "storage.delete", "")
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(r.dialect, "delete", start, err) }()

	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM filter_records WHERE id = ?`), id)
	if err != nil {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to delete record: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.ErrPersistence.WithCause(err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound.WithDetail("record_id", id)
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
