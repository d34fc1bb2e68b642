// Package postgres implements archive, restore and permanent deletion against
// the entity tables. All SQL for the lifecycle lives here; table and column
// names come from the entity registry, never from string literals in queries
// elsewhere.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"opsportal/internal/activity"
	"opsportal/internal/entity"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/platform/tx"
)

// Postgres error codes for schema pieces that may lag behind the archive
// migration. Listings treat a table missing its columns, or a missing
// archived_entities view, as having nothing archived.
const (
	pqUndefinedColumn = "42703"
	pqUndefinedTable  = "42P01"
)

// Store runs lifecycle SQL. The recorder is only used for writes that must
// commit atomically with a deletion; soft operations log their activity in
// the service layer after commit.
type Store struct {
	db       *sql.DB
	recorder *activity.Recorder
	logger   *slog.Logger
	grace    time.Duration
}

func New(db *sql.DB, recorder *activity.Recorder, logger *slog.Logger, grace time.Duration) *Store {
	return &Store{db: db, recorder: recorder, logger: logger, grace: grace}
}

type dbExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// withTx runs fn inside a transaction injected into the context, so every
// store call inside fn joins it.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx.WithTx(ctx, dbtx)); err != nil {
		_ = dbtx.Rollback()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// resolved is the outcome of locating an entity row: which table held it and
// under which ID spelling.
type resolved struct {
	table      string
	idColumn   string
	nameColumn string
	id         string
	fallback   bool
	snapshot   map[string]any
}

// resolve locates the row for an ID, trying the primary table first under
// every known spelling, then the fallback table for kinds that have one.
func (s *Store) resolve(ctx context.Context, d entity.Descriptor, id string) (resolved, error) {
	candidates := []string{id}
	if d.AltIDs != nil {
		candidates = append(candidates, d.AltIDs(id)...)
	}

	for _, candidate := range candidates {
		snap, err := s.rowSnapshot(ctx, d.Table, d.IDColumn, candidate)
		if err == nil {
			return resolved{table: d.Table, idColumn: d.IDColumn, nameColumn: d.NameColumn, id: candidate, snapshot: snap}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return resolved{}, err
		}
	}

	if d.Fallback != nil {
		for _, candidate := range candidates {
			snap, err := s.rowSnapshot(ctx, d.Fallback.Table, d.Fallback.IDColumn, candidate)
			if err == nil {
				return resolved{table: d.Fallback.Table, idColumn: d.Fallback.IDColumn, nameColumn: d.Fallback.NameColumn, id: candidate, fallback: true, snapshot: snap}, nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return resolved{}, err
			}
		}
	}

	return resolved{}, sentinel.ErrNotFound
}

// rowSnapshot reads one row as a generic map. Column sets differ per entity
// table, so the scan is driven by the result metadata instead of a struct.
func (s *Store) rowSnapshot(ctx context.Context, table, idColumn, id string) (map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`, pq.QuoteIdentifier(table), pq.QuoteIdentifier(idColumn))

	rows, err := s.execer(ctx).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s row: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("snapshot %s row: %w", table, err)
		}
		return nil, sql.ErrNoRows
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s columns: %w", table, err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s snapshot: %w", table, err)
	}

	snap := make(map[string]any, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			snap[col] = string(b)
			continue
		}
		snap[col] = values[i]
	}
	return snap, nil
}

// dependentSnapshot captures the dependent rows removed along with an
// entity, so an order's tombstone keeps its line items.
func (s *Store) dependentSnapshot(ctx context.Context, dep entity.DependentRows, id string) ([]map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(dep.Table), pq.QuoteIdentifier(dep.FKColumn))

	rows, err := s.execer(ctx).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s rows: %w", dep.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s columns: %w", dep.Table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s snapshot: %w", dep.Table, err)
		}
		snap := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				snap[col] = string(b)
				continue
			}
			snap[col] = values[i]
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s rows: %w", dep.Table, err)
	}
	return out, nil
}

// probeMetadata runs the kind-specific enrichment query, if any. Probe
// failures are reduced to absent metadata; enrichment never blocks an
// operation.
func (s *Store) probeMetadata(ctx context.Context, d entity.Descriptor, id string) map[string]any {
	var (
		meta map[string]any
		err  error
	)
	switch d.Probe {
	case entity.ProbeOrderCount:
		var count int
		err = s.execer(ctx).QueryRowContext(ctx,
			`SELECT COUNT(*) FROM order_items WHERE item_id = $1`, id).Scan(&count)
		meta = map[string]any{"orderCount": count}
	case entity.ProbeCatalogCategory:
		var category sql.NullString
		err = s.execer(ctx).QueryRowContext(ctx,
			`SELECT category FROM products WHERE product_id = $1`, id).Scan(&category)
		if category.Valid {
			meta = map[string]any{"catalogCategory": category.String}
		}
	case entity.ProbeOrderInfo:
		var createdBy, orderType, status sql.NullString
		err = s.execer(ctx).QueryRowContext(ctx,
			`SELECT created_by, order_type, status FROM orders WHERE order_id = $1`, id).
			Scan(&createdBy, &orderType, &status)
		meta = map[string]any{
			"createdBy": createdBy.String,
			"orderType": orderType.String,
			"status":    status.String,
		}
	default:
		return nil
	}

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.WarnContext(ctx, "metadata probe failed, continuing without",
				"entity_type", d.Type, "entity_id", id, "error", err)
		}
		return nil
	}
	return meta
}

func isUndefinedColumn(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUndefinedColumn
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUndefinedTable
}

func nameFromSnapshot(snap map[string]any, nameColumn string) string {
	if v, ok := snap[nameColumn]; ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

func archivedAtFromSnapshot(snap map[string]any) (time.Time, bool) {
	if v, ok := snap["archived_at"]; ok && v != nil {
		if t, ok := v.(time.Time); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// nullSetClause builds a SET clause that nulls every given column.
func nullSetClause(columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = pq.QuoteIdentifier(col) + " = NULL"
	}
	return strings.Join(parts, ", ")
}
