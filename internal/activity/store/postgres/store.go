// Package postgres persists activity records in the system_activity table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"opsportal/internal/activity"
	"opsportal/internal/entity"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/platform/tx"
)

// Store writes and reads activity records. Writes join an in-flight
// transaction from the context when one is present, which is how a deletion
// and its audit record commit or roll back together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
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

// Append inserts one activity record.
func (s *Store) Append(ctx context.Context, rec activity.Record) error {
	var metadata []byte
	if rec.Metadata != nil {
		var err error
		metadata, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
	}

	query := `
		INSERT INTO system_activity
			(activity_type, description, actor_id, actor_role, target_id, target_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ActivityType, rec.Description, rec.ActorID, rec.ActorRole,
		rec.TargetID, rec.TargetType, metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity record: %w", err)
	}
	return nil
}

// ListByTarget returns the activity trail for one entity, newest first.
func (s *Store) ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]activity.Record, error) {
	query := `
		SELECT id, activity_type, description, actor_id, actor_role, target_id, target_type, metadata, created_at
		FROM system_activity
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := s.execer(ctx).QueryContext(ctx, query, targetType, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity by target: %w", err)
	}
	defer rows.Close()

	var records []activity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return records, nil
}

// LatestDeletion returns the most recent permanent-deletion record for an
// entity, whether operator-initiated or written by the retention sweep. Its
// metadata carries the redacted tombstone snapshot.
func (s *Store) LatestDeletion(ctx context.Context, entityType entity.Type, targetID string) (activity.Record, error) {
	query := `
		SELECT id, activity_type, description, actor_id, actor_role, target_id, target_type, metadata, created_at
		FROM system_activity
		WHERE target_type = $1 AND target_id = $2
		  AND activity_type IN ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	row := s.execer(ctx).QueryRowContext(ctx, query,
		string(entityType), targetID,
		activity.TypeHardDeleted(entityType), activity.TypePurged,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return activity.Record{}, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (activity.Record, error) {
	var rec activity.Record
	var metadata []byte
	err := row.Scan(
		&rec.ID, &rec.ActivityType, &rec.Description,
		&rec.ActorID, &rec.ActorRole,
		&rec.TargetID, &rec.TargetType,
		&metadata, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Record{}, err
	}
	if err != nil {
		return activity.Record{}, fmt.Errorf("scan activity record: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return activity.Record{}, fmt.Errorf("unmarshal activity metadata: %w", err)
		}
	}
	return rec, nil
}
