package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"opsportal/internal/activity"
	"opsportal/internal/archive/models"
	"opsportal/internal/entity"
	"opsportal/internal/redact"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/requestcontext"
)

// ActiveChildren counts non-archived rows still pointing at the entity.
// Children released at archive time no longer count, and neither does a child
// that is itself archived; only a live, assigned child blocks deletion.
func (s *Store) ActiveChildren(ctx context.Context, d entity.Descriptor, id string) (int64, error) {
	var total int64
	for _, edge := range d.Children {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND archived_at IS NULL`,
			pq.QuoteIdentifier(edge.Table), pq.QuoteIdentifier(edge.FKColumn))
		var count int64
		if err := s.execer(ctx).QueryRowContext(ctx, query, id).Scan(&count); err != nil {
			return 0, fmt.Errorf("count %s children: %w", edge.Table, err)
		}
		total += count
	}
	return total, nil
}

// HardDelete permanently removes an archived entity. The redacted tombstone
// record is written before the row is deleted and inside the same
// transaction, so a deletion without its audit trail cannot commit. Returns
// sentinel.ErrInvalidState when the entity is not archived and
// sentinel.ErrConflict when children still point at it.
func (s *Store) HardDelete(ctx context.Context, d entity.Descriptor, id, reason string) (models.HardDeleteResult, error) {
	var result models.HardDeleteResult

	err := s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.resolve(ctx, d, id)
		if err != nil {
			return err
		}
		if !s.isArchived(d, res) {
			return sentinel.ErrInvalidState
		}

		now := requestcontext.Now(ctx).UTC()
		if err := s.deleteForGood(ctx, d, res, activity.TypeHardDeleted(d.Type), reason, now); err != nil {
			return err
		}

		result = models.HardDeleteResult{
			EntityType: string(d.Type),
			EntityID:   res.id,
			DeletedAt:  now,
		}
		return nil
	})
	if err != nil {
		return models.HardDeleteResult{}, err
	}
	return result, nil
}

// Purge removes one entity on behalf of the retention sweep. Same
// transactional shape as HardDelete; only the activity type differs, so
// operator deletions and sweep deletions stay distinguishable in the log.
func (s *Store) Purge(ctx context.Context, d entity.Descriptor, id string) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.resolve(ctx, d, id)
		if err != nil {
			return err
		}
		if !s.isArchived(d, res) {
			return sentinel.ErrInvalidState
		}
		return s.deleteForGood(ctx, d, res, activity.TypePurged, "", requestcontext.Now(ctx).UTC())
	})
}

// DuePurge lists archived IDs whose stored deletion schedule has passed.
// The schedule is stamped at archive time, so reconfiguring the grace period
// never moves the date on rows already archived. Tables without archive
// columns report nothing due.
func (s *Store) DuePurge(ctx context.Context, d entity.Descriptor, now time.Time) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE archived_at IS NOT NULL AND deletion_scheduled IS NOT NULL AND deletion_scheduled < $1`,
		pq.QuoteIdentifier(d.IDColumn), pq.QuoteIdentifier(d.Table))

	rows, err := s.execer(ctx).QueryContext(ctx, query, now)
	if err != nil {
		if isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list due %s rows: %w", d.Table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due %s row: %w", d.Table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due %s rows: %w", d.Table, err)
	}
	return ids, nil
}

func (s *Store) isArchived(d entity.Descriptor, res resolved) bool {
	if res.fallback && d.Fallback.ActiveFlag != "" {
		active, ok := res.snapshot[d.Fallback.ActiveFlag].(bool)
		return ok && !active
	}
	_, archived := archivedAtFromSnapshot(res.snapshot)
	return archived
}

// deleteForGood is the shared tail of HardDelete and Purge. Order matters:
// the children check, the tombstone write, then the row. Failure at any step
// rolls back the whole transaction.
func (s *Store) deleteForGood(ctx context.Context, d entity.Descriptor, res resolved, activityType, reason string, now time.Time) error {
	children, err := s.ActiveChildren(ctx, d, res.id)
	if err != nil {
		return err
	}
	if children > 0 {
		return sentinel.ErrConflict
	}

	tombstone := map[string]any{
		"snapshot": redact.Snapshot(res.snapshot, d),
	}
	if reason != "" {
		tombstone["reason"] = reason
	}
	if name := nameFromSnapshot(res.snapshot, res.nameColumn); name != "" {
		tombstone["name"] = name
	}
	if meta := s.probeMetadata(ctx, d, res.id); meta != nil {
		tombstone["metadata"] = meta
	}
	for _, dep := range d.Dependents {
		rows, err := s.dependentSnapshot(ctx, dep, res.id)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			tombstone[dep.Table] = rows
		}
	}

	err = s.recorder.RecordStrict(ctx, activity.Record{
		ActivityType: activityType,
		Description:  fmt.Sprintf("Permanently deleted %s %s", d.Type, res.id),
		TargetID:     res.id,
		TargetType:   string(d.Type),
		Metadata:     tombstone,
		CreatedAt:    now,
	})
	if err != nil {
		return err
	}

	for _, dep := range d.Dependents {
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
			pq.QuoteIdentifier(dep.Table), pq.QuoteIdentifier(dep.FKColumn))
		if _, err := s.execer(ctx).ExecContext(ctx, query, res.id); err != nil {
			return fmt.Errorf("delete dependent %s rows: %w", dep.Table, err)
		}
	}

	rowDelete := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(res.table), pq.QuoteIdentifier(res.idColumn))
	if _, err := s.execer(ctx).ExecContext(ctx, rowDelete, res.id); err != nil {
		return fmt.Errorf("delete %s row: %w", res.table, err)
	}

	journalDelete := `DELETE FROM archive_relationships WHERE entity_type = $1 AND entity_id = $2`
	if _, err := s.execer(ctx).ExecContext(ctx, journalDelete, string(d.Type), res.id); err != nil {
		return fmt.Errorf("delete journal rows: %w", err)
	}
	return nil
}
