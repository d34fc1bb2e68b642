// Package activity records lifecycle events in the permanent activity log.
// The log outlives the rows it describes; a hard-deleted entity's only
// remaining trace is its activity trail and the redacted snapshot stored in
// the deletion record's metadata.
package activity

import (
	"time"

	"opsportal/internal/entity"
)

// Record is one activity log entry.
type Record struct {
	ID           int64          `json:"id,omitempty"`
	ActivityType string         `json:"activityType"`
	Description  string         `json:"description"`
	ActorID      string         `json:"actorId"`
	ActorRole    string         `json:"actorRole"`
	TargetID     string         `json:"targetId"`
	TargetType   string         `json:"targetType"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Activity types are "{kind}_{event}" so the log can be filtered by either
// axis with a LIKE.
func TypeArchived(t entity.Type) string    { return string(t) + "_archived" }
func TypeRestored(t entity.Type) string    { return string(t) + "_restored" }
func TypeHardDeleted(t entity.Type) string { return string(t) + "_hard_deleted" }

// TypePurged marks removals performed by the retention sweep rather than an
// operator.
const TypePurged = "retention_purged"
