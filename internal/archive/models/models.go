// Package models holds the wire and storage shapes of the archive domain.
package models

import "time"

// ArchivedEntity is one row of an archive listing.
type ArchivedEntity struct {
	EntityType      string     `json:"entityType"`
	EntityID        string     `json:"entityId"`
	Name            string     `json:"name"`
	OrderType       *string    `json:"orderType,omitempty"`
	ArchivedAt      time.Time `json:"archivedAt"`
	ArchivedBy      string    `json:"archivedBy"`
	Reason          string    `json:"archiveReason,omitempty"`
	DeleteScheduled time.Time `json:"deleteScheduled"`
	DaysUntilDelete int       `json:"daysUntilDelete"`
}

// Relationship is one journaled edge captured at archive time.
type Relationship struct {
	ID               int64          `json:"id"`
	EntityType       string         `json:"entityType"`
	EntityID         string         `json:"entityId"`
	ParentType       string         `json:"parentType,omitempty"`
	ParentID         string         `json:"parentId,omitempty"`
	RelationshipData map[string]any `json:"relationshipData,omitempty"`
	ArchivedBy       string         `json:"archivedBy"`
	ArchivedAt       time.Time      `json:"archivedAt"`
	Restored         bool           `json:"restored"`
}

// ArchiveResult reports one completed archive operation.
type ArchiveResult struct {
	EntityType         string    `json:"entityType"`
	EntityID           string    `json:"entityId"`
	ArchivedAt         time.Time `json:"archivedAt"`
	ChildrenUnassigned int64     `json:"childrenUnassigned"`
}

// RestoreResult reports one completed restore. Restored entities re-enter the
// active pool unassigned; Unassigned is always true today and exists so the
// response shape survives a future re-parenting option.
type RestoreResult struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	RestoredAt time.Time `json:"restoredAt"`
	Unassigned bool      `json:"unassigned"`
}

// HardDeleteResult reports one completed permanent deletion.
type HardDeleteResult struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	DeletedAt  time.Time `json:"deletedAt"`
}

// BatchItem names one entity in a batch archive request.
type BatchItem struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// BatchOutcome is the per-item result of a batch archive. A failed item
// carries its error message; the batch as a whole never fails wholesale.
type BatchOutcome struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BatchResult aggregates the outcomes of one batch archive.
type BatchResult struct {
	Outcomes  []BatchOutcome `json:"outcomes"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Stats summarizes the archive across all kinds.
type Stats struct {
	TotalArchived int            `json:"totalArchived"`
	ByType        map[string]int `json:"byType"`
	DueForPurge   int            `json:"dueForPurge"`
}

// Entity lifecycle states reported by the state lookup.
const (
	StateActive   = "active"
	StateArchived = "archived"
	StateDeleted  = "deleted"
)

// EntityState is the resolved lifecycle position of one entity.
type EntityState struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	State      string         `json:"state"`
	ArchivedAt *time.Time     `json:"archivedAt,omitempty"`
	DeletedAt  *time.Time     `json:"deletedAt,omitempty"`
	Snapshot   map[string]any `json:"snapshot,omitempty"`
}
