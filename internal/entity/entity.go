// Package entity is the static catalog of every entity kind the lifecycle
// service manages. All per-kind knowledge lives here as data: which table a
// kind lives in, how its rows are keyed and named, which foreign keys tie
// children to it, and which columns hold personal information. The stores
// consult this catalog instead of hard-coding kinds, so adding a kind is a
// registry entry plus a migration, not a code change.
package entity

import "strings"

// Type identifies one managed entity kind.
type Type string

const (
	TypeManager    Type = "manager"
	TypeContractor Type = "contractor"
	TypeCustomer   Type = "customer"
	TypeCenter     Type = "center"
	TypeCrew       Type = "crew"
	TypeWarehouse  Type = "warehouse"
	TypeProduct    Type = "product"
	TypeOrder      Type = "order"
	TypeService    Type = "service"
	TypeReport     Type = "report"
	TypeFeedback   Type = "feedback"
)

// ProbeKind selects the extra metadata query the snapshotter runs for a kind.
// The SQL itself lives in the store; the registry only names which probe
// applies.
type ProbeKind int

const (
	ProbeNone ProbeKind = iota
	// ProbeOrderCount counts orders referencing a service.
	ProbeOrderCount
	// ProbeCatalogCategory resolves a product's catalog category.
	ProbeCatalogCategory
	// ProbeOrderInfo captures an order's creator, type and status.
	ProbeOrderInfo
)

// ChildEdge describes one foreign key pointing at this kind. Archiving the
// parent nulls FKColumn on every matching child row, which moves the child to
// the unassigned pool without touching the child's own lifecycle state.
type ChildEdge struct {
	Type       Type
	Table      string
	FKColumn   string
	IDColumn   string
	NameColumn string

	// ExtraNullColumns are additional foreign keys cleared alongside
	// FKColumn. A center losing its customer also loses the contractor it
	// inherited through that customer.
	ExtraNullColumns []string
}

// ParentEdge describes the single upward foreign key of a kind, used to
// record who the entity belonged to at archive time.
type ParentEdge struct {
	Type             Type
	FKColumn         string
	ParentTable      string
	ParentIDColumn   string
	ParentNameColumn string
}

// Fallback names a secondary table consulted when the primary table has no
// row for an ID. Products predate the inventory tables and services keep a
// catalog row that is toggled rather than archived.
type Fallback struct {
	Table      string
	IDColumn   string
	NameColumn string

	// ActiveFlag, when set, is a boolean column toggled instead of stamping
	// archive columns on the fallback row.
	ActiveFlag string
}

// DependentRows names a table whose rows exist only as part of this kind and
// are removed together with it on permanent deletion. Line items under an
// order, not entities in their own right.
type DependentRows struct {
	Table    string
	FKColumn string
}

// Descriptor is the full static description of one entity kind.
type Descriptor struct {
	Type       Type
	Table      string
	IDColumn   string
	NameColumn string

	Children   []ChildEdge
	Parent     *ParentEdge
	Fallback   *Fallback
	Dependents []DependentRows

	// AltIDs returns alternate spellings of an ID to try when the primary
	// lookup misses. Nil for kinds with a single canonical form.
	AltIDs func(id string) []string

	Probe ProbeKind

	// PIIFields are top-level snapshot keys blanked on permanent deletion.
	// NestedContacts are keys whose object values are redacted recursively.
	PIIFields      []string
	NestedContacts []string

	// HasOrderType marks kinds whose archive listing carries an order_type
	// column.
	HasOrderType bool
}

// NormalizeID canonicalizes an entity ID for lookups and journal rows.
// IDs are case-insensitive on the way in and stored uppercase.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
