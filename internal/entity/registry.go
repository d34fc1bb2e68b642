package entity

import "strings"

// registry holds one Descriptor per managed kind, in the order listings and
// sweeps visit them. Parents come before their children so a full sweep
// releases child rows before their parents disappear.
var registry = []Descriptor{
	{
		Type:       TypeManager,
		Table:      "managers",
		IDColumn:   "manager_id",
		NameColumn: "name",
		Children: []ChildEdge{
			{Type: TypeContractor, Table: "contractors", FKColumn: "cks_manager", IDColumn: "contractor_id", NameColumn: "name"},
			{Type: TypeWarehouse, Table: "warehouses", FKColumn: "managed_by", IDColumn: "warehouse_id", NameColumn: "name"},
		},
		PIIFields: []string{"email", "phone", "address"},
	},
	{
		Type:       TypeContractor,
		Table:      "contractors",
		IDColumn:   "contractor_id",
		NameColumn: "name",
		Children: []ChildEdge{
			{Type: TypeCustomer, Table: "customers", FKColumn: "contractor_id", IDColumn: "customer_id", NameColumn: "name"},
		},
		Parent: &ParentEdge{
			Type:             TypeManager,
			FKColumn:         "cks_manager",
			ParentTable:      "managers",
			ParentIDColumn:   "manager_id",
			ParentNameColumn: "name",
		},
		PIIFields: []string{"email", "phone", "address"},
	},
	{
		Type:       TypeCustomer,
		Table:      "customers",
		IDColumn:   "customer_id",
		NameColumn: "name",
		Children: []ChildEdge{
			// A center that loses its customer also loses the contractor it
			// reached through that customer.
			{Type: TypeCenter, Table: "centers", FKColumn: "customer_id", IDColumn: "center_id", NameColumn: "name", ExtraNullColumns: []string{"contractor_id"}},
		},
		Parent: &ParentEdge{
			Type:             TypeContractor,
			FKColumn:         "contractor_id",
			ParentTable:      "contractors",
			ParentIDColumn:   "contractor_id",
			ParentNameColumn: "name",
		},
		PIIFields: []string{"email", "phone", "address"},
	},
	{
		Type:       TypeCenter,
		Table:      "centers",
		IDColumn:   "center_id",
		NameColumn: "name",
		Children: []ChildEdge{
			{Type: TypeCrew, Table: "crew", FKColumn: "assigned_center", IDColumn: "crew_id", NameColumn: "name"},
		},
		Parent: &ParentEdge{
			Type:             TypeCustomer,
			FKColumn:         "customer_id",
			ParentTable:      "customers",
			ParentIDColumn:   "customer_id",
			ParentNameColumn: "name",
		},
		PIIFields:      []string{"phone", "address"},
		NestedContacts: []string{"contact"},
	},
	{
		Type:       TypeCrew,
		Table:      "crew",
		IDColumn:   "crew_id",
		NameColumn: "name",
		Parent: &ParentEdge{
			Type:             TypeCenter,
			FKColumn:         "assigned_center",
			ParentTable:      "centers",
			ParentIDColumn:   "center_id",
			ParentNameColumn: "name",
		},
		PIIFields:      []string{"email", "phone", "address"},
		NestedContacts: []string{"emergency_contact"},
	},
	{
		Type:       TypeWarehouse,
		Table:      "warehouses",
		IDColumn:   "warehouse_id",
		NameColumn: "name",
		Parent: &ParentEdge{
			Type:             TypeManager,
			FKColumn:         "managed_by",
			ParentTable:      "managers",
			ParentIDColumn:   "manager_id",
			ParentNameColumn: "name",
		},
		PIIFields:      []string{"phone", "address"},
		NestedContacts: []string{"contact"},
	},
	{
		Type:       TypeProduct,
		Table:      "inventory_items",
		IDColumn:   "item_id",
		NameColumn: "name",
		Fallback:   &Fallback{Table: "products", IDColumn: "product_id", NameColumn: "name"},
		AltIDs:     productAltIDs,
		Probe:      ProbeCatalogCategory,
	},
	{
		// Orders never own other entities; the order_items rows under them
		// are line items, not entities with their own lifecycle.
		Type:         TypeOrder,
		Table:        "orders",
		IDColumn:     "order_id",
		NameColumn:   "order_id",
		Dependents:   []DependentRows{{Table: "order_items", FKColumn: "order_id"}},
		Probe:        ProbeOrderInfo,
		HasOrderType: true,
		PIIFields:    []string{"delivery_address"},
	},
	{
		Type:       TypeService,
		Table:      "services",
		IDColumn:   "service_id",
		NameColumn: "service_name",
		Fallback:   &Fallback{Table: "catalog_services", IDColumn: "service_id", NameColumn: "name", ActiveFlag: "is_active"},
		Probe:      ProbeOrderCount,
	},
	{
		Type:       TypeReport,
		Table:      "reports",
		IDColumn:   "report_id",
		NameColumn: "title",
	},
	{
		Type:       TypeFeedback,
		Table:      "feedback",
		IDColumn:   "feedback_id",
		NameColumn: "title",
		PIIFields:  []string{"email"},
	},
}

var byType = func() map[Type]Descriptor {
	m := make(map[Type]Descriptor, len(registry))
	for _, d := range registry {
		m[d.Type] = d
	}
	return m
}()

// Lookup resolves a kind name to its Descriptor. Kind names are matched
// case-insensitively.
func Lookup(kind string) (Descriptor, bool) {
	d, ok := byType[Type(strings.ToLower(strings.TrimSpace(kind)))]
	return d, ok
}

// All returns every registered Descriptor in sweep order.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// productAltIDs bridges the two historic spellings of a product ID: the short
// form PRD-5 and the zero-padded form PRD-00000005 used by the legacy
// catalog. Returns the spellings that differ from the input.
func productAltIDs(id string) []string {
	num, ok := strings.CutPrefix(id, "PRD-")
	if !ok || num == "" {
		return nil
	}
	short := strings.TrimLeft(num, "0")
	if short == "" {
		short = "0"
	}
	padded := short
	if len(short) < 8 {
		padded = strings.Repeat("0", 8-len(short)) + short
	}

	candidates := []string{"PRD-" + short}
	if padded != short {
		candidates = append(candidates, "PRD-"+padded)
	}

	var alts []string
	for _, candidate := range candidates {
		if candidate != id {
			alts = append(alts, candidate)
		}
	}
	return alts
}
