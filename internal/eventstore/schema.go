package eventstore

import "accessfabric/internal/domain"

// tableInfo names the physical table and payload-column layout backing one
// domain.Kind. Column order always matches the kind's payload field order
// (see payloadFields), so generic SQL can be built once and reused for
// every kind. Vendor schema itself — column types, indexes, constraints —
// is out of scope (spec.md §1): this store only relies on the invariants
// the schema must uphold, not on any particular DDL.
type tableInfo struct {
	Name    string
	Columns []string
}

// tables maps every event kind to its bitemporal table. Column names are
// illustrative; any schema preserving the bitemporal row invariant (id,
// transaction_from, transaction_to, plus these key columns) satisfies this
// store.
var tables = map[domain.Kind]tableInfo{
	domain.KindUser:                   {Name: "users", Columns: []string{"user_id"}},
	domain.KindGroup:                  {Name: "groups", Columns: []string{"group_id"}},
	domain.KindEntityType:             {Name: "entity_types", Columns: []string{"entity_type_id"}},
	domain.KindApplicationComponent:   {Name: "application_components", Columns: []string{"component_id"}},
	domain.KindAccessLevel:            {Name: "access_levels", Columns: []string{"access_level_id"}},
	domain.KindEntity:                 {Name: "entities", Columns: []string{"entity_type_id", "entity_id"}},
	domain.KindUserToGroup:            {Name: "user_to_group", Columns: []string{"user_id", "group_id"}},
	domain.KindGroupToGroup:           {Name: "group_to_group", Columns: []string{"from_group_id", "to_group_id"}},
	domain.KindUserToComponentAccess:  {Name: "user_to_component_access", Columns: []string{"user_id", "component_id", "access_level_id"}},
	domain.KindGroupToComponentAccess: {Name: "group_to_component_access", Columns: []string{"group_id", "component_id", "access_level_id"}},
	domain.KindUserToEntity:           {Name: "user_to_entity", Columns: []string{"user_id", "entity_type_id", "entity_id"}},
	domain.KindGroupToEntity:          {Name: "group_to_entity", Columns: []string{"group_id", "entity_type_id", "entity_id"}},
}

// eventIndexTable backs the event_id -> transaction_time uniqueness index
// spec.md §4.1 requires.
const eventIndexTable = "event_index"

// auditTable backs the kind-specific "event_id -> row_id" audit trail;
// spec.md allows one table per kind, but a single table keyed by kind
// preserves the same invariant (one audit row per persisted event) with
// far less schema surface.
const auditTable = "event_audit"
