// Package domain holds the aggregates, relations, and event types shared by
// every component of the authorization core. Types here are intentionally
// monomorphic over string identifiers: the service that sits above this
// core is responsible for any richer typing of users, groups, or entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which aggregate or relation an Event describes.
type Kind string

const (
	KindUser                   Kind = "user"
	KindGroup                  Kind = "group"
	KindGroupToGroup           Kind = "group_to_group"
	KindUserToGroup            Kind = "user_to_group"
	KindEntityType              Kind = "entity_type"
	KindEntity                 Kind = "entity"
	KindApplicationComponent    Kind = "application_component"
	KindAccessLevel             Kind = "access_level"
	KindUserToComponentAccess   Kind = "user_to_component_access"
	KindGroupToComponentAccess  Kind = "group_to_component_access"
	KindUserToEntity            Kind = "user_to_entity"
	KindGroupToEntity           Kind = "group_to_entity"
)

// Action is the mutation an Event applies to its aggregate or relation.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindGroupToGroup, KindUserToGroup,
		KindEntityType, KindEntity, KindApplicationComponent, KindAccessLevel,
		KindUserToComponentAccess, KindGroupToComponentAccess,
		KindUserToEntity, KindGroupToEntity:
		return true
	}
	return false
}

// Valid reports whether a is add or remove.
func (a Action) Valid() bool {
	return a == ActionAdd || a == ActionRemove
}

// Event is the immutable unit the system persists and replays. Payload holds
// the aggregate's key fields in kind-specific order (e.g. for
// user_to_entity: [user, entity_type, entity]); at most 3 fields are used.
type Event struct {
	EventID   uuid.UUID
	Kind      Kind
	Action    Action
	Occurred  time.Time
	HashCode  int32
	Payload   [3]string

	// CorrelationID is ambient-only: it never participates in ordering,
	// routing, or persistence uniqueness. It is propagated from
	// internal/requestctx for log and trace correlation.
	CorrelationID string
}

// PrimaryKey returns the hashable key for this event: the user, group, or
// entity-type identifier that determines its shard, per spec.md's "Hash
// code" rule. Relation events hash on their owning (first) identifier.
func (e Event) PrimaryKey() string {
	return e.Payload[0]
}
