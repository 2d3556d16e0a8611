package eventstore

import (
	"strings"

	"accessfabric/internal/domain"
)

// keySeparator joins a relation's payload fields into the single string key
// used by IsLive/ListLive and by the in-memory store's row index. It uses a
// control character unlikely to appear in an identifier, avoiding ambiguity
// between e.g. ("ab", "c") and ("a", "bc").
const keySeparator = "\x1f"

// RelationKey joins a relation event's payload fields into the compound key
// its live-row index is stored under.
func RelationKey(fields ...string) string {
	return strings.Join(fields, keySeparator)
}

// SplitRelationKey reverses RelationKey, for callers enumerating
// ListLive's compound keys back into their individual fields (e.g. the
// query service resolving "which groups is this user a direct member of"
// from every live user_to_group key).
func SplitRelationKey(key string) []string {
	return strings.Split(key, keySeparator)
}

// payloadFields returns how many of domain.Event.Payload's three slots kind
// uses, and reports whether kind is a single-key aggregate (true) or a
// multi-key relation (false).
func payloadFields(kind domain.Kind) (n int, aggregate bool) {
	switch kind {
	case domain.KindUser, domain.KindGroup, domain.KindEntityType,
		domain.KindApplicationComponent, domain.KindAccessLevel:
		return 1, true
	case domain.KindUserToGroup, domain.KindGroupToGroup:
		return 2, false
	case domain.KindEntity:
		return 2, false
	case domain.KindUserToComponentAccess, domain.KindGroupToComponentAccess:
		return 3, false
	case domain.KindUserToEntity, domain.KindGroupToEntity:
		return 3, false
	default:
		return 0, false
	}
}

// rowKey returns the live-row index key for event, joining as many payload
// fields as kind uses.
func rowKey(event domain.Event) string {
	n, _ := payloadFields(event.Kind)
	if n == 0 {
		n = 1
	}
	return RelationKey(event.Payload[:n]...)
}
