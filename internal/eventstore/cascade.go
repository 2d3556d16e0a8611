package eventstore

import "accessfabric/internal/domain"

// cascadeStep names one dependent kind that must be invalidated before its
// parent, and which positions of the dependent's payload must match the
// parent's own payload fields for a dependent row to be considered a
// reference to the parent being removed.
type cascadeStep struct {
	Kind    domain.Kind
	AtIndex []int
}

// cascadeTable implements the exact dependency order from spec.md §4.1's
// "Cascade table": removing an aggregate invalidates every row across these
// dependent kinds, in order, before the aggregate's own row is closed.
var cascadeTable = map[domain.Kind][]cascadeStep{
	domain.KindUser: {
		{Kind: domain.KindUserToGroup, AtIndex: []int{0}},
		{Kind: domain.KindUserToComponentAccess, AtIndex: []int{0}},
		{Kind: domain.KindUserToEntity, AtIndex: []int{0}},
	},
	domain.KindGroup: {
		{Kind: domain.KindUserToGroup, AtIndex: []int{1}},
		{Kind: domain.KindGroupToGroup, AtIndex: []int{0}}, // as "from"
		{Kind: domain.KindGroupToGroup, AtIndex: []int{1}}, // as "to"
		{Kind: domain.KindGroupToComponentAccess, AtIndex: []int{0}},
		{Kind: domain.KindGroupToEntity, AtIndex: []int{0}},
	},
	domain.KindEntityType: {
		{Kind: domain.KindUserToEntity, AtIndex: []int{1}},
		{Kind: domain.KindGroupToEntity, AtIndex: []int{1}},
		{Kind: domain.KindEntity, AtIndex: []int{0}},
	},
	domain.KindEntity: {
		{Kind: domain.KindUserToEntity, AtIndex: []int{1, 2}},
		{Kind: domain.KindGroupToEntity, AtIndex: []int{1, 2}},
	},
}

// cascades reports whether kind carries a remove cascade at all. Relations
// and the auto-created ApplicationComponent/AccessLevel kinds never cascade
// — only the four aggregate kinds spec.md §4.1 names do.
func cascades(kind domain.Kind) bool {
	_, ok := cascadeTable[kind]
	return ok
}

// matches reports whether a dependent row's payload references the removed
// aggregate's payload, per step's index mapping.
func (step cascadeStep) matches(removedPayload, candidatePayload [3]string) bool {
	for i, at := range step.AtIndex {
		if candidatePayload[at] != removedPayload[i] {
			return false
		}
	}
	return true
}
