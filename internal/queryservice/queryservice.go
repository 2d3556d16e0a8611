// Package queryservice answers the reader RPC surface (spec.md §6) against
// the local Temporal Event Store: enumerations, membership checks, direct
// and reverse mappings, and access-decision queries. Structured as a thin
// façade over eventstore.Store, the same way the teacher's
// internal/auth/service.Service adapts its stores into a callable surface
// with no transport concerns of its own.
//
// Indirect group membership (a user reachable through a chain of
// GroupToGroup mappings) is resolved by an in-process breadth-first walk
// over the locally visible live rows. This is correct for a single shard's
// local data; a membership chain that crosses shard boundaries is outside
// what the local read path can answer and is left to whatever assembles
// cross-shard results above this package (the operation router's fan-out).
package queryservice

import (
	"context"
	"time"

	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
)

// Service answers reader queries against one event store.
type Service struct {
	store eventstore.Store
}

// New constructs a Service.
func New(store eventstore.Store) *Service {
	return &Service{store: store}
}

// ListUsers returns every live user name.
func (s *Service) ListUsers(ctx context.Context) ([]string, error) {
	return s.store.ListLive(ctx, domain.KindUser, time.Now())
}

// ListGroups returns every live group name.
func (s *Service) ListGroups(ctx context.Context) ([]string, error) {
	return s.store.ListLive(ctx, domain.KindGroup, time.Now())
}

// ListEntityTypes returns every live entity type name.
func (s *Service) ListEntityTypes(ctx context.Context) ([]string, error) {
	return s.store.ListLive(ctx, domain.KindEntityType, time.Now())
}

// ListEntities returns every live entity name of typeName.
func (s *Service) ListEntities(ctx context.Context, typeName string) ([]string, error) {
	keys, err := s.store.ListLive(ctx, domain.KindEntity, time.Now())
	if err != nil {
		return nil, err
	}
	return filterByPrefix(keys, typeName), nil
}

// ContainsUser reports whether name is a live user.
func (s *Service) ContainsUser(ctx context.Context, name string) (bool, error) {
	return s.store.IsLive(ctx, domain.KindUser, name, time.Now())
}

// ContainsGroup reports whether name is a live group.
func (s *Service) ContainsGroup(ctx context.Context, name string) (bool, error) {
	return s.store.IsLive(ctx, domain.KindGroup, name, time.Now())
}

// ContainsEntity reports whether typeName/name is a live entity.
func (s *Service) ContainsEntity(ctx context.Context, typeName, name string) (bool, error) {
	return s.store.IsLive(ctx, domain.KindEntity, eventstore.RelationKey(typeName, name), time.Now())
}

// filterByPrefix returns the second field of every compound key whose
// first field equals prefix.
func filterByPrefix(keys []string, prefix string) []string {
	var out []string
	for _, k := range keys {
		fields := eventstore.SplitRelationKey(k)
		if len(fields) >= 1 && fields[0] == prefix {
			if len(fields) >= 2 {
				out = append(out, fields[1])
			}
		}
	}
	return out
}
