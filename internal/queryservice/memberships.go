package queryservice

import (
	"context"
	"time"

	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
)

// UserGroups returns the groups user directly belongs to, and — when
// includeIndirect is set — every group reachable by following
// GroupToGroup mappings from those direct groups.
func (s *Service) UserGroups(ctx context.Context, user string, includeIndirect bool) ([]string, error) {
	direct, err := s.directGroupsOf(ctx, user)
	if err != nil {
		return nil, err
	}
	if !includeIndirect {
		return direct, nil
	}
	edges, err := s.groupToGroupEdges(ctx)
	if err != nil {
		return nil, err
	}
	return bfsClosure(direct, edges), nil
}

// GroupToUserMappings returns every user with a direct or (when
// includeIndirect) transitive membership in group, i.e. the reverse of
// UserGroups.
func (s *Service) GroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	memberships, err := s.listLiveRelation(ctx, domain.KindUserToGroup)
	if err != nil {
		return nil, err
	}
	var ancestorGroups map[string]bool
	if includeIndirect {
		edges, err := s.groupToGroupEdges(ctx)
		if err != nil {
			return nil, err
		}
		ancestorGroups = reverseBFSClosure(group, edges)
	} else {
		ancestorGroups = map[string]bool{group: true}
	}

	var users []string
	for _, fields := range memberships {
		if len(fields) < 2 {
			continue
		}
		if ancestorGroups[fields[1]] {
			users = append(users, fields[0])
		}
	}
	return dedupe(users), nil
}

// EntityToUserMappings returns every user with direct access to
// typeName/entity, either personally or through group membership (direct
// or transitive).
func (s *Service) EntityToUserMappings(ctx context.Context, typeName, entity string) ([]string, error) {
	direct, err := s.listLiveRelation(ctx, domain.KindUserToEntity)
	if err != nil {
		return nil, err
	}
	var users []string
	for _, fields := range direct {
		if len(fields) == 3 && fields[1] == typeName && fields[2] == entity {
			users = append(users, fields[0])
		}
	}

	groupGrants, err := s.listLiveRelation(ctx, domain.KindGroupToEntity)
	if err != nil {
		return nil, err
	}
	for _, fields := range groupGrants {
		if len(fields) != 3 || fields[1] != typeName || fields[2] != entity {
			continue
		}
		members, err := s.GroupToUserMappings(ctx, fields[0], true)
		if err != nil {
			return nil, err
		}
		users = append(users, members...)
	}
	return dedupe(users), nil
}

// HasAccessToApplicationComponent reports whether user can access
// component at access, either directly or via any group (direct or
// transitive) the user belongs to.
func (s *Service) HasAccessToApplicationComponent(ctx context.Context, user, component, access string) (bool, error) {
	live, err := s.store.IsLive(ctx, domain.KindUserToComponentAccess, eventstore.RelationKey(user, component, access), time.Now())
	if err != nil || live {
		return live, err
	}

	groups, err := s.UserGroups(ctx, user, true)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		live, err := s.store.IsLive(ctx, domain.KindGroupToComponentAccess, eventstore.RelationKey(g, component, access), time.Now())
		if err != nil {
			return false, err
		}
		if live {
			return true, nil
		}
	}
	return false, nil
}

// HasAccessToEntity reports whether user can access typeName/entity,
// either directly or via group membership (direct or transitive).
func (s *Service) HasAccessToEntity(ctx context.Context, user, typeName, entity string) (bool, error) {
	live, err := s.store.IsLive(ctx, domain.KindUserToEntity, eventstore.RelationKey(user, typeName, entity), time.Now())
	if err != nil || live {
		return live, err
	}

	groups, err := s.UserGroups(ctx, user, true)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		live, err := s.store.IsLive(ctx, domain.KindGroupToEntity, eventstore.RelationKey(g, typeName, entity), time.Now())
		if err != nil {
			return false, err
		}
		if live {
			return true, nil
		}
	}
	return false, nil
}

// ApplicationComponentsAccessibleByUser returns "component:access" pairs
// reachable by user, directly or via group membership.
func (s *Service) ApplicationComponentsAccessibleByUser(ctx context.Context, user string) ([]string, error) {
	var out []string
	direct, err := s.listLiveRelation(ctx, domain.KindUserToComponentAccess)
	if err != nil {
		return nil, err
	}
	for _, f := range direct {
		if len(f) == 3 && f[0] == user {
			out = append(out, f[1]+":"+f[2])
		}
	}

	groups, err := s.UserGroups(ctx, user, true)
	if err != nil {
		return nil, err
	}
	groupGrants, err := s.listLiveRelation(ctx, domain.KindGroupToComponentAccess)
	if err != nil {
		return nil, err
	}
	groupSet := toSet(groups)
	for _, f := range groupGrants {
		if len(f) == 3 && groupSet[f[0]] {
			out = append(out, f[1]+":"+f[2])
		}
	}
	return dedupe(out), nil
}

// EntitiesAccessibleByUser returns entities ("typeName:entity") reachable
// by user, directly or via group membership, optionally filtered to one
// entity type.
func (s *Service) EntitiesAccessibleByUser(ctx context.Context, user, typeFilter string) ([]string, error) {
	var out []string
	direct, err := s.listLiveRelation(ctx, domain.KindUserToEntity)
	if err != nil {
		return nil, err
	}
	for _, f := range direct {
		if len(f) == 3 && f[0] == user && (typeFilter == "" || f[1] == typeFilter) {
			out = append(out, f[1]+":"+f[2])
		}
	}

	groups, err := s.UserGroups(ctx, user, true)
	if err != nil {
		return nil, err
	}
	groupGrants, err := s.listLiveRelation(ctx, domain.KindGroupToEntity)
	if err != nil {
		return nil, err
	}
	groupSet := toSet(groups)
	for _, f := range groupGrants {
		if len(f) == 3 && groupSet[f[0]] && (typeFilter == "" || f[1] == typeFilter) {
			out = append(out, f[1]+":"+f[2])
		}
	}
	return dedupe(out), nil
}

func (s *Service) directGroupsOf(ctx context.Context, user string) ([]string, error) {
	memberships, err := s.listLiveRelation(ctx, domain.KindUserToGroup)
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, fields := range memberships {
		if len(fields) == 2 && fields[0] == user {
			groups = append(groups, fields[1])
		}
	}
	return groups, nil
}

// groupEdge is one live from->to GroupToGroup mapping.
type groupEdge struct {
	From, To string
}

func (s *Service) groupToGroupEdges(ctx context.Context) ([]groupEdge, error) {
	relations, err := s.listLiveRelation(ctx, domain.KindGroupToGroup)
	if err != nil {
		return nil, err
	}
	edges := make([]groupEdge, 0, len(relations))
	for _, fields := range relations {
		if len(fields) == 2 {
			edges = append(edges, groupEdge{From: fields[0], To: fields[1]})
		}
	}
	return edges, nil
}

func (s *Service) listLiveRelation(ctx context.Context, kind domain.Kind) ([][]string, error) {
	keys, err := s.store.ListLive(ctx, kind, time.Now())
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(keys))
	for i, k := range keys {
		out[i] = eventstore.SplitRelationKey(k)
	}
	return out, nil
}

// bfsClosure returns every group reachable from start by following edges
// forward (From -> To), including start itself.
func bfsClosure(start []string, edges []groupEdge) []string {
	visited := toSet(start)
	queue := append([]string(nil), start...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		for _, e := range edges {
			if e.From == g && !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return setToSlice(visited)
}

// reverseBFSClosure returns every group that can reach target by
// following edges forward (i.e. every ancestor of target, including
// target itself).
func reverseBFSClosure(target string, edges []groupEdge) map[string]bool {
	visited := map[string]bool{target: true}
	queue := []string{target}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		for _, e := range edges {
			if e.To == g && !visited[e.From] {
				visited[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}
	return visited
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
