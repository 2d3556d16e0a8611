package shardclient

import (
	"sync"
	"sync/atomic"
	"time"

	"accessfabric/internal/domain"
	"accessfabric/internal/hashring"
)

// DefaultQuiesce is how long an obsolete client is kept reachable after a
// Reconfigure stops routing to it, per spec.md §4.5: "obsolete clients are
// released after a quiesce" — in-flight calls against the old
// configuration complete normally before the client is closed.
const DefaultQuiesce = 30 * time.Second

// Factory builds a ShardClient for one client configuration. Tests supply
// a fake in place of NewHTTPClient.
type Factory func(domain.ClientConfig) ShardClient

type ringState struct {
	records  []domain.ShardConfigRecord
	resolver *hashring.Resolver
}

// Manager maintains an immutable shard configuration set behind an
// atomic.Pointer and a sync.Map of lazily-built clients keyed by
// ClientConfig, matching spec.md §9's design note: "model as a single
// immutable value swapped under a lock." Replacing the configuration set
// is atomic with respect to in-flight GetClient calls: new calls see only
// the new set, calls already in flight complete against the old.
type Manager struct {
	state   atomic.Pointer[ringState]
	clients sync.Map // domain.ClientConfig -> ShardClient

	factory Factory
	quiesce time.Duration
}

// NewManager constructs an empty Manager. Call Reconfigure before routing
// any traffic.
func NewManager(factory Factory, quiesce time.Duration) *Manager {
	if factory == nil {
		factory = NewHTTPClient
	}
	if quiesce <= 0 {
		quiesce = DefaultQuiesce
	}
	m := &Manager{factory: factory, quiesce: quiesce}
	m.state.Store(&ringState{resolver: hashring.New(nil)})
	return m
}

// Reconfigure installs a new shard configuration set. Client configs that
// appear in records reuse their already-built client; client configs that
// no longer appear anywhere in records are scheduled for release after the
// quiesce window.
func (m *Manager) Reconfigure(records []domain.ShardConfigRecord) {
	next := &ringState{
		records:  records,
		resolver: hashring.New(records),
	}
	prev := m.state.Swap(next)

	if prev == nil {
		return
	}
	stillUsed := make(map[domain.ClientConfig]bool, len(records))
	for _, rec := range records {
		stillUsed[rec.Client] = true
	}
	var obsolete []domain.ClientConfig
	for _, rec := range prev.records {
		if !stillUsed[rec.Client] {
			obsolete = append(obsolete, rec.Client)
		}
	}
	if len(obsolete) > 0 {
		go m.quiesceAndRelease(obsolete)
	}
}

func (m *Manager) quiesceAndRelease(obsolete []domain.ClientConfig) {
	time.Sleep(m.quiesce)
	for _, cfg := range obsolete {
		if v, ok := m.clients.LoadAndDelete(cfg); ok {
			v.(ShardClient).Close()
		}
	}
}

// GetClient returns the client whose shard owns hashCode for (kind, op),
// lazily constructing and caching one client per distinct ClientConfig.
func (m *Manager) GetClient(kind domain.ElementKind, op domain.OpKind, hashCode int32) (ShardClient, domain.ShardConfigRecord, bool) {
	state := m.state.Load()
	record, ok := state.resolver.Resolve(kind, op, hashCode)
	if !ok {
		return nil, domain.ShardConfigRecord{}, false
	}
	return m.clientFor(record.Client), record, true
}

// All returns one client per shard config record matching (kind, op), in
// ring order, for query fan-out (spec.md §4.6).
func (m *Manager) All(kind domain.ElementKind, op domain.OpKind) []struct {
	Client ShardClient
	Record domain.ShardConfigRecord
} {
	state := m.state.Load()
	records := state.resolver.All(kind, op)
	out := make([]struct {
		Client ShardClient
		Record domain.ShardConfigRecord
	}, len(records))
	for i, rec := range records {
		out[i].Client = m.clientFor(rec.Client)
		out[i].Record = rec
	}
	return out
}

// ClientFor returns (lazily constructing if needed) the cached client for
// cfg directly, bypassing hash resolution. Used by callers that already
// know which shard they want, such as the router's dual-routing window.
func (m *Manager) ClientFor(cfg domain.ClientConfig) ShardClient {
	return m.clientFor(cfg)
}

func (m *Manager) clientFor(cfg domain.ClientConfig) ShardClient {
	if v, ok := m.clients.Load(cfg); ok {
		return v.(ShardClient)
	}
	client := m.factory(cfg)
	actual, loaded := m.clients.LoadOrStore(cfg, client)
	if loaded {
		client.Close()
		return actual.(ShardClient)
	}
	return client
}
