package domain

import "time"

// ElementKind is the shard partitioning dimension: data of this kind is
// routed independently of the other kinds.
type ElementKind string

const (
	ElementUser         ElementKind = "user"
	ElementGroup        ElementKind = "group"
	ElementGroupToGroup ElementKind = "group_to_group_mapping"
)

// OpKind distinguishes the two client pools a shard exposes.
type OpKind string

const (
	OpQuery OpKind = "query"
	OpEvent OpKind = "event"
)

// ClientConfig carries everything needed to build a network client for one
// shard. Two ShardConfigRecords with equal ClientConfig share one
// constructed client (see internal/shardclient).
type ClientConfig struct {
	Address        string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// ShardConfigRecord is one row of the shard configuration set described in
// spec.md §4.5.
type ShardConfigRecord struct {
	ID             string
	Kind           ElementKind
	Op             OpKind
	HashRangeStart int32
	Client         ClientConfig
}
