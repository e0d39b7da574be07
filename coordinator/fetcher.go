// Package coordinator defines the Config Fetcher interface (C5): the
// client's one-method contract with the coordinator, used to refill the
// Config Cache on miss or flush. The coordinator protocol itself is out of
// scope (spec.md §1); this package and its mock are the narrow surface the
// Config Cache depends on, the way the teacher's IndexManager depends on
// host.Host instead of a concrete Chotki.
package coordinator

import (
	"context"
)

// TabletState mirrors the coordinator's view of a tablet's migration
// lifecycle (spec.md §4.4 waitForTabletDown/waitForAllTabletsNormal).
type TabletState int

const (
	TabletNormal TabletState = iota
	TabletRecovering
	TabletSplitting
)

// TabletRecord is the client-side directory record for one contiguous
// keyHash range of a table (spec.md §3).
type TabletRecord struct {
	TableId        uint64
	StartKeyHash   uint64
	EndKeyHash     uint64
	State          TabletState
	ServerId       uint64
	ServiceLocator string
}

// IndexletRecord is the client-side directory record for one indexlet
// range (spec.md §3).
type IndexletRecord struct {
	TableId        uint64
	IndexId        uint8
	FirstKey       []byte
	FirstNotOwned  []byte
	ServerId       uint64
	ServiceLocator string
}

// ConfigFetcher returns a snapshot of the coordinator's authoritative
// tablets and indexlets for one table (spec.md §4.5). Implementations are
// mockable for tests.
type ConfigFetcher interface {
	GetTableConfig(ctx context.Context, tableId uint64) ([]TabletRecord, []IndexletRecord, error)
}
