package coordinator

import (
	"context"
	"sync"
)

// MockConfigFetcher is an in-memory, test-editable coordinator snapshot:
// set the tablets/indexlets for a table, then let a test simulate
// migration, splits, or index moves by calling SetTablets/SetIndexlets
// again between RPC attempts, the way the teacher's test_utils package
// lets a test drive replica state directly instead of through the wire.
type MockConfigFetcher struct {
	mu        sync.Mutex
	tablets   map[uint64][]TabletRecord
	indexlets map[uint64][]IndexletRecord
	calls     map[uint64]int
}

func NewMockConfigFetcher() *MockConfigFetcher {
	return &MockConfigFetcher{
		tablets:   make(map[uint64][]TabletRecord),
		indexlets: make(map[uint64][]IndexletRecord),
		calls:     make(map[uint64]int),
	}
}

func (m *MockConfigFetcher) SetTablets(tableId uint64, tablets []TabletRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tablets[tableId] = tablets
}

func (m *MockConfigFetcher) SetIndexlets(tableId uint64, indexlets []IndexletRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexlets[tableId] = indexlets
}

// CallCount reports how many times GetTableConfig has been called for
// tableId, letting a test assert that concurrent misses coalesced into one
// coordinator round-trip (spec.md §4.4, §8).
func (m *MockConfigFetcher) CallCount(tableId uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[tableId]
}

func (m *MockConfigFetcher) GetTableConfig(ctx context.Context, tableId uint64) ([]TabletRecord, []IndexletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[tableId]++
	return append([]TabletRecord{}, m.tablets[tableId]...), append([]IndexletRecord{}, m.indexlets[tableId]...), nil
}
