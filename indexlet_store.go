package ramcloud

import (
	"sync"

	"github.com/google/btree"
)

// IndexletStore is a range partition of one secondary index: an ordered
// multimap of IndexEntry, backed by a B-tree, guarded by a per-partition
// mutex that serializes every mutating and scanning operation (spec.md
// §4.2, §5).
type IndexletStore struct {
	mu   sync.Mutex
	tree *btree.BTreeG[IndexEntry]
}

// btreeDegree matches the teacher's habit of picking a fixed, documented
// constant rather than tuning per instance (index_manager.go's LRU sizes).
const btreeDegree = 32

func NewIndexletStore() *IndexletStore {
	return &IndexletStore{tree: btree.NewG(btreeDegree, entryLess)}
}

// Empty reports whether the store holds any entries.
func (s *IndexletStore) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len() == 0
}

// Len reports the number of entries. Not part of the spec contract but
// convenient for tests and metrics.
func (s *IndexletStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Insert adds an entry. Duplicates of the same (Key, PrimaryKeyHash) pair
// replace one another, matching the B-tree's total order; entries with the
// same Key but different PrimaryKeyHash coexist (spec.md §3).
func (s *IndexletStore) Insert(e IndexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(e)
}

// EraseOne removes at most one matching entry. A removal request for a
// missing entry is not an error; it simply reports false (spec.md §4.2,
// §8: "remove(e) on absent e returns OK (idempotent)").
func (s *IndexletStore) EraseOne(e IndexEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tree.Delete(e)
	return ok
}

// Cursor walks a point-in-time snapshot of entries collected under the
// store's mutex, satisfying "readers do not observe partial inserts"
// (spec.md §4.2) without holding the lock across caller-controlled
// iteration.
type Cursor struct {
	entries []IndexEntry
	pos     int
}

// End reports whether the cursor has been advanced past the last entry.
func (c *Cursor) End() bool { return c.pos >= len(c.entries) }

// Next advances the cursor by one entry.
func (c *Cursor) Next() { c.pos++ }

// Key returns the current entry's key. Only valid when !End().
func (c *Cursor) Key() Key { return c.entries[c.pos].Key }

// Data returns the current entry's primary key hash (the "value" the
// composite key otherwise duplicates, kept for efficient removal per
// spec.md §3).
func (c *Cursor) Data() uint64 { return c.entries[c.pos].PrimaryKeyHash }

// LowerBound returns a cursor positioned at the smallest entry greater than
// or equal to probe in composite order (spec.md §4.2). Callers that only
// care about a plain key pass PrimaryKeyHash: 0.
func (s *IndexletStore) LowerBound(probe IndexEntry) *Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []IndexEntry
	s.tree.AscendGreaterOrEqual(probe, func(e IndexEntry) bool {
		entries = append(entries, e)
		return true
	})
	return &Cursor{entries: entries}
}

// ScanResult is the outcome of a bounded ScanRange walk.
type ScanResult struct {
	Hashes []uint64
	// Truncated is true when the max budget was reached before either the
	// store or the [firstKey, lastKey] range was exhausted.
	Truncated bool
	// NextKey/NextHash resume a truncated scan at the exact composite
	// position of the first undelivered entry (spec.md §4.3).
	NextKey  Key
	NextHash uint64
}

// ScanRange walks entries in the closed range [firstKey, lastKey], starting
// at the composite position (firstKey, firstAllowedHash), appending at most
// max primary key hashes. The whole walk runs under one lock acquisition,
// bounding how long the store mutex is held by the caller-supplied max
// (spec.md §4.3, §5).
func (s *IndexletStore) ScanRange(firstKey Key, firstAllowedHash uint64, lastKey Key, max int) ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ScanResult
	probe := IndexEntry{Key: firstKey, PrimaryKeyHash: firstAllowedHash}
	s.tree.AscendGreaterOrEqual(probe, func(e IndexEntry) bool {
		if CompareKeys(e.Key, lastKey) > 0 {
			return false
		}
		if len(res.Hashes) >= max {
			res.Truncated = true
			res.NextKey = e.Key
			res.NextHash = e.PrimaryKeyHash
			return false
		}
		res.Hashes = append(res.Hashes, e.PrimaryKeyHash)
		return true
	})
	return res
}
