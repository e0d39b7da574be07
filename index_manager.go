package ramcloud

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/metrics"
	"github.com/ramcloud/ramcloud/status"
)

// IndexletManager is the host-side registry of indexlets keyed by
// (TableId, IndexId) (spec.md §4.3, component C3). The registry is sharded
// across an xsync.MapOf keyed by (TableId, IndexId); each shard
// ("partition") owns only the topology of its registered ranges, guarded by
// its own RWMutex, so lookups on different indexes never contend and a long
// scan on one indexlet never blocks registration changes on another
// (spec.md §5, Design Note 9's sharding refinement).
type IndexletManager struct {
	partitions *xsync.MapOf[partitionKey, *partition]
	log        logging.Logger
}

type partitionKey struct {
	TableId uint64
	IndexId uint8
}

// partition holds every indexlet registered on this host for one
// (TableId, IndexId). Its mutex protects only the slice of registrations
// (adds/removes); each indexlet's own IndexletStore has an independent
// mutex. The partition mutex is held only while the target entry is found
// and is released before the store's mutex is taken, so the two are never
// held together.
type partition struct {
	mu      sync.RWMutex
	entries []*indexletEntry
}

func NewIndexletManager(log logging.Logger) *IndexletManager {
	return &IndexletManager{
		partitions: xsync.NewMapOf[partitionKey, *partition](),
		log:        log,
	}
}

func (im *IndexletManager) partitionFor(tableId uint64, indexId uint8, create bool) (*partition, bool) {
	key := partitionKey{tableId, indexId}
	if create {
		p, _ := im.partitions.LoadOrCompute(key, func() *partition {
			return &partition{}
		})
		return p, true
	}
	return im.partitions.Load(key)
}

// AddIndexlet registers a new indexlet on this host. It fails if an
// already-registered indexlet for this (TableId, IndexId) contains
// firstKey (spec.md §4.3 overlap check).
func (im *IndexletManager) AddIndexlet(tableId uint64, indexId uint8, storageTableId uint64, firstKey, firstNotOwnedKey Key) bool {
	p, _ := im.partitionFor(tableId, indexId, true)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.Range.overlapsProbe(firstKey) {
			return false
		}
	}

	p.entries = append(p.entries, &indexletEntry{
		Indexlet: Indexlet{
			TableId:        tableId,
			IndexId:        indexId,
			StorageTableId: storageTableId,
			Range:          KeyRange{First: firstKey, FirstNotOwned: firstNotOwnedKey},
		},
		store: NewIndexletStore(),
	})
	return true
}

// DeleteIndexlet removes the indexlet whose identifying keys match exactly
// and destroys its store (spec.md §3 "Lifecycles", §4.3).
func (im *IndexletManager) DeleteIndexlet(tableId uint64, indexId uint8, firstKey, firstNotOwnedKey Key) bool {
	p, ok := im.partitionFor(tableId, indexId, false)
	if !ok {
		return false
	}

	target := KeyRange{First: firstKey, FirstNotOwned: firstNotOwnedKey}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.Range.Equal(target) {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// GetIndexlet returns a snapshot of the indexlet matching the identifying
// keys exactly, or false if none is registered (spec.md §4.3).
func (im *IndexletManager) GetIndexlet(tableId uint64, indexId uint8, firstKey, firstNotOwnedKey Key) (Indexlet, bool) {
	p, ok := im.partitionFor(tableId, indexId, false)
	if !ok {
		return Indexlet{}, false
	}
	target := KeyRange{First: firstKey, FirstNotOwned: firstNotOwnedKey}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.Range.Equal(target) {
			return e.Indexlet, true
		}
	}
	return Indexlet{}, false
}

// lookupIndexlet enumerates registered indexlets for (tableId, indexId) and
// returns the first whose range contains k; deterministic because ranges on
// one host are pairwise disjoint (spec.md §4.3 "Lookup routing"). The
// partition lock is released before the caller touches the returned entry's
// store, so a long scan cannot block registration changes to sibling
// indexlets (spec.md §4.3 "Locking order").
func (im *IndexletManager) lookupIndexlet(tableId uint64, indexId uint8, k Key) *indexletEntry {
	p, ok := im.partitionFor(tableId, indexId, false)
	if !ok {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.Range.Contains(k) {
			return e
		}
	}
	return nil
}

// InsertEntry routes to the indexlet containing key and inserts. Returns
// UnknownIndexlet if no indexlet on this host owns key (spec.md §4.3).
func (im *IndexletManager) InsertEntry(tableId uint64, indexId uint8, key Key, primaryKeyHash uint64) status.Status {
	e := im.lookupIndexlet(tableId, indexId, key)
	if e == nil {
		return status.UnknownIndexlet
	}
	e.store.Insert(IndexEntry{Key: key, PrimaryKeyHash: primaryKeyHash})
	return status.OK
}

// RemoveEntry routes similarly to InsertEntry. Removing an entry that isn't
// present is not an error: the store may contain garbage and callers are
// entitled to request idempotent removal (spec.md §4.3, §8).
func (im *IndexletManager) RemoveEntry(tableId uint64, indexId uint8, key Key, primaryKeyHash uint64) status.Status {
	e := im.lookupIndexlet(tableId, indexId, key)
	if e == nil {
		return status.UnknownIndexlet
	}
	e.store.EraseOne(IndexEntry{Key: key, PrimaryKeyHash: primaryKeyHash})
	return status.OK
}

// LookupIndexKeysResult mirrors the wire response fields of
// LookupIndexKeys (spec.md §4.3, §6).
type LookupIndexKeysResult struct {
	Hashes  []uint64
	NextKey Key
	// NextKeyHash is meaningful only when len(NextKey) > 0.
	NextKeyHash uint64
}

// LookupIndexKeys scans the indexlet containing firstKey for entries in the
// closed range [firstKey, lastKey], starting at the composite position
// (firstKey, firstAllowedHash), appending at most maxNumHashes primary key
// hashes (spec.md §4.3).
//
// Pagination contract:
//   - budget reached before the range or store is exhausted: NextKey/
//     NextKeyHash resume at the first undelivered entry ("rpcMaxedOut").
//   - budget not reached but lastKey exceeds this indexlet's
//     FirstNotOwnedKey: NextKeyHash=0, NextKey=FirstNotOwnedKey, signalling
//     the caller to continue scanning the next indexlet.
//   - otherwise the scan is complete and NextKey is empty.
func (im *IndexletManager) LookupIndexKeys(tableId uint64, indexId uint8, firstKey Key, firstAllowedHash uint64, lastKey Key, maxNumHashes int) (LookupIndexKeysResult, status.Status) {
	e := im.lookupIndexlet(tableId, indexId, firstKey)
	if e == nil {
		return LookupIndexKeysResult{}, status.UnknownIndexlet
	}

	res := e.store.ScanRange(firstKey, firstAllowedHash, lastKey, maxNumHashes)
	out := LookupIndexKeysResult{Hashes: res.Hashes}

	switch {
	case res.Truncated:
		metrics.IndexletScanTruncated.WithLabelValues(strconv.FormatUint(tableId, 10), fmt.Sprintf("%d", indexId)).Inc()
		im.log.Debug("index manager: scan truncated by budget",
			"table_id", tableId, "index_id", indexId, "max_num_hashes", maxNumHashes)
		out.NextKey = res.NextKey
		out.NextKeyHash = res.NextHash
	case !e.Range.Open() && CompareKeys(lastKey, e.Range.FirstNotOwned) >= 0:
		out.NextKey = e.Range.FirstNotOwned
		out.NextKeyHash = 0
	}
	return out, status.OK
}
