// Package directory implements the Config Cache (Object Finder), the
// client-side cache mapping (tableId, keyHash) and (tableId, indexId, key)
// to the owning master's session (spec.md §4.4, component C4). Refresh is
// lazy and coalesced: concurrent misses for the same table produce at most
// one coordinator round-trip per contended window, via
// golang.org/x/sync/singleflight the way the teacher relies on
// hashicorp/golang-lru for its own read-heavy caches (index_manager.go's
// classCache/hashIndexCache).
package directory

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/coordinator"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/metrics"
	"github.com/ramcloud/ramcloud/transport"
)

// TableNotFoundError is raised when, even after a coordinator refresh, no
// tablet covers a requested keyHash (spec.md §4.4, §7 tier 2).
type TableNotFoundError struct {
	TableId uint64
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("ramcloud: table %d doesn't exist", e.TableId)
}

const sessionCacheSize = 4096

// Cache is the Config Cache / Object Finder (spec.md §4.4).
type Cache struct {
	fetcher   coordinator.ConfigFetcher
	transport transport.TransportManager
	log       logging.Logger

	tabletsMu sync.RWMutex
	tablets   *btree.BTreeG[coordinator.TabletRecord]

	indexletsMu sync.RWMutex
	indexlets   map[indexKey][]coordinator.IndexletRecord

	sessions *lru.Cache[string, transport.Session]
	refresh  singleflight.Group
}

type indexKey struct {
	TableId uint64
	IndexId uint8
}

func tabletLess(a, b coordinator.TabletRecord) bool {
	if a.TableId != b.TableId {
		return a.TableId < b.TableId
	}
	return a.StartKeyHash < b.StartKeyHash
}

func New(fetcher coordinator.ConfigFetcher, tm transport.TransportManager, log logging.Logger) *Cache {
	sessions, _ := lru.NewWithEvict[string, transport.Session](sessionCacheSize, func(_ string, s transport.Session) {
		s.Release()
	})
	return &Cache{
		fetcher:   fetcher,
		transport: tm,
		log:       log,
		tablets:   btree.NewG(32, tabletLess),
		indexlets: make(map[indexKey][]coordinator.IndexletRecord),
		sessions:  sessions,
	}
}

// KeyHash computes the primary key hash of (tableId, key), the same
// derivation InsertObject-style RPCs use to place an object into a tablet.
func KeyHash(tableId uint64, key ramcloud.Key) uint64 {
	buf := make([]byte, 8, 8+len(key))
	binary.BigEndian.PutUint64(buf, tableId)
	buf = append(buf, key...)
	return xxhash.Sum64(buf)
}

// refreshTable calls the Config Fetcher for tableId, coalescing concurrent
// callers into a single coordinator round-trip, and replaces this table's
// directory entries with the fetched snapshot (spec.md §4.4).
func (c *Cache) refreshTable(ctx context.Context, tableId uint64) error {
	_, err, _ := c.refresh.Do(fmt.Sprintf("%d", tableId), func() (interface{}, error) {
		tablets, indexlets, err := c.fetcher.GetTableConfig(ctx, tableId)
		if err != nil {
			return nil, errors.Wrap(err, "config cache: refresh table")
		}
		c.replaceTable(tableId, tablets, indexlets)
		return nil, nil
	})
	return err
}

func (c *Cache) replaceTable(tableId uint64, tablets []coordinator.TabletRecord, indexlets []coordinator.IndexletRecord) {
	c.tabletsMu.Lock()
	c.evictTabletsLocked(tableId)
	for _, t := range tablets {
		c.tablets.ReplaceOrInsert(t)
	}
	c.tabletsMu.Unlock()

	c.indexletsMu.Lock()
	for k := range c.indexlets {
		if k.TableId == tableId {
			delete(c.indexlets, k)
		}
	}
	for _, idx := range indexlets {
		k := indexKey{idx.TableId, idx.IndexId}
		c.indexlets[k] = append(c.indexlets[k], idx)
	}
	c.indexletsMu.Unlock()
}

func (c *Cache) evictTabletsLocked(tableId uint64) {
	var stale []coordinator.TabletRecord
	c.tablets.Ascend(func(t coordinator.TabletRecord) bool {
		if t.TableId == tableId {
			stale = append(stale, t)
		}
		return true
	})
	for _, t := range stale {
		c.tablets.Delete(t)
	}
}

// lookupTabletLocked finds the tablet whose [StartKeyHash, EndKeyHash)
// range contains keyHash, assuming the caller holds tabletsMu.
func (c *Cache) lookupTabletLocked(tableId, keyHash uint64) (coordinator.TabletRecord, bool) {
	var found coordinator.TabletRecord
	ok := false
	pivot := coordinator.TabletRecord{TableId: tableId, StartKeyHash: keyHash}
	c.tablets.DescendLessOrEqual(pivot, func(t coordinator.TabletRecord) bool {
		if t.TableId != tableId {
			return false
		}
		if keyHash < t.EndKeyHash {
			found, ok = t, true
		}
		return false
	})
	return found, ok
}

// sessionFor resolves a locator to a session, memoizing it in the LRU.
// The LRU owns the reference acquired from GetSession; evicting the entry
// (capacity pressure, Flush, FlushSession) releases it via the cache's
// eviction callback (spec.md §9 "Sessions are reference-counted").
func (c *Cache) sessionFor(locator string) (transport.Session, error) {
	if s, hit := c.sessions.Get(locator); hit {
		return s, nil
	}
	s, err := c.transport.GetSession(locator)
	if err != nil {
		return nil, err
	}
	c.sessions.Add(locator, s)
	return s, nil
}

// Lookup resolves (tableId, keyHash) to a session, refreshing from the
// coordinator on miss and failing with TableNotFoundError if the table
// truly has no covering tablet (spec.md §4.4).
func (c *Cache) Lookup(ctx context.Context, tableId, keyHash uint64) (transport.Session, error) {
	c.tabletsMu.RLock()
	t, ok := c.lookupTabletLocked(tableId, keyHash)
	c.tabletsMu.RUnlock()

	if !ok {
		metrics.ConfigCacheLookups.WithLabelValues("tablet", "miss").Inc()
		ctx = logging.WithDefaultArgs(ctx, "table_id", tableId, "op", "lookup")
		c.log.InfoCtx(ctx, "config cache: tablet miss, refreshing from coordinator")
		if err := c.refreshTable(ctx, tableId); err != nil {
			return nil, err
		}
		c.tabletsMu.RLock()
		t, ok = c.lookupTabletLocked(tableId, keyHash)
		c.tabletsMu.RUnlock()
		if !ok {
			return nil, &TableNotFoundError{TableId: tableId}
		}
	} else {
		metrics.ConfigCacheLookups.WithLabelValues("tablet", "hit").Inc()
	}
	return c.sessionFor(t.ServiceLocator)
}

// LookupKey hashes (tableId, key) and routes by the resulting keyHash
// (spec.md §4.4).
func (c *Cache) LookupKey(ctx context.Context, tableId uint64, key ramcloud.Key) (transport.Session, error) {
	return c.Lookup(ctx, tableId, KeyHash(tableId, key))
}

// LookupIndex resolves (tableId, indexId, key) to a session using the
// codec's Contains predicate, refreshing once on miss. A nil session with
// no error signals "index does not exist": the caller (IndexWrapper)
// cancels the RPC rather than treating this as a failure (spec.md §4.4,
// §4.7).
func (c *Cache) LookupIndex(ctx context.Context, tableId uint64, indexId uint8, key ramcloud.Key) (transport.Session, error) {
	rec, ok := c.lookupIndexletRecord(tableId, indexId, key)
	if !ok {
		metrics.ConfigCacheLookups.WithLabelValues("indexlet", "miss").Inc()
		ctx = logging.WithDefaultArgs(ctx, "table_id", tableId, "index_id", indexId, "op", "lookup_index")
		c.log.InfoCtx(ctx, "config cache: indexlet miss, refreshing from coordinator")
		if err := c.refreshTable(ctx, tableId); err != nil {
			return nil, err
		}
		rec, ok = c.lookupIndexletRecord(tableId, indexId, key)
		if !ok {
			return nil, nil
		}
	} else {
		metrics.ConfigCacheLookups.WithLabelValues("indexlet", "hit").Inc()
	}
	return c.sessionFor(rec.ServiceLocator)
}

func (c *Cache) lookupIndexletRecord(tableId uint64, indexId uint8, key ramcloud.Key) (coordinator.IndexletRecord, bool) {
	c.indexletsMu.RLock()
	defer c.indexletsMu.RUnlock()
	for _, rec := range c.indexlets[indexKey{tableId, indexId}] {
		r := ramcloud.KeyRange{First: rec.FirstKey, FirstNotOwned: rec.FirstNotOwned}
		if r.Contains(key) {
			return rec, true
		}
	}
	return coordinator.IndexletRecord{}, false
}

// Flush evicts every tablet and indexlet entry belonging to tableId
// (spec.md §4.4), and drops the cached sessions for their service
// locators so the next lookup resolves a fresh one.
func (c *Cache) Flush(tableId uint64) {
	var locators []string
	c.tabletsMu.Lock()
	c.tablets.Ascend(func(t coordinator.TabletRecord) bool {
		if t.TableId == tableId {
			locators = append(locators, t.ServiceLocator)
		}
		return true
	})
	c.evictTabletsLocked(tableId)
	c.tabletsMu.Unlock()

	c.indexletsMu.Lock()
	for k, recs := range c.indexlets {
		if k.TableId == tableId {
			for _, rec := range recs {
				locators = append(locators, rec.ServiceLocator)
			}
			delete(c.indexlets, k)
		}
	}
	c.indexletsMu.Unlock()

	for _, l := range locators {
		c.sessions.Remove(l)
	}
}

// FlushSession evicts just the tablet entry that would have resolved
// keyHash, forcing a re-fetch on the next lookup without discarding the
// rest of the table's directory (spec.md §4.4).
func (c *Cache) FlushSession(tableId, keyHash uint64) {
	c.tabletsMu.Lock()
	t, ok := c.lookupTabletLocked(tableId, keyHash)
	if ok {
		c.tablets.Delete(t)
	}
	c.tabletsMu.Unlock()
	if ok {
		c.sessions.Remove(t.ServiceLocator)
	}
}

// tabletStates returns the cached states of every tablet of tableId,
// refreshing first so waiters observe live coordinator state.
func (c *Cache) tabletStates(ctx context.Context, tableId uint64) ([]coordinator.TabletState, error) {
	if err := c.refreshTable(ctx, tableId); err != nil {
		return nil, err
	}
	c.tabletsMu.RLock()
	defer c.tabletsMu.RUnlock()
	var states []coordinator.TabletState
	c.tablets.Ascend(func(t coordinator.TabletRecord) bool {
		if t.TableId == tableId {
			states = append(states, t.State)
		}
		return true
	})
	return states, nil
}

// WaitForTabletDown polls the fetcher until at least one tablet of tableId
// is outside the NORMAL state (spec.md §4.4).
func (c *Cache) WaitForTabletDown(ctx context.Context, tableId uint64, pollInterval time.Duration) error {
	for {
		states, err := c.tabletStates(ctx, tableId)
		if err != nil {
			return err
		}
		for _, s := range states {
			if s != coordinator.TabletNormal {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// WaitForAllTabletsNormal polls the fetcher until every tablet of tableId
// is in the NORMAL state or timeout elapses (spec.md §4.4, §5).
func (c *Cache) WaitForAllTabletsNormal(ctx context.Context, tableId uint64, timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		states, err := c.tabletStates(ctx, tableId)
		if err != nil {
			return err
		}
		allNormal := len(states) > 0
		for _, s := range states {
			if s != coordinator.TabletNormal {
				allNormal = false
				break
			}
		}
		if allNormal {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("config cache: table %d did not reach NORMAL within %s", tableId, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
