package ramcloud

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/status"
)

func newTestManager() *IndexletManager {
	return NewIndexletManager(logging.NewDefaultLogger(slog.LevelError))
}

// Scenario 1: basic insert/lookup (spec.md §8.1).
func TestIndexletManager_BasicInsertLookup(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("\xff")))

	st := im.InsertEntry(1, 0, Key("apple"), 7)
	require.Equal(t, status.OK, st)

	res, st := im.LookupIndexKeys(1, 0, Key("a"), 0, Key("b"), 16)
	require.Equal(t, status.OK, st)
	assert.Equal(t, []uint64{7}, res.Hashes)
	assert.Empty(t, res.NextKey)
}

// Scenario 2: unknown indexlet after drop (spec.md §8.2).
func TestIndexletManager_UnknownIndexletAfterDrop(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("\xff")))
	require.True(t, im.DeleteIndexlet(1, 0, Key("\x00"), Key("\xff")))

	st := im.InsertEntry(1, 0, Key("apple"), 7)
	assert.Equal(t, status.UnknownIndexlet, st)
}

// Scenario 3: scan pagination across two calls (spec.md §8.3).
func TestIndexletManager_ScanPagination(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("\xff")))
	require.Equal(t, status.OK, im.InsertEntry(1, 0, Key("a"), 1))
	require.Equal(t, status.OK, im.InsertEntry(1, 0, Key("b"), 2))
	require.Equal(t, status.OK, im.InsertEntry(1, 0, Key("c"), 3))

	first, st := im.LookupIndexKeys(1, 0, Key("a"), 0, Key("z"), 2)
	require.Equal(t, status.OK, st)
	assert.Equal(t, []uint64{1, 2}, first.Hashes)
	require.Equal(t, Key("c"), first.NextKey)
	assert.Equal(t, uint64(3), first.NextKeyHash)

	second, st := im.LookupIndexKeys(1, 0, first.NextKey, first.NextKeyHash, Key("z"), 2)
	require.Equal(t, status.OK, st)
	assert.Equal(t, []uint64{3}, second.Hashes)
	assert.Empty(t, second.NextKey)
}

// Scenario 4: scan crosses partition boundary (spec.md §8.4).
func TestIndexletManager_ScanCrossesPartitionBoundary(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("m")))
	require.Equal(t, status.OK, im.InsertEntry(1, 0, Key("a"), 1))
	require.Equal(t, status.OK, im.InsertEntry(1, 0, Key("b"), 2))

	res, st := im.LookupIndexKeys(1, 0, Key("\x00"), 0, Key("z"), 16)
	require.Equal(t, status.OK, st)
	assert.Equal(t, []uint64{1, 2}, res.Hashes)
	assert.Equal(t, Key("m"), res.NextKey)
	assert.Equal(t, uint64(0), res.NextKeyHash)
}

func TestIndexletManager_AddRejectsOverlap(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("m")))
	assert.False(t, im.AddIndexlet(1, 0, 10, Key("a"), Key("z")))
	// Disjoint range on the same (table, index) is fine.
	assert.True(t, im.AddIndexlet(1, 0, 10, Key("m"), Key{}))
}

func TestIndexletManager_DeleteRequiresExactMatch(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("m")))
	assert.False(t, im.DeleteIndexlet(1, 0, Key("\x00"), Key("n")))
	assert.True(t, im.DeleteIndexlet(1, 0, Key("\x00"), Key("m")))
}

func TestIndexletManager_RemoveAbsentEntryIsIdempotent(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key{}))
	assert.Equal(t, status.OK, im.RemoveEntry(1, 0, Key("ghost"), 42))
}

func TestIndexletManager_GetIndexletSnapshot(t *testing.T) {
	im := newTestManager()
	require.True(t, im.AddIndexlet(1, 0, 10, Key("\x00"), Key("m")))
	got, ok := im.GetIndexlet(1, 0, Key("\x00"), Key("m"))
	require.True(t, ok)
	assert.Equal(t, uint64(10), got.StorageTableId)

	_, ok = im.GetIndexlet(1, 0, Key("\x00"), Key("n"))
	assert.False(t, ok)
}
