package ramcloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexletStore_EmptyInitially(t *testing.T) {
	s := NewIndexletStore()
	assert.True(t, s.Empty())
}

func TestIndexletStore_InsertThenLowerBound(t *testing.T) {
	s := NewIndexletStore()
	s.Insert(IndexEntry{Key: Key("b"), PrimaryKeyHash: 2})
	s.Insert(IndexEntry{Key: Key("a"), PrimaryKeyHash: 1})
	s.Insert(IndexEntry{Key: Key("c"), PrimaryKeyHash: 3})

	c := s.LowerBound(IndexEntry{Key: Key("b")})
	require.False(t, c.End())
	assert.Equal(t, Key("b"), c.Key())
	assert.Equal(t, uint64(2), c.Data())
	c.Next()
	require.False(t, c.End())
	assert.Equal(t, Key("c"), c.Key())
	c.Next()
	assert.True(t, c.End())
}

// insert(e); remove(e) leaves the store equivalent to its pre-state
// (spec.md §8).
func TestIndexletStore_InsertRemoveRoundTrip(t *testing.T) {
	s := NewIndexletStore()
	e := IndexEntry{Key: Key("k"), PrimaryKeyHash: 99}
	require.True(t, s.Empty())

	s.Insert(e)
	assert.False(t, s.Empty())

	removed := s.EraseOne(e)
	assert.True(t, removed)
	assert.True(t, s.Empty())
}

// remove(e) on an absent entry is idempotent (spec.md §8).
func TestIndexletStore_EraseAbsentIsNoop(t *testing.T) {
	s := NewIndexletStore()
	removed := s.EraseOne(IndexEntry{Key: Key("ghost"), PrimaryKeyHash: 1})
	assert.False(t, removed)
}

func TestIndexletStore_SameKeyDifferentHashCoexist(t *testing.T) {
	s := NewIndexletStore()
	s.Insert(IndexEntry{Key: Key("dup"), PrimaryKeyHash: 1})
	s.Insert(IndexEntry{Key: Key("dup"), PrimaryKeyHash: 2})
	assert.Equal(t, 2, s.Len())
}

func TestIndexletStore_ScanRangeTruncatesAtBudget(t *testing.T) {
	s := NewIndexletStore()
	s.Insert(IndexEntry{Key: Key("a"), PrimaryKeyHash: 1})
	s.Insert(IndexEntry{Key: Key("b"), PrimaryKeyHash: 2})
	s.Insert(IndexEntry{Key: Key("c"), PrimaryKeyHash: 3})

	res := s.ScanRange(Key("a"), 0, Key("z"), 2)
	require.True(t, res.Truncated)
	assert.Equal(t, []uint64{1, 2}, res.Hashes)
	assert.Equal(t, Key("c"), res.NextKey)
	assert.Equal(t, uint64(3), res.NextHash)
}

func TestIndexletStore_ScanRangeCompletesWithoutTruncation(t *testing.T) {
	s := NewIndexletStore()
	s.Insert(IndexEntry{Key: Key("a"), PrimaryKeyHash: 1})

	res := s.ScanRange(Key("a"), 0, Key("z"), 16)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.NextKey)
	assert.Equal(t, []uint64{1}, res.Hashes)
}

func TestCompareKeys_PrefixIsSmaller(t *testing.T) {
	assert.True(t, CompareKeys(Key("app"), Key("apple")) < 0)
	assert.True(t, CompareKeys(Key("apple"), Key("app")) > 0)
	assert.Equal(t, 0, CompareKeys(Key("x"), Key("x")))
}

func TestKeyRange_OpenUpperBound(t *testing.T) {
	r := KeyRange{First: Key("m"), FirstNotOwned: Key{}}
	assert.True(t, r.Open())
	assert.True(t, r.Contains(Key("zzzz")))
	assert.False(t, r.Contains(Key("a")))
}
