package ramcloud

// IndexEntry is a single secondary-index entry: (key, primaryKeyHash).
// Entries order primarily by Key (byte-lexicographic), secondarily by
// PrimaryKeyHash ascending (spec.md §3).
type IndexEntry struct {
	Key            Key
	PrimaryKeyHash uint64
}

// CompareEntries implements the composite order used by IndexletStore.
func CompareEntries(a, b IndexEntry) int {
	if c := CompareKeys(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.PrimaryKeyHash < b.PrimaryKeyHash:
		return -1
	case a.PrimaryKeyHash > b.PrimaryKeyHash:
		return 1
	default:
		return 0
	}
}

func entryLess(a, b IndexEntry) bool {
	return CompareEntries(a, b) < 0
}

// Indexlet identifies one partition of one secondary index: the half-open
// key range [Range.First, Range.FirstNotOwned) that this host owns for
// (TableId, IndexId), plus the storage table the indexed primary keys live
// in.
type Indexlet struct {
	TableId        uint64
	IndexId        uint8
	StorageTableId uint64
	Range          KeyRange
}

// indexletEntry is the server-side registration record: identity plus the
// store backing it. Owned exclusively by the IndexletManager partition that
// holds it; dropping the registration destroys the store (spec.md §9).
type indexletEntry struct {
	Indexlet
	store *IndexletStore
}
