// Package ramcloud implements the indexlet routing and retryable RPC core
// of a RAMCloud-style distributed key-value store: a range-partitioned
// secondary index store (C1-C3), a client-side config cache that resolves
// tablets and indexlets to sessions (C4-C5), and the retry/redirect state
// machine that drives RPCs against both (C6-C8).
package ramcloud

import "bytes"

// Key is an opaque byte string of length 0-65535, compared byte-lexically.
// When one key is a prefix of another, the shorter key compares less.
type Key []byte

// CompareKeys implements the Key Codec (C1): compare the common prefix
// byte-by-byte, then break ties on length.
func CompareKeys(a, b Key) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if c := bytes.Compare(a[:n], b[:n]); c != 0 {
		return c
	}
	return len(a) - len(b)
}

// KeyRange is the half-open range [First, FirstNotOwned) owned by one
// indexlet. A zero-length FirstNotOwned denotes an open upper bound ("+∞").
type KeyRange struct {
	First         Key
	FirstNotOwned Key
}

// Open reports whether the range's upper bound is +∞.
func (r KeyRange) Open() bool {
	return len(r.FirstNotOwned) == 0
}

// Contains reports whether k falls in [First, FirstNotOwned).
func (r KeyRange) Contains(k Key) bool {
	if CompareKeys(r.First, k) > 0 {
		return false
	}
	return r.Open() || CompareKeys(k, r.FirstNotOwned) < 0
}

// Equal compares two ranges for exact identity (used by DeleteIndexlet's
// exact-match requirement).
func (r KeyRange) Equal(o KeyRange) bool {
	return bytes.Equal(r.First, o.First) && bytes.Equal(r.FirstNotOwned, o.FirstNotOwned)
}

// overlapsProbe reports whether probe falls inside r. Used only by
// AddIndexlet's probe-by-firstKey containment check (spec.md §4.3): a new
// indexlet is rejected if any existing indexlet already contains its
// firstKey. The rest of the new range is not compared against r.
func (r KeyRange) overlapsProbe(probe Key) bool {
	return r.Contains(probe)
}
