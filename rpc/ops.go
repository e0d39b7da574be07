package rpc

import (
	"encoding/binary"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/status"
)

// Opcodes identify the five indexlet/index-entry operations spec.md §4
// names. The wire format of every request is a flat, length-prefixed byte
// encoding; decoding it into a header+payload split is left to the
// service side, which is out of scope for this client-side module
// (spec.md §1).
const (
	OpTakeIndexletOwnership uint16 = iota + 1
	OpDropIndexletOwnership
	OpInsertIndexEntry
	OpRemoveIndexEntry
	OpLookupIndexKeys
)

// ServiceIndexlet is the RPC service selector for every operation in this
// file, distinguishing it from a data-path object-read service a master
// would also expose.
const ServiceIndexlet uint8 = 1

func appendKey(buf []byte, k ramcloud.Key) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(k)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, k...)
}

func readKey(buf []byte, offset int) (ramcloud.Key, int) {
	n := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2
	return ramcloud.Key(buf[offset : offset+n]), offset + n
}

// TakeIndexletOwnershipRequest asks a master to begin serving an indexlet
// (spec.md §4.1 AddIndexlet's server-side counterpart).
type TakeIndexletOwnershipRequest struct {
	TableId        uint64
	IndexId        uint8
	StorageTableId uint64
	FirstKey       ramcloud.Key
	FirstNotOwned  ramcloud.Key
}

// Encode serializes the request; the one-byte status placeholder at
// offset 0 keeps every request the same shape as its response, which
// simplifies MinHeaderLen bookkeeping in the wrapper.
func (r TakeIndexletOwnershipRequest) Encode() []byte {
	buf := make([]byte, 0, 32+len(r.FirstKey)+len(r.FirstNotOwned))
	buf = append(buf, 0)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], r.TableId)
	buf = append(buf, u64[:]...)
	buf = append(buf, r.IndexId)
	binary.BigEndian.PutUint64(u64[:], r.StorageTableId)
	buf = append(buf, u64[:]...)
	buf = appendKey(buf, r.FirstKey)
	buf = appendKey(buf, r.FirstNotOwned)
	return buf
}

// TakeIndexletOwnershipMinHeaderLen is the shortest possible response: a
// single status byte.
const TakeIndexletOwnershipMinHeaderLen = 1

// DropIndexletOwnershipRequest asks a master to stop serving an indexlet
// (spec.md §4.1 DeleteIndexlet's server-side counterpart).
type DropIndexletOwnershipRequest struct {
	TableId       uint64
	IndexId       uint8
	FirstKey      ramcloud.Key
	FirstNotOwned ramcloud.Key
}

func (r DropIndexletOwnershipRequest) Encode() []byte {
	buf := make([]byte, 0, 24+len(r.FirstKey)+len(r.FirstNotOwned))
	buf = append(buf, 0)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], r.TableId)
	buf = append(buf, u64[:]...)
	buf = append(buf, r.IndexId)
	buf = appendKey(buf, r.FirstKey)
	buf = appendKey(buf, r.FirstNotOwned)
	return buf
}

const DropIndexletOwnershipMinHeaderLen = 1

// InsertIndexEntryRequest adds one (key, primaryKeyHash) pair to the
// indexlet owning key (spec.md §4.2 InsertEntry's server-side
// counterpart).
type InsertIndexEntryRequest struct {
	TableId        uint64
	IndexId        uint8
	IndexKey       ramcloud.Key
	PrimaryKeyHash uint64
}

func (r InsertIndexEntryRequest) Encode() []byte {
	buf := make([]byte, 0, 32+len(r.IndexKey))
	buf = append(buf, 0)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], r.TableId)
	buf = append(buf, u64[:]...)
	buf = append(buf, r.IndexId)
	buf = appendKey(buf, r.IndexKey)
	binary.BigEndian.PutUint64(u64[:], r.PrimaryKeyHash)
	buf = append(buf, u64[:]...)
	return buf
}

const InsertIndexEntryMinHeaderLen = 1

// RemoveIndexEntryRequest removes one (key, primaryKeyHash) pair;
// removing an absent entry is not an error (spec.md §4.2 RemoveEntry's
// server-side counterpart).
type RemoveIndexEntryRequest struct {
	TableId        uint64
	IndexId        uint8
	IndexKey       ramcloud.Key
	PrimaryKeyHash uint64
}

func (r RemoveIndexEntryRequest) Encode() []byte {
	return InsertIndexEntryRequest(r).Encode()
}

const RemoveIndexEntryMinHeaderLen = 1

// LookupIndexKeysRequest scans [FirstKey, LastKey] for up to MaxHashes
// matching primary key hashes, resuming from FirstAllowedKeyHash on the
// boundary key (spec.md §4.3 LookupIndexKeys's server-side counterpart).
type LookupIndexKeysRequest struct {
	TableId             uint64
	IndexId             uint8
	FirstKey            ramcloud.Key
	FirstAllowedKeyHash uint64
	LastKey             ramcloud.Key
	MaxHashes           int
}

func (r LookupIndexKeysRequest) Encode() []byte {
	buf := make([]byte, 0, 40+len(r.FirstKey)+len(r.LastKey))
	buf = append(buf, 0)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], r.TableId)
	buf = append(buf, u64[:]...)
	buf = append(buf, r.IndexId)
	buf = appendKey(buf, r.FirstKey)
	binary.BigEndian.PutUint64(u64[:], r.FirstAllowedKeyHash)
	buf = append(buf, u64[:]...)
	buf = appendKey(buf, r.LastKey)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(r.MaxHashes))
	buf = append(buf, u32[:]...)
	return buf
}

// LookupIndexKeysMinHeaderLen covers the status byte plus the fixed
// NextKeyHash/count/truncated fields that always precede the variable
// hash list and NextKey trailer.
const LookupIndexKeysMinHeaderLen = 1 + 8 + 4 + 1

// LookupIndexKeysResponse is the decoded form of a LOOKUP_INDEX_KEYS
// response header (spec.md §4.3).
type LookupIndexKeysResponse struct {
	Status    status.Status
	Hashes    []uint64
	Truncated bool
	NextKey   ramcloud.Key
	NextHash  uint64
}

// DecodeLookupIndexKeysResponse parses a response produced by the wire
// format Encode/appendKey above. Caller must have already checked
// len(buf) >= LookupIndexKeysMinHeaderLen.
func DecodeLookupIndexKeysResponse(buf []byte) LookupIndexKeysResponse {
	resp := LookupIndexKeysResponse{Status: status.Status(buf[0])}
	offset := 1
	resp.NextHash = binary.BigEndian.Uint64(buf[offset:])
	offset += 8
	count := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4
	resp.Truncated = buf[offset] != 0
	offset++
	resp.Hashes = make([]uint64, count)
	for i := 0; i < count; i++ {
		resp.Hashes[i] = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
	}
	resp.NextKey, _ = readKey(buf, offset)
	return resp
}

// EncodeLookupIndexKeysResponse is the server-side inverse, kept here
// because the mock server used by tests and the CLI plays that role
// in-process (spec.md §1: no real master is implemented, but the
// response shape it would produce is part of this module's contract).
func EncodeLookupIndexKeysResponse(resp LookupIndexKeysResponse) []byte {
	buf := make([]byte, 0, LookupIndexKeysMinHeaderLen+8*len(resp.Hashes)+2+len(resp.NextKey))
	buf = append(buf, byte(resp.Status))
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], resp.NextHash)
	buf = append(buf, u64[:]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(resp.Hashes)))
	buf = append(buf, u32[:]...)
	if resp.Truncated {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	for _, h := range resp.Hashes {
		binary.BigEndian.PutUint64(u64[:], h)
		buf = append(buf, u64[:]...)
	}
	buf = appendKey(buf, resp.NextKey)
	return buf
}
