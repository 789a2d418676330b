package arenamap

import (
	"bytes"
	"encoding/binary"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Hasher maps a key blob to a 32-bit hash. The seed is the table's seed and
// stays the same for the table's lifetime.
type Hasher func(key []byte, seed uint32) uint32

// Comparator returns 0 when a and b are equal keys. Any other value means
// they differ; the sign is not used by the table.
type Comparator func(a, b []byte) int

// Destructor is invoked with the bytes of a key or a value right before the
// table stops owning them. It must not retain the slice. A removed key is
// handed over as a copy: its tombstone keeps the original bytes, so wiping
// the slice does not affect later lookups.
type Destructor func(b []byte)

// MurmurHasher is the default hasher (MurmurHash3, x86 32-bit variant).
func MurmurHasher(key []byte, seed uint32) uint32 {
	return murmur3.Sum32WithSeed(key, seed)
}

// XXHasher hashes with a seeded xxHash64 digest folded to 32 bits.
func XXHasher(key []byte, seed uint32) uint32 {
	d := xxhash.NewWithSeed(uint64(seed))
	_, _ = d.Write(key)
	h := d.Sum64()

	return uint32(h>>32) ^ uint32(h)
}

// NewMaphashHasher returns a hasher backed by hash/maphash. Its own random
// seed is drawn once, the table seed is mixed in on every call.
func NewMaphashHasher() Hasher {
	seed := maphash.MakeSeed()

	return func(key []byte, tableSeed uint32) uint32 {
		var (
			h  maphash.Hash
			sb [4]byte
		)
		binary.LittleEndian.PutUint32(sb[:], tableSeed)

		h.SetSeed(seed)
		_, _ = h.Write(sb[:])
		_, _ = h.Write(key)
		v := h.Sum64()

		return uint32(v>>32) ^ uint32(v)
	}
}

func defaultComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}
