package arenamap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)

	return b
}

func newTable(t *testing.T, keySize, valSize int, opts ...Option) *Table {
	t.Helper()

	tt, err := New(keySize, valSize, opts...)
	require.NoError(t, err)

	return tt
}

func collisionHash(key []byte, seed uint32) uint32 {
	return 0 // All keys start at index 0
}

func keysOf(tt *Table) []uint64 {
	var keys []uint64
	for k := range tt.Keys() {
		keys = append(keys, binary.LittleEndian.Uint64(k))
	}

	return keys
}

func TestTable_New(t *testing.T) {
	tt := newTable(t, 8, 8)

	require.Len(t, tt.slots, BaseCapacity)
	require.Len(t, tt.arena.buf, BaseCapacity*16)
	assert.Equal(t, 0, tt.Len())
	assert.Equal(t, BaseCapacity, tt.Capacity())
	assert.Equal(t, nilIndex, tt.head)
	assert.Equal(t, nilIndex, tt.tail)
}

func TestTable_New_InvalidSizes(t *testing.T) {
	tests := []struct {
		name    string
		keySize int
		valSize int
	}{
		{"zero key", 0, 8},
		{"negative key", -1, 8},
		{"negative value", 8, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.keySize, tc.valSize)
			require.ErrorIs(t, err, ErrInvalidSize)
		})
	}
}

func TestTable_New_WithCapacity(t *testing.T) {
	tt := newTable(t, 8, 8, WithCapacity(100))
	assert.Equal(t, 100, tt.Capacity())

	_, err := New(8, 8, WithCapacity(64), WithMaxCapacity(32))
	require.ErrorIs(t, err, ErrAllocationFailed)
}

func TestTable_Set_Get(t *testing.T) {
	tt := newTable(t, 8, 8)

	require.NoError(t, tt.Set(u64(1), u64(100)))

	v, err := tt.Get(u64(1))
	require.NoError(t, err)
	assert.Equal(t, u64(100), v)

	_, err = tt.Get(u64(2))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTable_Set_Update(t *testing.T) {
	tt := newTable(t, 8, 8)

	for i := range uint64(5) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	stats := tt.Stats()

	require.NoError(t, tt.Set(u64(2), u64(200)))

	assert.Equal(t, 5, tt.Len())
	assert.Equal(t, stats.Mapped, tt.Stats().Mapped)

	v, err := tt.Get(u64(2))
	require.NoError(t, err)
	assert.Equal(t, u64(200), v)

	// Updates keep the original position.
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, keysOf(tt))
}

func TestTable_Get_ViewAliasesArena(t *testing.T) {
	tt := newTable(t, 8, 8)
	require.NoError(t, tt.Set(u64(1), u64(1)))

	v, err := tt.Get(u64(1))
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(v, 42)

	v, err = tt.Get(u64(1))
	require.NoError(t, err)
	assert.Equal(t, u64(42), v)
}

func TestTable_InvalidArguments(t *testing.T) {
	tt := newTable(t, 8, 8)

	require.ErrorIs(t, tt.Set(nil, u64(1)), ErrNullArgument)
	require.ErrorIs(t, tt.Set(u64(1), nil), ErrNullArgument)

	_, err := tt.Get(nil)
	require.ErrorIs(t, err, ErrNullArgument)
	require.ErrorIs(t, tt.Remove(nil), ErrNullArgument)

	err = tt.Set([]byte{1, 2, 3}, u64(1))
	require.ErrorIs(t, err, ErrInvalidSize)

	var sizeErr *SizeMismatchError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, "key", sizeErr.Field)
	assert.Equal(t, 8, sizeErr.Expected)
	assert.Equal(t, 3, sizeErr.Actual)

	err = tt.Set(u64(1), []byte{1})
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, "value", sizeErr.Field)

	var nilTable *Table
	require.ErrorIs(t, nilTable.Set(u64(1), u64(1)), ErrNullArgument)
	assert.Equal(t, 0, nilTable.Len())
	assert.False(t, nilTable.Has(u64(1)))
}

func TestTable_Remove(t *testing.T) {
	tt := newTable(t, 8, 8)

	for i := range uint64(8) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}

	require.NoError(t, tt.Remove(u64(3)))
	require.ErrorIs(t, tt.Remove(u64(3)), ErrNotFound)
	require.ErrorIs(t, tt.Remove(u64(100)), ErrNotFound)

	_, err := tt.Get(u64(3))
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, tt.Has(u64(3)))
	assert.Equal(t, 7, tt.Len())
	assert.Equal(t, []uint64{0, 1, 2, 4, 5, 6, 7}, keysOf(tt))

	// The arena cell stays consumed until a rebuild.
	stats := tt.Stats()
	assert.Equal(t, 8, stats.Mapped)
	assert.Equal(t, 1, stats.Tombstones)
}

func TestTable_Remove_Endpoints(t *testing.T) {
	tt := newTable(t, 8, 8, WithCapacity(64))

	for i := range uint64(10) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}

	require.NoError(t, tt.Remove(u64(0)))
	require.NoError(t, tt.Remove(u64(9)))

	k, _, err := tt.Head()
	require.NoError(t, err)
	assert.Equal(t, u64(1), k)

	k, _, err = tt.Tail()
	require.NoError(t, err)
	assert.Equal(t, u64(8), k)

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, keysOf(tt))
}

func TestTable_Tombstones(t *testing.T) {
	tt := newTable(t, 8, 8, WithHasher(collisionHash))

	for i := range uint64(4) {
		require.NoError(t, tt.Set(u64(i), u64(i*10))) // Slots 0..3 via probe
	}

	// Delete the "bridge" element
	require.NoError(t, tt.Remove(u64(1)))
	require.Equal(t, slotTombstone, tt.slots[1].state)

	// Verify we can still find 2 even though there's a hole at 1
	v, err := tt.Get(u64(2))
	require.NoError(t, err, "Probe chain broken: could not find 2 after deleting 1")
	assert.Equal(t, u64(20), v)

	// A new key does not reuse the tombstone, it takes the first empty slot.
	require.NoError(t, tt.Set(u64(7), u64(70)))
	assert.Equal(t, slotTombstone, tt.slots[1].state)
	assert.Equal(t, slotOccupied, tt.slots[4].state)
}

func TestTable_Set_ResurrectsTombstone(t *testing.T) {
	tt := newTable(t, 8, 8, WithHasher(collisionHash))

	for i := range uint64(4) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	require.NoError(t, tt.Remove(u64(1)))

	require.NoError(t, tt.Set(u64(1), u64(111)))

	assert.Equal(t, slotOccupied, tt.slots[1].state)
	assert.Equal(t, 4, tt.Len())

	stats := tt.Stats()
	assert.Equal(t, 4, stats.Mapped)
	assert.Equal(t, 0, stats.Tombstones)

	v, err := tt.Get(u64(1))
	require.NoError(t, err)
	assert.Equal(t, u64(111), v)

	// Back in the order list, as the most recent entry.
	assert.Equal(t, []uint64{0, 2, 3, 1}, keysOf(tt))
}

func TestTable_Grow_PreservesOrder(t *testing.T) {
	tt := newTable(t, 8, 8)

	const n = 500
	for i := range uint64(n) {
		require.NoError(t, tt.Set(u64(i), u64(i*2)))
		require.Less(t, tt.Stats().LoadFactor, float32(0.6))
	}

	stats := tt.Stats()
	assert.Greater(t, stats.Grows, uint64(0))
	assert.Equal(t, n, stats.Size)
	assert.Equal(t, n, stats.Mapped)

	keys := keysOf(tt)
	require.Len(t, keys, n)
	for i, k := range keys {
		require.Equal(t, uint64(i), k)
	}
}

func TestTable_LoadFactorBounds(t *testing.T) {
	tt := newTable(t, 8, 8)
	rnd := rand.New(rand.NewSource(1))

	live := map[uint64]bool{}
	for range 5000 {
		k := uint64(rnd.Intn(400))

		if live[k] && rnd.Intn(2) == 0 {
			before := tt.Capacity()
			require.NoError(t, tt.Remove(u64(k)))
			delete(live, k)

			if tt.Len()*10 <= before {
				assert.True(t, tt.Capacity() < before || before == BaseCapacity,
					"capacity %d not reduced for %d entries", before, tt.Len())
			}

			continue
		}

		require.NoError(t, tt.Set(u64(k), u64(k)))
		live[k] = true
		require.Less(t, tt.Stats().LoadFactor, float32(0.6))
	}

	// Count accuracy.
	assert.Equal(t, len(live), tt.Len())
	for k := range live {
		require.True(t, tt.Has(u64(k)))
	}
}

func TestTable_Scenario(t *testing.T) {
	tt := newTable(t, 8, 8)

	for i := range uint64(1000) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	require.Equal(t, 1000, tt.Len())
	for i := range uint64(1000) {
		v, err := tt.Get(u64(i))
		require.NoError(t, err)
		require.Equal(t, u64(i), v)
	}

	peak := tt.Capacity()
	for i := range uint64(900) {
		require.NoError(t, tt.Remove(u64(i)))
	}
	require.Equal(t, 100, tt.Len())
	assert.Less(t, tt.Capacity(), peak)
	assert.GreaterOrEqual(t, tt.Stats().Shrinks, uint64(1))

	keys := keysOf(tt)
	require.Len(t, keys, 100)
	for i, k := range keys {
		require.Equal(t, uint64(900+i), k)
	}
}

func TestTable_Destructors(t *testing.T) {
	var keyDrops, valDrops int

	tt := newTable(t, 8, 8,
		WithKeyDestructor(func([]byte) { keyDrops++ }),
		WithValueDestructor(func([]byte) { valDrops++ }),
	)

	for i := range uint64(100) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	for i := range uint64(10) {
		require.NoError(t, tt.Set(u64(i), u64(i+1)))
	}
	assert.Equal(t, 0, keyDrops)
	assert.Equal(t, 10, valDrops)

	for i := uint64(10); i < 20; i++ {
		require.NoError(t, tt.Remove(u64(i)))
	}
	assert.Equal(t, 10, keyDrops)
	assert.Equal(t, 20, valDrops)

	tt.Clear()
	assert.Equal(t, 90, keyDrops)
	assert.Equal(t, 100, valDrops)

	require.NoError(t, tt.Set(u64(1), u64(1)))
	tt.Destroy()
	assert.Equal(t, 91, keyDrops)
	assert.Equal(t, 101, valDrops)
}

func TestTable_Destructor_SeesOldValue(t *testing.T) {
	var dropped []uint64

	tt := newTable(t, 8, 8, WithValueDestructor(func(v []byte) {
		dropped = append(dropped, binary.LittleEndian.Uint64(v))
	}))

	require.NoError(t, tt.Set(u64(1), u64(10)))
	require.NoError(t, tt.Set(u64(1), u64(20)))
	require.NoError(t, tt.Remove(u64(1)))

	assert.Equal(t, []uint64{10, 20}, dropped)
}

func TestTable_KeyDestructor_WipingKeepsTombstone(t *testing.T) {
	var dropped []uint64

	tt := newTable(t, 8, 8,
		WithHasher(collisionHash),
		WithKeyDestructor(func(k []byte) {
			dropped = append(dropped, binary.LittleEndian.Uint64(k))
			clear(k)
		}),
	)

	for _, k := range []uint64{1, 0, 2, 3, 4, 5} {
		require.NoError(t, tt.Set(u64(k), u64(k)))
	}
	require.NoError(t, tt.Remove(u64(1)))
	assert.Equal(t, []uint64{1}, dropped)

	// Key 0 is live behind the tombstone of key 1 and must be updated in place.
	require.NoError(t, tt.Set(u64(0), u64(100)))
	assert.Equal(t, 5, tt.Len())
	assert.Equal(t, []uint64{0, 2, 3, 4, 5}, keysOf(tt))

	v, err := tt.Get(u64(0))
	require.NoError(t, err)
	assert.Equal(t, u64(100), v)

	// The tombstone still resurrects for its own key.
	require.NoError(t, tt.Set(u64(1), u64(1)))
	assert.Equal(t, 6, tt.Len())
	assert.Equal(t, 0, tt.Stats().Tombstones)
	assert.Equal(t, []uint64{0, 2, 3, 4, 5, 1}, keysOf(tt))
}

func failingAllocator(after int) Allocator {
	calls := 0

	return func(size int) ([]byte, error) {
		calls++
		if calls > after {
			return nil, errors.New("out of memory")
		}

		return make([]byte, size), nil
	}
}

func TestTable_Set_AllocationFailureIsAtomic(t *testing.T) {
	tt := newTable(t, 8, 8, WithAllocator(failingAllocator(1)))

	// The 10th insert crosses 0.6 of 16 slots.
	for i := range uint64(9) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	before := tt.Stats()

	err := tt.Set(u64(9), u64(9))
	require.ErrorIs(t, err, ErrAllocationFailed)
	require.ErrorIs(t, tt.LastError(), ErrAllocationFailed)

	assert.Equal(t, before, tt.Stats())
	assert.False(t, tt.Has(u64(9)))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8}, keysOf(tt))

	// Updates never allocate.
	require.NoError(t, tt.Set(u64(3), u64(33)))
	assert.Nil(t, tt.LastError())
}

func TestTable_Remove_AllocationFailureIsAtomic(t *testing.T) {
	tt := newTable(t, 8, 8, WithCapacity(64), WithAllocator(failingAllocator(1)))

	for i := range uint64(8) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	// Dropping to 6 live entries in 64 slots triggers a shrink.
	require.NoError(t, tt.Remove(u64(0)))

	err := tt.Remove(u64(1))
	require.ErrorIs(t, err, ErrAllocationFailed)
	assert.True(t, tt.Has(u64(1)))
	assert.Equal(t, 7, tt.Len())
	assert.Equal(t, 64, tt.Capacity())
}

func TestTable_WithMaxCapacity(t *testing.T) {
	tt := newTable(t, 8, 8, WithMaxCapacity(BaseCapacity))

	for i := range uint64(9) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}

	require.ErrorIs(t, tt.Set(u64(9), u64(9)), ErrAllocationFailed)
	assert.Equal(t, 9, tt.Len())
}

func TestTable_DefaultAllocator_Overflow(t *testing.T) {
	_, err := makeAllocator(-1)
	require.ErrorIs(t, err, ErrAllocationFailed)

	_, err = newArena(makeAllocator, 1<<40, 1<<30, 1<<30)
	require.ErrorIs(t, err, ErrAllocationFailed)
}

func TestTable_Resize(t *testing.T) {
	tt := newTable(t, 8, 8)

	for i := range uint64(8) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	require.NoError(t, tt.Remove(u64(2)))
	require.Equal(t, 1, tt.Stats().Tombstones)

	require.NoError(t, tt.Resize(100))

	stats := tt.Stats()
	assert.Equal(t, 100, stats.Capacity)
	assert.Equal(t, 0, stats.Tombstones)
	assert.Equal(t, 7, stats.Mapped)
	assert.Equal(t, uint64(1), stats.Rebuilds)
	assert.Equal(t, []uint64{0, 1, 3, 4, 5, 6, 7}, keysOf(tt))

	require.ErrorIs(t, tt.Resize(0), ErrInvalidCapacity)
	require.ErrorIs(t, tt.Resize(11), ErrInvalidCapacity) // 7/11 > 0.6
	require.NoError(t, tt.Resize(12))
	assert.Equal(t, 12, tt.Capacity())

	for i := range uint64(8) {
		_, err := tt.Get(u64(i))
		if i == 2 {
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err)
	}
}

func TestTable_Reserve(t *testing.T) {
	tt := newTable(t, 8, 8)

	require.NoError(t, tt.Reserve(5))
	assert.Equal(t, BaseCapacity, tt.Capacity())

	require.NoError(t, tt.Reserve(1000))
	assert.Equal(t, 2048, tt.Capacity())

	for i := range uint64(1000) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	assert.Equal(t, uint64(1), tt.Stats().Grows)

	require.ErrorIs(t, tt.Reserve(-1), ErrInvalidCapacity)
}

func TestTable_Reserve_TooLarge(t *testing.T) {
	tt := newTable(t, 8, 8)

	// Needs more than 1<<32 slots.
	err := tt.Reserve(2576980437)
	require.ErrorIs(t, err, ErrAllocationFailed)
	require.ErrorIs(t, tt.LastError(), ErrAllocationFailed)
	assert.Equal(t, BaseCapacity, tt.Capacity())

	require.ErrorIs(t, tt.Reserve(math.MaxInt), ErrAllocationFailed)
	assert.Equal(t, BaseCapacity, tt.Capacity())

	limited := newTable(t, 8, 8, WithMaxCapacity(64))
	require.NoError(t, limited.Reserve(30))
	assert.Equal(t, 64, limited.Capacity())
	require.ErrorIs(t, limited.Reserve(100), ErrAllocationFailed)
	assert.Equal(t, 64, limited.Capacity())
}

func TestTable_Clear(t *testing.T) {
	tt := newTable(t, 8, 8)

	for i := range uint64(50) {
		require.NoError(t, tt.Set(u64(i), u64(i)))
	}
	capacity := tt.Capacity()

	tt.Clear()

	assert.Equal(t, 0, tt.Len())
	assert.Equal(t, capacity, tt.Capacity())
	assert.Equal(t, 0, tt.Stats().Mapped)
	assert.False(t, tt.Has(u64(1)))
	assert.Empty(t, keysOf(tt))

	require.NoError(t, tt.Set(u64(7), u64(7)))
	assert.Equal(t, []uint64{7}, keysOf(tt))
}

func TestTable_Destroy(t *testing.T) {
	tt := newTable(t, 8, 8)
	require.NoError(t, tt.Set(u64(1), u64(1)))

	tt.Destroy()
	tt.Destroy()

	assert.Equal(t, 0, tt.Len())
	assert.Equal(t, 0, tt.Capacity())
	assert.False(t, tt.Has(u64(1)))

	require.ErrorIs(t, tt.Set(u64(1), u64(1)), ErrDestroyed)
	_, err := tt.Get(u64(1))
	require.ErrorIs(t, err, ErrDestroyed)
	require.ErrorIs(t, tt.Remove(u64(1)), ErrDestroyed)
	require.ErrorIs(t, tt.Resize(32), ErrDestroyed)
	require.ErrorIs(t, tt.Scan(func(_, _ []byte) bool { return true }), ErrDestroyed)
	assert.Empty(t, keysOf(tt))
}

func TestTable_LastError(t *testing.T) {
	tt := newTable(t, 8, 8)
	assert.Nil(t, tt.LastError())

	_, err := tt.Get(u64(1))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, tt.LastError(), ErrNotFound)

	require.NoError(t, tt.Set(u64(1), u64(1)))
	assert.Nil(t, tt.LastError())
}

func TestTable_WithComparator(t *testing.T) {
	fold := func(b []byte) []byte { return bytes.ToLower(b) }

	tt := newTable(t, 4, 8,
		WithHasher(func(key []byte, seed uint32) uint32 { return MurmurHasher(fold(key), seed) }),
		WithComparator(func(a, b []byte) int { return bytes.Compare(fold(a), fold(b)) }),
	)

	require.NoError(t, tt.Set([]byte("ABCD"), u64(1)))
	require.NoError(t, tt.Set([]byte("abcd"), u64(2)))
	assert.Equal(t, 1, tt.Len())

	v, err := tt.Get([]byte("AbCd"))
	require.NoError(t, err)
	assert.Equal(t, u64(2), v)
}

func TestTable_Seed(t *testing.T) {
	var seen []uint32
	h := func(key []byte, seed uint32) uint32 {
		seen = append(seen, seed)
		return MurmurHasher(key, seed)
	}

	tt := newTable(t, 8, 8, WithHasher(h), WithSeed(0xC0FFEE))
	require.NoError(t, tt.Set(u64(1), u64(1)))

	require.NotEmpty(t, seen)
	assert.Equal(t, uint32(0xC0FFEE), seen[0])
}

func TestTable_Random_Sync(t *testing.T) {
	tt := newTable(t, 8, 8)

	// 1. Fill
	for i := range uint64(64) {
		require.NoError(t, tt.Set(u64(i), u64(i*100)))
	}

	keys := make([]uint64, 0, 32)

	// 2. Delete half at random
	for len(keys) < 32 {
		idx := uint64(rand.Intn(64))
		if tt.Remove(u64(idx)) == nil {
			keys = append(keys, idx)
		}
	}

	// 3. Verify remaining keys still have their correct values
	for idx := range uint64(64) {
		if slices.Contains(keys, idx) {
			continue
		}

		v, err := tt.Get(u64(idx))
		require.NoError(t, err)
		require.Equal(t, u64(idx*100), v)
	}

	// 4. Verify deleted keys are not present
	for _, key := range keys {
		require.False(t, tt.Has(u64(key)))
	}
}
