// Package arenamap implements an insertion ordered hash table of fixed-size
// byte blobs.
//
// A Table combines open addressing with linear probing, a single arena that
// stores all keys followed by all values, and an intrusive doubly linked
// list threaded through the occupied slots. Lookups only probe; iteration
// only walks the list, so it yields entries in insertion order no matter
// where they landed in the slot array.
//
//	t, err := arenamap.New(8, 8)
//	if err != nil {
//		return err
//	}
//	defer t.Destroy()
//
//	_ = t.Set(key, value)
//	v, err := t.Get(key) // v aliases the arena
//
//	for k, v := range t.All() {
//		...
//	}
//
// Removal leaves a tombstone so probe chains stay intact. Tombstones are
// only reclaimed by a rebuild: the table doubles once more than 60% of its
// slots have been mapped and halves (down to BaseCapacity) once at most
// 10% are live. Rebuild buffers are allocated before a mutation is applied,
// so a failed allocation leaves the table unchanged.
//
// The generic Map and Set wrap a Table with a Codec per key and value type.
// None of the types are safe for concurrent use.
package arenamap
