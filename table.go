package arenamap

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

const nilIndex int32 = -1

// slot is one cell of the open addressing array. cell, prev and next are
// only meaningful while the slot is occupied, except that a tombstone keeps
// its cell so its key can still stop a probe.
type slot struct {
	cell  int32
	prev  int32
	next  int32
	state slotState
}

// Table is an open addressing hash table of fixed-size byte blobs.
//
// Keys and values live in a single arena; the slots address into it. Live
// slots are threaded on a doubly linked list that keeps insertion order, so
// iteration order does not depend on probe positions and survives rebuilds.
//
// A Table is not safe for concurrent use.
type Table struct {
	keySize int
	valSize int

	slots []slot
	arena arena

	length int
	head   int32
	tail   int32

	cfg config

	// Bumped on every structural change, used to invalidate cursors.
	version uint64

	grows    uint64
	shrinks  uint64
	rebuilds uint64

	// Receives a copy of a removed key for the key destructor, so the
	// tombstone keeps the bytes probes compare against.
	keyScratch []byte

	destroyed bool
	lastErr   error
}

// New creates a table for keys of keySize bytes and values of valSize bytes.
func New(keySize, valSize int, opts ...Option) (*Table, error) {
	if keySize <= 0 {
		return nil, &SizeMismatchError{Field: "key", Expected: 1, Actual: keySize}
	}
	if valSize < 0 {
		return nil, &SizeMismatchError{Field: "value", Expected: 0, Actual: valSize}
	}

	t := &Table{
		keySize: keySize,
		valSize: valSize,
		head:    nilIndex,
		tail:    nilIndex,
		cfg:     newConfig(opts),
	}

	slots, ar, err := t.allocate(t.cfg.capacity)
	if err != nil {
		return nil, err
	}

	t.slots = slots
	t.arena = ar
	if t.cfg.keyDtor != nil {
		t.keyScratch = make([]byte, keySize)
	}

	return t, nil
}

func (t *Table) allocate(capacity int) ([]slot, arena, error) {
	if capacity > t.cfg.maxCapacity {
		return nil, arena{}, fmt.Errorf("%w: capacity %d exceeds limit %d", ErrAllocationFailed, capacity, t.cfg.maxCapacity)
	}

	ar, err := newArena(t.cfg.alloc, capacity, t.keySize, t.valSize)
	if err != nil {
		return nil, arena{}, err
	}

	slots, err := makeSlots(capacity)
	if err != nil {
		return nil, arena{}, err
	}

	return slots, ar, nil
}

func makeSlots(n int) (s []slot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: slots: %v", ErrAllocationFailed, r)
		}
	}()

	return make([]slot, n), nil
}

func (t *Table) fail(err error) error {
	t.lastErr = err
	return err
}

// LastError returns the error of the most recent fallible call on t, or nil
// if that call succeeded.
func (t *Table) LastError() error {
	if t == nil {
		return ErrNullArgument
	}

	return t.lastErr
}

func (t *Table) checkKey(key []byte) error {
	if key == nil {
		return ErrNullArgument
	}
	if len(key) != t.keySize {
		return &SizeMismatchError{Field: "key", Expected: t.keySize, Actual: len(key)}
	}

	return nil
}

func (t *Table) checkValue(val []byte) error {
	if val == nil && t.valSize > 0 {
		return ErrNullArgument
	}
	if len(val) != t.valSize {
		return &SizeMismatchError{Field: "value", Expected: t.valSize, Actual: len(val)}
	}

	return nil
}

// probe returns the index of the slot holding a key equal to key (occupied
// or tombstone), or of the first empty slot on the probe path.
func (t *Table) probe(key []byte) int32 {
	capacity := uint32(len(t.slots))
	idx := t.cfg.hasher(key, t.cfg.seed) % capacity

	for range capacity {
		s := &t.slots[idx]
		if s.state == slotEmpty || t.cfg.comparator(t.arena.key(s.cell), key) == 0 {
			return int32(idx)
		}

		idx++
		if idx == capacity {
			idx = 0
		}
	}

	// Unreachable while mapped < capacity.
	return nilIndex
}

func (t *Table) linkTail(idx int32) {
	s := &t.slots[idx]
	s.prev = t.tail
	s.next = nilIndex

	if t.tail == nilIndex {
		t.head = idx
	} else {
		t.slots[t.tail].next = idx
	}
	t.tail = idx
}

func (t *Table) unlink(idx int32) {
	s := &t.slots[idx]

	if s.prev == nilIndex {
		t.head = s.next
	} else {
		t.slots[s.prev].next = s.next
	}

	if s.next == nilIndex {
		t.tail = s.prev
	} else {
		t.slots[s.next].prev = s.prev
	}

	s.prev, s.next = nilIndex, nilIndex
}

// insertAt claims a new arena cell for the empty slot idx.
func (t *Table) insertAt(idx int32, key, val []byte) {
	s := &t.slots[idx]
	s.cell = t.arena.alloc()
	s.state = slotOccupied
	copy(t.arena.key(s.cell), key)
	copy(t.arena.value(s.cell), val)

	t.linkTail(idx)
	t.length++
}

// Set inserts key or overwrites its value. The key keeps its position in
// iteration order when it is already present.
func (t *Table) Set(key, val []byte) error {
	_, err := t.set(key, val)
	return err
}

func (t *Table) set(key, val []byte) (bool, error) {
	if t == nil {
		return false, ErrNullArgument
	}
	if t.destroyed {
		return false, t.fail(ErrDestroyed)
	}
	if err := t.checkKey(key); err != nil {
		return false, t.fail(err)
	}
	if err := t.checkValue(val); err != nil {
		return false, t.fail(err)
	}

	idx := t.probe(key)
	s := &t.slots[idx]

	switch s.state {
	case slotOccupied:
		v := t.arena.value(s.cell)
		if t.cfg.valDtor != nil {
			t.cfg.valDtor(v)
		}
		copy(v, val)

		t.lastErr = nil
		return false, nil

	case slotTombstone:
		// Resurrect in the cell the tombstone still holds.
		s.state = slotOccupied
		copy(t.arena.key(s.cell), key)
		copy(t.arena.value(s.cell), val)
		t.linkTail(idx)
		t.length++
		t.version++

		t.lastErr = nil
		return true, nil
	}

	capacity := len(t.slots)
	if (t.arena.mapped+1)*growDen < capacity*growNum {
		t.insertAt(idx, key, val)
		t.version++

		t.lastErr = nil
		return true, nil
	}

	// The insert crosses the growth threshold. Buffers for the rebuild are
	// allocated first so a failure leaves the table as it was.
	newCapacity := min(capacity*2, t.cfg.maxCapacity)
	if (t.length+1)*growDen >= newCapacity*growNum {
		err := fmt.Errorf("%w: cannot grow past %d slots", ErrAllocationFailed, t.cfg.maxCapacity)
		t.logAllocFailure(capacity, newCapacity, err)

		return false, t.fail(err)
	}

	slots, ar, err := t.allocate(newCapacity)
	if err != nil {
		t.logAllocFailure(capacity, newCapacity, err)
		return false, t.fail(err)
	}

	t.insertAt(idx, key, val)
	t.rebuildInto(slots, ar, "grow")

	t.lastErr = nil
	return true, nil
}

// Get returns a view of the value stored for key. The slice aliases the
// arena: writes through it update the table, and it must not be used after
// the next call that mutates the table.
func (t *Table) Get(key []byte) ([]byte, error) {
	if t == nil {
		return nil, ErrNullArgument
	}
	if t.destroyed {
		return nil, t.fail(ErrDestroyed)
	}
	if err := t.checkKey(key); err != nil {
		return nil, t.fail(err)
	}

	s := &t.slots[t.probe(key)]
	if s.state != slotOccupied {
		return nil, t.fail(ErrNotFound)
	}

	t.lastErr = nil
	return t.arena.value(s.cell), nil
}

// Checks whether a key is in the table.
func (t *Table) Has(key []byte) bool {
	if t == nil || t.destroyed || t.checkKey(key) != nil {
		return false
	}

	return t.slots[t.probe(key)].state == slotOccupied
}

// Remove deletes key, leaving a tombstone behind. The arena cell stays
// consumed until the next rebuild.
func (t *Table) Remove(key []byte) error {
	if t == nil {
		return ErrNullArgument
	}
	if t.destroyed {
		return t.fail(ErrDestroyed)
	}
	if err := t.checkKey(key); err != nil {
		return t.fail(err)
	}

	idx := t.probe(key)
	s := &t.slots[idx]
	if s.state != slotOccupied {
		return t.fail(ErrNotFound)
	}

	var (
		capacity = len(t.slots)
		shrink   = (t.length-1)*shrinkDen <= capacity*shrinkNum

		slots []slot
		ar    arena
	)

	if shrink {
		newCapacity := capacity / 2
		if newCapacity < BaseCapacity {
			newCapacity = min(BaseCapacity, capacity)
		}

		var err error
		slots, ar, err = t.allocate(newCapacity)
		if err != nil {
			t.logAllocFailure(capacity, newCapacity, err)
			return t.fail(err)
		}
	}

	t.unlink(idx)
	if t.cfg.keyDtor != nil {
		copy(t.keyScratch, t.arena.key(s.cell))
		t.cfg.keyDtor(t.keyScratch)
	}
	if t.cfg.valDtor != nil {
		t.cfg.valDtor(t.arena.value(s.cell))
	}
	s.state = slotTombstone
	t.length--
	t.version++

	if shrink {
		t.rebuildInto(slots, ar, "shrink")
	}

	t.lastErr = nil
	return nil
}

// Resize rebuilds the table into exactly capacity slots, dropping all
// tombstones. capacity must leave the live entries below the growth
// threshold.
func (t *Table) Resize(capacity int) error {
	if t == nil {
		return ErrNullArgument
	}
	if t.destroyed {
		return t.fail(ErrDestroyed)
	}
	if capacity < 1 || t.length*growDen >= capacity*growNum {
		return t.fail(fmt.Errorf("%w: %d slots for %d entries", ErrInvalidCapacity, capacity, t.length))
	}

	old := len(t.slots)
	slots, ar, err := t.allocate(capacity)
	if err != nil {
		t.logAllocFailure(old, capacity, err)
		return t.fail(err)
	}

	t.rebuildInto(slots, ar, "resize")

	t.lastErr = nil
	return nil
}

// Reserve makes room for items live entries without an implied growth. It
// never shrinks the table.
func (t *Table) Reserve(items int) error {
	if t == nil {
		return ErrNullArgument
	}
	if items < 0 {
		return t.fail(fmt.Errorf("%w: cannot reserve %d items", ErrInvalidCapacity, items))
	}

	if t.destroyed {
		return t.fail(ErrDestroyed)
	}
	if items <= math.MaxInt/growDen && items*growDen < len(t.slots)*growNum {
		t.lastErr = nil
		return nil
	}

	capacity := capacityFor(items)
	if capacity > t.cfg.maxCapacity {
		err := fmt.Errorf("%w: %d items need %d slots, limit is %d", ErrAllocationFailed, items, capacity, t.cfg.maxCapacity)
		t.logAllocFailure(len(t.slots), capacity, err)

		return t.fail(err)
	}

	return t.Resize(capacity)
}

// rebuildInto re-inserts every live entry, in order, into fresh buffers
// and makes them current. The old buffers are released afterwards.
func (t *Table) rebuildInto(slots []slot, ar arena, reason string) {
	var (
		oldSlots    = t.slots
		oldArena    = t.arena
		oldHead     = t.head
		oldCapacity = len(oldSlots)
	)

	t.slots = slots
	t.arena = ar
	t.head, t.tail = nilIndex, nilIndex
	t.length = 0

	for cur := oldHead; cur != nilIndex; cur = oldSlots[cur].next {
		s := &oldSlots[cur]
		key := oldArena.key(s.cell)
		t.insertAt(t.probe(key), key, oldArena.value(s.cell))
	}

	t.rebuilds++
	switch {
	case len(slots) > oldCapacity:
		t.grows++
	case len(slots) < oldCapacity:
		t.shrinks++
	}
	t.version++

	t.cfg.logger.LogAttrs(context.Background(), slog.LevelDebug, "table rebuilt",
		slog.String("reason", reason),
		slog.Int("old_capacity", oldCapacity),
		slog.Int("new_capacity", len(slots)),
		slog.Int("length", t.length),
	)
}

func (t *Table) logAllocFailure(capacity, requested int, err error) {
	t.cfg.logger.LogAttrs(context.Background(), slog.LevelWarn, "table rebuild failed",
		slog.Int("capacity", capacity),
		slog.Int("requested_capacity", requested),
		slog.Int("length", t.length),
		slog.Any("error", err),
	)
}

// Clear destroys every entry and keeps the current capacity.
func (t *Table) Clear() {
	if t == nil || t.destroyed {
		return
	}

	for cur := t.head; cur != nilIndex; cur = t.slots[cur].next {
		s := &t.slots[cur]
		if t.cfg.keyDtor != nil {
			t.cfg.keyDtor(t.arena.key(s.cell))
		}
		if t.cfg.valDtor != nil {
			t.cfg.valDtor(t.arena.value(s.cell))
		}
	}

	clear(t.slots)
	t.arena.reset()
	t.head, t.tail = nilIndex, nilIndex
	t.length = 0
	t.version++
	t.lastErr = nil
}

// Destroy clears the table and releases its buffers. Every later fallible
// call returns ErrDestroyed.
func (t *Table) Destroy() {
	if t == nil || t.destroyed {
		return
	}

	t.Clear()
	t.slots = nil
	t.arena = arena{}
	t.destroyed = true
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return t.length
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	if t == nil {
		return 0
	}

	return len(t.slots)
}

func (t *Table) KeySize() int   { return t.keySize }
func (t *Table) ValueSize() int { return t.valSize }
