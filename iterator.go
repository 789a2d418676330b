package arenamap

import "iter"

// Iterator is a cursor over the live entries of a table in insertion order.
//
// Any structural change of the table (insert, remove, rebuild, clear) after
// the cursor was acquired stops it; Err then reports ErrIteratorInvalidated.
// Overwriting the value of an existing key does not invalidate it.
type Iterator struct {
	t       *Table
	next    int32
	version uint64

	key []byte
	val []byte
	err error
}

// Iter returns a fresh cursor positioned before the first entry.
func (t *Table) Iter() *Iterator {
	if t == nil {
		return &Iterator{next: nilIndex, err: ErrNullArgument}
	}

	return &Iterator{
		t:       t,
		next:    t.head,
		version: t.version,
	}
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.err != nil || it.t == nil {
		return false
	}
	if it.t.version != it.version {
		it.err = ErrIteratorInvalidated
		it.key, it.val = nil, nil

		return false
	}
	if it.next == nilIndex {
		it.key, it.val = nil, nil
		return false
	}

	s := &it.t.slots[it.next]
	it.key = it.t.arena.key(s.cell)
	it.val = it.t.arena.value(s.cell)
	it.next = s.next

	return true
}

// Key returns the key of the current entry. It aliases the arena.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the value of the current entry. It aliases the arena.
func (it *Iterator) Value() []byte { return it.val }

func (it *Iterator) Err() error { return it.err }

// All yields every live entry in insertion order. Mutating the table from
// inside the loop ends the sequence early; use Iter to detect that.
func (t *Table) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		it := t.Iter()
		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}

func (t *Table) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for k := range t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

func (t *Table) Values() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, v := range t.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Scan calls fn for each entry in insertion order until fn returns false.
// It fails with ErrEmpty on a table without entries.
func (t *Table) Scan(fn func(key, val []byte) bool) error {
	if t == nil || fn == nil {
		return ErrNullArgument
	}
	if t.destroyed {
		return t.fail(ErrDestroyed)
	}
	if t.length == 0 {
		return t.fail(ErrEmpty)
	}

	t.lastErr = nil
	for k, v := range t.All() {
		if !fn(k, v) {
			break
		}
	}

	return nil
}

// Head returns the oldest live entry.
func (t *Table) Head() (key, val []byte, err error) {
	return t.endpoint(true)
}

// Tail returns the most recently inserted live entry.
func (t *Table) Tail() (key, val []byte, err error) {
	return t.endpoint(false)
}

func (t *Table) endpoint(head bool) ([]byte, []byte, error) {
	if t == nil {
		return nil, nil, ErrNullArgument
	}
	if t.destroyed {
		return nil, nil, t.fail(ErrDestroyed)
	}
	if t.length == 0 {
		return nil, nil, t.fail(ErrEmpty)
	}

	idx := t.tail
	if head {
		idx = t.head
	}
	s := &t.slots[idx]

	t.lastErr = nil
	return t.arena.key(s.cell), t.arena.value(s.cell), nil
}
