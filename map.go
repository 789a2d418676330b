package arenamap

import (
	"errors"
	"iter"
)

// Map is a typed view over a Table. Keys and values are encoded with their
// codecs into the table's fixed-width blobs; iteration follows insertion
// order.
type Map[K, V any] struct {
	t  *Table
	kc Codec[K]
	vc Codec[V]

	kbuf []byte
	vbuf []byte
}

// Returns a new instance of the map.
func NewMap[K, V any](kc Codec[K], vc Codec[V], opts ...Option) (*Map[K, V], error) {
	t, err := New(kc.Size(), vc.Size(), opts...)
	if err != nil {
		return nil, err
	}

	return &Map[K, V]{
		t:    t,
		kc:   kc,
		vc:   vc,
		kbuf: make([]byte, kc.Size()),
		vbuf: make([]byte, vc.Size()),
	}, nil
}

func (m *Map[K, V]) encodeKey(key K) ([]byte, error) {
	clear(m.kbuf)
	if err := m.kc.Encode(m.kbuf, key); err != nil {
		return nil, err
	}

	return m.kbuf, nil
}

// Puts a key in the map or overwrites its value.
func (m *Map[K, V]) Set(key K, value V) error {
	k, err := m.encodeKey(key)
	if err != nil {
		return err
	}

	clear(m.vbuf)
	if err := m.vc.Encode(m.vbuf, value); err != nil {
		return err
	}

	return m.t.Set(k, m.vbuf)
}

// Returns the value stored for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V

	k, err := m.encodeKey(key)
	if err != nil {
		return zero, false
	}

	v, err := m.t.Get(k)
	if err != nil {
		return zero, false
	}

	return m.vc.Decode(v), true
}

func (m *Map[K, V]) Has(key K) bool {
	k, err := m.encodeKey(key)
	if err != nil {
		return false
	}

	return m.t.Has(k)
}

// Deletes a key from the map and reports whether it was present. An absent
// key is not an error; a key that fails to encode or a shrink that cannot
// allocate is.
func (m *Map[K, V]) Delete(key K) (bool, error) {
	k, err := m.encodeKey(key)
	if err != nil {
		return false, err
	}

	return removed(m.t.Remove(k))
}

func removed(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (m *Map[K, V]) Len() int { return m.t.Len() }

// All yields the entries in insertion order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, v := range m.t.All() {
			if !yield(m.kc.Decode(k), m.vc.Decode(v)) {
				return
			}
		}
	}
}

func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.t.Keys() {
			if !yield(m.kc.Decode(k)) {
				return
			}
		}
	}
}

func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for v := range m.t.Values() {
			if !yield(m.vc.Decode(v)) {
				return
			}
		}
	}
}

func (m *Map[K, V]) Resize(capacity int) error { return m.t.Resize(capacity) }
func (m *Map[K, V]) Reserve(items int) error   { return m.t.Reserve(items) }
func (m *Map[K, V]) Clear()                    { m.t.Clear() }
func (m *Map[K, V]) Destroy()                  { m.t.Destroy() }
func (m *Map[K, V]) Stats() Stats              { return m.t.Stats() }

// Table returns the underlying byte table.
func (m *Map[K, V]) Table() *Table { return m.t }
