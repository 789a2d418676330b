package arenamap

import "iter"

// Set is a typed set of keys backed by a Table without a value region.
// Iteration follows insertion order.
type Set[K any] struct {
	t    *Table
	kc   Codec[K]
	kbuf []byte
}

func NewSet[K any](kc Codec[K], opts ...Option) (*Set[K], error) {
	t, err := New(kc.Size(), emptyCodec{}.Size(), opts...)
	if err != nil {
		return nil, err
	}

	return &Set[K]{
		t:    t,
		kc:   kc,
		kbuf: make([]byte, kc.Size()),
	}, nil
}

func (s *Set[K]) encode(key K) ([]byte, error) {
	clear(s.kbuf)
	if err := s.kc.Encode(s.kbuf, key); err != nil {
		return nil, err
	}

	return s.kbuf, nil
}

// Puts a key in the set. Returns whether the key is new.
func (s *Set[K]) Add(key K) (bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return false, err
	}

	return s.t.set(k, []byte{})
}

func (s *Set[K]) Has(key K) bool {
	k, err := s.encode(key)
	if err != nil {
		return false
	}

	return s.t.Has(k)
}

// Deletes a key from the set, see Map.Delete.
func (s *Set[K]) Delete(key K) (bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return false, err
	}

	return removed(s.t.Remove(k))
}

func (s *Set[K]) Len() int { return s.t.Len() }

func (s *Set[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range s.t.Keys() {
			if !yield(s.kc.Decode(k)) {
				return
			}
		}
	}
}

func (s *Set[K]) Reserve(items int) error { return s.t.Reserve(items) }
func (s *Set[K]) Clear()                  { s.t.Clear() }
func (s *Set[K]) Stats() Stats            { return s.t.Stats() }
