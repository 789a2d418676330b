package arenamap

type Stats struct {
	Size       int
	Capacity   int
	Mapped     int
	Tombstones int

	LoadFactor              float32
	TombstonesCapacityRatio float32
	TombstonesSizeRatio     float32

	Grows    uint64
	Shrinks  uint64
	Rebuilds uint64
}

// Stats returns a snapshot of the table's occupancy and rebuild counters.
func (t *Table) Stats() Stats {
	if t == nil {
		return Stats{}
	}

	s := Stats{
		Size:       t.length,
		Capacity:   len(t.slots),
		Mapped:     t.arena.mapped,
		Tombstones: t.arena.mapped - t.length,
		Grows:      t.grows,
		Shrinks:    t.shrinks,
		Rebuilds:   t.rebuilds,
	}

	if s.Capacity > 0 {
		s.LoadFactor = float32(s.Mapped) / float32(s.Capacity)
		s.TombstonesCapacityRatio = float32(s.Tombstones) / float32(s.Capacity)
	}
	if s.Size > 0 {
		s.TombstonesSizeRatio = float32(s.Tombstones) / float32(s.Size)
	}

	return s
}
