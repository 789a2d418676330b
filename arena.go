package arenamap

import (
	"fmt"
	"math"
)

// arena is a single allocation holding every key contiguously, followed by
// every value contiguously. Cells are handed out in order and only reclaimed
// by rebuilding into a fresh arena.
type arena struct {
	buf []byte

	keySize int
	valSize int
	cells   int

	// Number of cells handed out since the arena was created.
	mapped int
}

func newArena(alloc Allocator, cells, keySize, valSize int) (arena, error) {
	width := keySize + valSize
	if cells < 0 || (width > 0 && cells > math.MaxInt/width) {
		return arena{}, fmt.Errorf("%w: arena of %d cells of %d bytes overflows", ErrAllocationFailed, cells, width)
	}

	buf, err := alloc(cells * width)
	if err != nil {
		return arena{}, fmt.Errorf("%w: arena: %w", ErrAllocationFailed, err)
	}
	if len(buf) != cells*width {
		return arena{}, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrAllocationFailed, len(buf), cells*width)
	}

	return arena{
		buf:     buf,
		keySize: keySize,
		valSize: valSize,
		cells:   cells,
	}, nil
}

// alloc claims the next unused cell.
func (a *arena) alloc() int32 {
	cell := a.mapped
	a.mapped++

	return int32(cell)
}

func (a *arena) key(cell int32) []byte {
	off := int(cell) * a.keySize
	return a.buf[off : off+a.keySize : off+a.keySize]
}

func (a *arena) value(cell int32) []byte {
	off := a.cells*a.keySize + int(cell)*a.valSize
	return a.buf[off : off+a.valSize : off+a.valSize]
}

func (a *arena) reset() {
	clear(a.buf)
	a.mapped = 0
}
