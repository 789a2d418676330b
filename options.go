package arenamap

import (
	"fmt"
	"log/slog"
	"math"
)

const (
	// BaseCapacity is the initial number of slots and the floor for shrinking.
	BaseCapacity = 16

	// Load factor thresholds expressed as fractions to stay in integer math.
	growNum, growDen     = 3, 5  // 0.6
	shrinkNum, shrinkDen = 1, 10 // 0.1
)

// Allocator returns a zeroed buffer of exactly size bytes or an error.
type Allocator func(size int) ([]byte, error)

type config struct {
	seed        uint32
	hasher      Hasher
	comparator  Comparator
	keyDtor     Destructor
	valDtor     Destructor
	capacity    int
	maxCapacity int
	alloc       Allocator
	logger      *slog.Logger
}

type Option func(c *config)

// WithSeed sets the seed handed to the hasher.
func WithSeed(seed uint32) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// Override default hash function.
func WithHasher(h Hasher) Option {
	return func(c *config) {
		c.hasher = h
	}
}

// Override default byte-wise key equality.
func WithComparator(cmp Comparator) Option {
	return func(c *config) {
		c.comparator = cmp
	}
}

func WithKeyDestructor(d Destructor) Option {
	return func(c *config) {
		c.keyDtor = d
	}
}

func WithValueDestructor(d Destructor) Option {
	return func(c *config) {
		c.valDtor = d
	}
}

// WithCapacity sets the initial number of slots. Values below 1 are ignored.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithMaxCapacity caps the number of slots any rebuild may allocate. Growing
// past it fails with ErrAllocationFailed.
func WithMaxCapacity(capacity int) Option {
	return func(c *config) {
		c.maxCapacity = capacity
	}
}

// WithAllocator replaces the arena allocator.
func WithAllocator(a Allocator) Option {
	return func(c *config) {
		c.alloc = a
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func newConfig(opts []Option) config {
	c := config{
		capacity:    BaseCapacity,
		maxCapacity: math.MaxInt32,
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.hasher == nil {
		c.hasher = MurmurHasher
	}
	if c.comparator == nil {
		c.comparator = defaultComparator
	}
	if c.alloc == nil {
		c.alloc = makeAllocator
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.maxCapacity <= 0 || c.maxCapacity > math.MaxInt32 {
		c.maxCapacity = math.MaxInt32
	}

	return c
}

// makeAllocator is the default Allocator. A runtime panic from make (length
// out of range, size overflow) is reported as ErrAllocationFailed.
func makeAllocator(size int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %v", ErrAllocationFailed, r)
		}
	}()

	return make([]byte, size), nil
}
