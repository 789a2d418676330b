package arenamap

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Codec converts a value of T to and from a fixed-width byte blob.
// Encode is handed a zeroed dst of exactly Size bytes.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T) error
	Decode(src []byte) T
}

type uint64Codec struct{}

func (uint64Codec) Size() int { return 8 }

func (uint64Codec) Encode(dst []byte, v uint64) error {
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

func (uint64Codec) Decode(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }

type int64Codec struct{}

func (int64Codec) Size() int { return 8 }

func (int64Codec) Encode(dst []byte, v int64) error {
	binary.LittleEndian.PutUint64(dst, uint64(v))
	return nil
}

func (int64Codec) Decode(src []byte) int64 { return int64(binary.LittleEndian.Uint64(src)) }

type uint32Codec struct{}

func (uint32Codec) Size() int { return 4 }

func (uint32Codec) Encode(dst []byte, v uint32) error {
	binary.LittleEndian.PutUint32(dst, v)
	return nil
}

func (uint32Codec) Decode(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

type int32Codec struct{}

func (int32Codec) Size() int { return 4 }

func (int32Codec) Encode(dst []byte, v int32) error {
	binary.LittleEndian.PutUint32(dst, uint32(v))
	return nil
}

func (int32Codec) Decode(src []byte) int32 { return int32(binary.LittleEndian.Uint32(src)) }

type emptyCodec struct{}

func (emptyCodec) Size() int                     { return 0 }
func (emptyCodec) Encode([]byte, struct{}) error { return nil }
func (emptyCodec) Decode([]byte) (v struct{})    { return v }

// Built-in little endian codecs.
var (
	Uint64Codec Codec[uint64] = uint64Codec{}
	Int64Codec  Codec[int64]  = int64Codec{}
	Uint32Codec Codec[uint32] = uint32Codec{}
	Int32Codec  Codec[int32]  = int32Codec{}
)

type stringCodec struct {
	size int
}

// StringCodec stores strings of at most size bytes, zero padded. Strings
// containing a NUL byte do not round trip.
func StringCodec(size int) Codec[string] {
	return stringCodec{size: size}
}

func (c stringCodec) Size() int { return c.size }

func (c stringCodec) Encode(dst []byte, v string) error {
	if len(v) > c.size {
		return &SizeMismatchError{Field: "string", Expected: c.size, Actual: len(v)}
	}

	copy(dst, v)
	return nil
}

func (c stringCodec) Decode(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}

	return string(src)
}

type binaryCodec[T any] struct {
	size int
}

// NewBinaryCodec returns a codec for any fixed-size type encoding/binary
// understands (numbers, bools, arrays and structs made of them).
func NewBinaryCodec[T any]() (Codec[T], error) {
	var zero T

	size := binary.Size(zero)
	if size <= 0 {
		return nil, fmt.Errorf("%w: %T has no fixed binary size", ErrInvalidSize, zero)
	}

	return binaryCodec[T]{size: size}, nil
}

func (c binaryCodec[T]) Size() int { return c.size }

func (c binaryCodec[T]) Encode(dst []byte, v T) error {
	_, err := binary.Encode(dst, binary.LittleEndian, v)
	return err
}

func (c binaryCodec[T]) Decode(src []byte) T {
	var v T
	_, _ = binary.Decode(src, binary.LittleEndian, &v)

	return v
}
