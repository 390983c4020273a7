package chunkplan

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultChunkSize is the chunk size agreed between client and server unless negotiated otherwise.
const DefaultChunkSize = int64(5 << 20) // 5 MiB

var ErrInvalidInput = errors.New("chunkplan: invalid input")

// Range is a contiguous byte range of a file.
type Range struct {
	Index  uint32
	Offset int64
	Length int64
}

// End returns the exclusive end offset of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Plan splits a file of Size bytes into fixed-size chunks.
type Plan struct {
	Size        int64
	ChunkSize   int64
	TotalChunks uint32
}

// New returns the plan for a file of the given size.
func New(size, chunkSize int64) (*Plan, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidInput, size)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, chunkSize)
	}
	return &Plan{
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: Count(size, chunkSize),
	}, nil
}

// Range returns the byte range of chunk index.
func (p *Plan) Range(index uint32) (Range, error) {
	if index >= p.TotalChunks {
		return Range{}, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidInput, index, p.TotalChunks)
	}
	return Range{
		Index:  index,
		Offset: int64(index) * p.ChunkSize,
		Length: LengthAt(p.Size, p.ChunkSize, index),
	}, nil
}

// Chunks yields every range of the plan in index order.
// The sequence can be ranged over any number of times.
func (p *Plan) Chunks() iter.Seq[Range] {
	return func(yield func(Range) bool) {
		for i := uint32(0); i < p.TotalChunks; i++ {
			r := Range{
				Index:  i,
				Offset: int64(i) * p.ChunkSize,
				Length: LengthAt(p.Size, p.ChunkSize, i),
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Section returns a reader over chunk index of r.
func (p *Plan) Section(r io.ReaderAt, index uint32) (*io.SectionReader, error) {
	rng, err := p.Range(index)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(r, rng.Offset, rng.Length), nil
}

// Count returns ceil(size/chunkSize). Zero for an empty file or a non-positive chunk size.
func Count(size, chunkSize int64) uint32 {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return uint32(n)
}

// LengthAt returns the length of chunk index, or 0 when index lies past the end of the file.
func LengthAt(size, chunkSize int64, index uint32) int64 {
	if chunkSize <= 0 {
		return 0
	}
	offset := int64(index) * chunkSize
	if offset >= size {
		return 0
	}
	return min(chunkSize, size-offset)
}
