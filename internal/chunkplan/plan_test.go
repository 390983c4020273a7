package chunkplan

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidSizes(t *testing.T) {
	_, err := New(0, DefaultChunkSize)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(-1, DefaultChunkSize)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlan_TwelveMiBInFiveMiBChunks(t *testing.T) {
	p, err := New(12<<20, 5<<20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.TotalChunks)

	var ranges []Range
	for r := range p.Chunks() {
		ranges = append(ranges, r)
	}
	require.Len(t, ranges, 3)
	assert.Equal(t, Range{Index: 0, Offset: 0, Length: 5 << 20}, ranges[0])
	assert.Equal(t, Range{Index: 1, Offset: 5 << 20, Length: 5 << 20}, ranges[1])
	assert.Equal(t, Range{Index: 2, Offset: 10 << 20, Length: 2 << 20}, ranges[2])
}

func TestPlan_PartitionsWithoutGaps(t *testing.T) {
	sizes := []int64{1, 2, 7, 10, 11, 99, 100, 101, 4096, 5<<20 - 1, 5 << 20, 5<<20 + 1}
	chunkSizes := []int64{1, 3, 10, 100, 1 << 20, 5 << 20}

	for _, size := range sizes {
		for _, cs := range chunkSizes {
			p, err := New(size, cs)
			require.NoError(t, err)

			want := (size + cs - 1) / cs
			assert.EqualValues(t, want, p.TotalChunks, "size=%d chunk=%d", size, cs)

			var next int64
			var count uint32
			var last Range
			for r := range p.Chunks() {
				assert.Equal(t, count, r.Index)
				assert.Equal(t, next, r.Offset, "gap or overlap at index %d", r.Index)
				assert.Positive(t, r.Length)
				assert.LessOrEqual(t, r.Length, cs)
				next = r.End()
				count++
				last = r
			}
			assert.Equal(t, size, next)
			assert.Equal(t, p.TotalChunks, count)
			assert.Equal(t, size-int64(p.TotalChunks-1)*cs, last.Length)
		}
	}
}

func TestPlan_ChunksIsRestartable(t *testing.T) {
	p, err := New(25, 10)
	require.NoError(t, err)

	collect := func() []Range {
		var out []Range
		for r := range p.Chunks() {
			out = append(out, r)
		}
		return out
	}
	assert.Equal(t, collect(), collect())

	// early break stops the sequence
	var seen int
	for range p.Chunks() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestPlan_Range(t *testing.T) {
	p, err := New(25, 10)
	require.NoError(t, err)

	r, err := p.Range(2)
	require.NoError(t, err)
	assert.Equal(t, Range{Index: 2, Offset: 20, Length: 5}, r)

	_, err = p.Range(3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlan_Section(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxy")
	p, err := New(int64(len(data)), 10)
	require.NoError(t, err)

	var out bytes.Buffer
	for r := range p.Chunks() {
		sec, err := p.Section(bytes.NewReader(data), r.Index)
		require.NoError(t, err)
		_, err = io.Copy(&out, sec)
		require.NoError(t, err)
	}
	assert.Equal(t, data, out.Bytes())
}

func TestCountAndLengthAt(t *testing.T) {
	assert.EqualValues(t, 0, Count(0, 10))
	assert.EqualValues(t, 1, Count(10, 10))
	assert.EqualValues(t, 2, Count(11, 10))
	assert.EqualValues(t, 0, Count(10, 0))

	assert.EqualValues(t, 10, LengthAt(25, 10, 0))
	assert.EqualValues(t, 5, LengthAt(25, 10, 2))
	assert.EqualValues(t, 0, LengthAt(25, 10, 3))
}
