package upload

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/lumensite/lumen/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyingReader(t *testing.T) {
	data := []byte("hello, chunked world")
	sum := utils.BytesSHA256(data)

	tests := []struct {
		name     string
		input    []byte
		want     int64
		checksum string
		wantErr  error
	}{
		{name: "exact", input: data, want: int64(len(data))},
		{name: "exact with checksum", input: data, want: int64(len(data)), checksum: sum},
		{name: "short", input: data[:5], want: int64(len(data)), wantErr: ErrSizeMismatch},
		{name: "long", input: append(bytes.Clone(data), '!'), want: int64(len(data)), wantErr: ErrSizeMismatch},
		{name: "bad checksum", input: data, want: int64(len(data)), checksum: utils.BytesSHA256([]byte("other")), wantErr: ErrChecksumMismatch},
		{name: "empty", input: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVerifyingReader(bytes.NewReader(tt.input), tt.want, tt.checksum, ErrSizeMismatch)
			out, err := io.ReadAll(v)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, v.Verify(), tt.wantErr)
				assert.ErrorIs(t, v.Failure(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, v.Verify())
			assert.NoError(t, v.Failure())
			assert.True(t, bytes.Equal(tt.input, out))
			assert.Equal(t, tt.want, v.Len())
			assert.Equal(t, utils.BytesSHA256(tt.input), v.Sum())
		})
	}
}

func TestVerifyingReader_NotFullyRead(t *testing.T) {
	v := newVerifyingReader(bytes.NewReader([]byte("abcdef")), 6, "", ErrChunkSizeMismatch)
	buf := make([]byte, 3)
	_, err := v.Read(buf)
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify(), ErrChunkSizeMismatch)
	assert.NoError(t, v.Failure())
}

func TestVerifyingReader_UnderlyingError(t *testing.T) {
	boom := errors.New("connection reset")
	v := newVerifyingReader(iotest.ErrReader(boom), 4, "", ErrChunkSizeMismatch)

	_, err := io.ReadAll(v)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, v.Verify(), boom)
	assert.NoError(t, v.Failure(), "transport errors are not verification failures")
}

func TestStorageErr(t *testing.T) {
	assert.ErrorIs(t, storageErr(ErrChecksumMismatch), ErrChecksumMismatch)
	assert.NotErrorIs(t, storageErr(ErrChecksumMismatch), ErrStorageWrite)
	assert.ErrorIs(t, storageErr(errors.New("disk full")), ErrStorageWrite)
}
