package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// verifyingReader passes through exactly want bytes and checks them at EOF.
// Short or long input fails with sizeErr; a digest that differs from checksum fails with ErrChecksumMismatch.
type verifyingReader struct {
	r        io.Reader
	want     int64
	n        int64
	checksum string
	sizeErr  error
	h        hash.Hash
	err      error
	done     bool
}

func newVerifyingReader(r io.Reader, want int64, checksum string, sizeErr error) *verifyingReader {
	return &verifyingReader{
		r:        r,
		want:     want,
		checksum: checksum,
		sizeErr:  sizeErr,
		h:        sha256.New(),
	}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}

	// one byte past the limit is enough to detect an oversized body
	if limit := v.want - v.n + 1; int64(len(p)) > limit {
		p = p[:limit]
	}

	n, err := v.r.Read(p)
	v.n += int64(n)
	v.h.Write(p[:n])

	if v.n > v.want {
		v.err = fmt.Errorf("%w: got more than %d bytes", v.sizeErr, v.want)
		return 0, v.err
	}

	if err == io.EOF {
		v.err = v.finish()
		if v.err == nil {
			v.err = io.EOF
		}
		return n, v.err
	}
	if err != nil {
		v.err = err
	}
	return n, err
}

func (v *verifyingReader) finish() error {
	if v.n != v.want {
		return fmt.Errorf("%w: got %d bytes, expected %d", v.sizeErr, v.n, v.want)
	}
	if v.checksum != "" && v.Sum() != v.checksum {
		return fmt.Errorf("%w: got %s, expected %s", ErrChecksumMismatch, v.Sum(), v.checksum)
	}
	v.done = true
	return nil
}

// Verify reports whether the full body was read and passed every check
func (v *verifyingReader) Verify() error {
	if v.done {
		return nil
	}
	if v.err != nil && v.err != io.EOF {
		return v.err
	}
	return fmt.Errorf("%w: body not fully read (%d of %d bytes)", v.sizeErr, v.n, v.want)
}

// Failure returns the size or checksum error seen while reading, if any
func (v *verifyingReader) Failure() error {
	if v.err != nil && (errors.Is(v.err, v.sizeErr) || errors.Is(v.err, ErrChecksumMismatch)) {
		return v.err
	}
	return nil
}

// Sum is the hex sha256 of the bytes read so far
func (v *verifyingReader) Sum() string {
	return hex.EncodeToString(v.h.Sum(nil))
}

// Len is the number of bytes read so far
func (v *verifyingReader) Len() int64 {
	return v.n
}
