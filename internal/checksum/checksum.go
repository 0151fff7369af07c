// Package checksum implements the 16-bit one's-complement checksum used to
// fingerprint watched files (the Internet checksum family, RFC 1071).
//
// Words are read big-endian. A trailing odd byte is treated as the high byte
// of a word whose low byte is zero. The digest is streaming: feeding the same
// byte sequence in any chunking yields the same sum.
package checksum

import (
	"fmt"
	"hash"
	"io"
	"os"
)

// Size is the size of a checksum in bytes.
const Size = 2

// DefaultBufferSize is the read buffer used by File when none is given.
const DefaultBufferSize = 64 * 1024

// Digest accumulates a running one's-complement sum.
type Digest struct {
	sum     uint32
	odd     bool
	oddByte byte
	n       int64
}

var _ hash.Hash = (*Digest)(nil)

// New returns an empty digest. Its Sum16 is 0xFFFF until data is written.
func New() *Digest {
	return &Digest{}
}

// Write adds p to the running sum. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	n := len(p)
	d.n += int64(n)

	if d.odd && len(p) > 0 {
		d.add(uint32(d.oddByte)<<8 | uint32(p[0]))
		d.odd = false
		p = p[1:]
	}
	for len(p) >= 2 {
		d.add(uint32(p[0])<<8 | uint32(p[1]))
		p = p[2:]
	}
	if len(p) == 1 {
		d.oddByte = p[0]
		d.odd = true
	}
	return n, nil
}

// add folds carries beyond bit 15 back into the low word after every addition.
func (d *Digest) add(word uint32) {
	d.sum += word
	for d.sum>>16 != 0 {
		d.sum = d.sum&0xFFFF + d.sum>>16
	}
}

// Sum16 returns the checksum of everything written so far without
// changing the digest state.
func (d *Digest) Sum16() uint16 {
	sum := d.sum
	if d.odd {
		sum += uint32(d.oddByte) << 8
		for sum>>16 != 0 {
			sum = sum&0xFFFF + sum>>16
		}
	}
	return ^uint16(sum)
}

// Sum appends the big-endian checksum to b.
func (d *Digest) Sum(b []byte) []byte {
	s := d.Sum16()
	return append(b, byte(s>>8), byte(s))
}

// Len returns the number of bytes written.
func (d *Digest) Len() int64 { return d.n }

// Reset clears the digest.
func (d *Digest) Reset() { *d = Digest{} }

// Size returns Size.
func (d *Digest) Size() int { return Size }

// BlockSize returns the word size.
func (d *Digest) BlockSize() int { return 2 }

// Reader checksums r using a buffer of bufSize bytes, so memory use does
// not depend on the length of the stream. It returns the checksum and the
// number of bytes consumed.
func Reader(r io.Reader, bufSize int) (uint16, int64, error) {
	if bufSize < 2 {
		bufSize = DefaultBufferSize
	}
	d := New()
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = d.Write(buf[:n])
		}
		if err == io.EOF {
			return d.Sum16(), d.Len(), nil
		}
		if err != nil {
			return 0, d.Len(), err
		}
	}
}

// File checksums the file at path.
func File(path string, bufSize int) (uint16, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	sum, n, err := Reader(f, bufSize)
	if err != nil {
		return 0, n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return sum, n, nil
}
