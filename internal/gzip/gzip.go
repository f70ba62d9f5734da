// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gzip implements reading of gzip format files, as specified in
// RFC 1952, on top of this module's internal/flate fork so that header
// parsing and raw DEFLATE decoding share the same exported decompressor
// state a random-access index needs.
package gzip

import (
	"bufio"
	"errors"
	"hash"
	"hash/crc32"
	"io"
	"time"

	"github.com/nekogz/seekgzip/internal/flate"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8
	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

func makeReader(r io.Reader) flate.Reader {
	if rr, ok := r.(flate.Reader); ok {
		return rr
	}
	return bufio.NewReader(r)
}

// countingReader wraps a flate.Reader and counts the bytes that pass
// through it. The flate.Decompressor's own Roffset only starts counting
// from the moment it is constructed, i.e. after the gzip header has
// already been consumed off the same underlying reader; a caller that
// needs a compressed-file-absolute byte offset (such as a builder
// recording an access point's In field) needs the header length added
// back in, which HeaderLen below supplies.
type countingReader struct {
	r flate.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

var (
	// ErrChecksum is returned when reading GZIP data that has an invalid checksum.
	ErrChecksum = errors.New("gzip: invalid checksum")
	// ErrHeader is returned when reading GZIP data that has an invalid header.
	ErrHeader = errors.New("gzip: invalid header")
)

// Header holds the metadata fields carried in a gzip member header.
type Header struct {
	Comment string
	Extra   []byte
	ModTime time.Time
	Name    string
	OS      byte
}

// Reader is an io.Reader that decodes a single gzip member and exposes its
// underlying flate.Decompressor, so that a caller walking the stream for
// checkpoints can read Decompressor state directly after the header has
// been consumed.
type Reader struct {
	Header
	R            *countingReader
	Decompressor *flate.Decompressor
	Digest       hash.Hash32
	Size         uint32
	// HeaderLen is the number of compressed-file bytes consumed by the
	// member's gzip header. The flate.Decompressor's own Roffset (and
	// thus InputOffset) counts only from the point the decompressor was
	// constructed, after the header was already read off the same
	// reader; a caller translating an in-stream offset to an absolute
	// compressed-file offset must add HeaderLen back in.
	HeaderLen   int64
	flg         byte
	buf         [512]byte
	Err         error
	multistream bool
}

// NewReader creates a new Reader reading the given reader. The caller is
// responsible for arranging that r starts exactly at a gzip member header;
// multistream concatenation is supported like the standard library's
// compress/gzip.
func NewReader(r io.Reader) (*Reader, error) {
	z := new(Reader)
	z.R = &countingReader{r: makeReader(r)}
	z.multistream = true
	z.Digest = crc32.NewIEEE()
	if err := z.readHeader(true); err != nil {
		return nil, err
	}
	z.HeaderLen = z.R.n
	return z, nil
}

// Multistream controls whether the reader supports multistream files.
func (z *Reader) Multistream(ok bool) {
	z.multistream = ok
}

func get4(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}

func (z *Reader) readString() (string, error) {
	var err error
	needconv := false
	for i := 0; ; i++ {
		if i >= len(z.buf) {
			return "", ErrHeader
		}
		z.buf[i], err = z.R.ReadByte()
		if err != nil {
			return "", err
		}
		if z.buf[i] > 0x7f {
			needconv = true
		}
		if z.buf[i] == 0 {
			if needconv {
				s := make([]rune, 0, i)
				for _, v := range z.buf[0:i] {
					s = append(s, rune(v))
				}
				return string(s), nil
			}
			return string(z.buf[0:i]), nil
		}
	}
}

func (z *Reader) read2() (uint32, error) {
	_, err := io.ReadFull(z.R, z.buf[0:2])
	if err != nil {
		return 0, err
	}
	return uint32(z.buf[0]) | uint32(z.buf[1])<<8, nil
}

func (z *Reader) readHeader(save bool) error {
	_, err := io.ReadFull(z.R, z.buf[0:10])
	if err != nil {
		return err
	}
	if z.buf[0] != gzipID1 || z.buf[1] != gzipID2 || z.buf[2] != gzipDeflate {
		return ErrHeader
	}
	z.flg = z.buf[3]
	if save {
		z.ModTime = time.Unix(int64(get4(z.buf[4:8])), 0)
		z.OS = z.buf[9]
	}
	z.Digest.Reset()
	z.Digest.Write(z.buf[0:10])

	if z.flg&flagExtra != 0 {
		n, err := z.read2()
		if err != nil {
			return err
		}
		data := make([]byte, n)
		if _, err = io.ReadFull(z.R, data); err != nil {
			return err
		}
		if save {
			z.Extra = data
		}
	}

	var s string
	if z.flg&flagName != 0 {
		if s, err = z.readString(); err != nil {
			return err
		}
		if save {
			z.Name = s
		}
	}

	if z.flg&flagComment != 0 {
		if s, err = z.readString(); err != nil {
			return err
		}
		if save {
			z.Comment = s
		}
	}

	if z.flg&flagHdrCrc != 0 {
		n, err := z.read2()
		if err != nil {
			return err
		}
		sum := z.Digest.Sum32() & 0xFFFF
		if n != sum {
			return ErrHeader
		}
	}

	z.Digest.Reset()
	if z.Decompressor == nil {
		z.Decompressor = flate.NewReader(z.R)
	} else {
		z.Decompressor.Reset(z.R, nil)
	}
	return nil
}

func (z *Reader) Read(p []byte) (n int, err error) {
	if z.Err != nil {
		return 0, z.Err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err = z.Decompressor.Read(p)
	z.Digest.Write(p[0:n])
	z.Size += uint32(n)
	if n != 0 || err != io.EOF {
		z.Err = err
		return
	}

	if _, err := io.ReadFull(z.R, z.buf[0:8]); err != nil {
		z.Err = err
		return 0, err
	}
	crc, isize := get4(z.buf[0:4]), get4(z.buf[4:8])
	sum := z.Digest.Sum32()
	if sum != crc || isize != z.Size {
		z.Err = ErrChecksum
		return 0, z.Err
	}

	if !z.multistream {
		return 0, io.EOF
	}

	if err = z.readHeader(false); err != nil {
		z.Err = err
		return
	}

	z.Digest.Reset()
	z.Size = 0
	return z.Read(p)
}

// Close closes the Reader. It does not close the underlying io.Reader.
func (z *Reader) Close() error { return z.Decompressor.Close() }

// ObserveBlock feeds b, a chunk of uncompressed output obtained by
// driving z.Decompressor directly (e.g. via ReadBlock, to watch for
// block boundaries), into the running trailer checksum. Callers that
// bypass Read to get block-boundary visibility must call this for
// every chunk they read so VerifyTrailer has an accurate digest.
func (z *Reader) ObserveBlock(b []byte) {
	z.Digest.Write(b)
	z.Size += uint32(len(b))
}

// VerifyTrailer reads the 8-byte gzip trailer (CRC32 then ISIZE) that
// follows the final deflate block and checks it against the bytes
// observed so far via Read and/or ObserveBlock. Call it once the
// decompressor has reported end of stream. It returns ErrChecksum on
// mismatch, or the underlying read error if the trailer is truncated.
func (z *Reader) VerifyTrailer() error {
	if _, err := io.ReadFull(z.R, z.buf[0:8]); err != nil {
		return err
	}
	crc, isize := get4(z.buf[0:4]), get4(z.buf[4:8])
	if z.Digest.Sum32() != crc || isize != z.Size {
		return ErrChecksum
	}
	return nil
}
