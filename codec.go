package seekgzip

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies the portable little-endian index format. The legacy
// host-order format ("ZSEK") is recognized only long enough to be
// rejected: host byte order is not recoverable from the file's bytes
// alone, so this codec never attempts to actually parse it.
var (
	magic       = [4]byte{'Z', 'S', 'K', '1'}
	legacyMagic = [4]byte{'Z', 'S', 'E', 'K'}
)

// offsize is the width, in bytes, of the on-disk Out/In fields. It is
// always written as 8 and is carried as its own field (rather than
// implied by the magic alone) so a future narrower variant has
// somewhere to signal itself without a new magic.
const offsize = 8

// WriteIndex serializes idx in the portable ZSK1 layout and writes the
// result, itself gzip-compressed, to w.
func WriteIndex(w io.Writer, idx *Index) error {
	gw := gzip.NewWriter(w)
	bw := bufio.NewWriter(gw)

	var hdr [12]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], offsize)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(idx.Len()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: writing index header: %v", ErrIO, err)
	}

	var rec [offsize*2 + 1]byte
	for i := 0; i < idx.Len(); i++ {
		p := idx.At(i)
		binary.LittleEndian.PutUint64(rec[0:8], p.Out)
		binary.LittleEndian.PutUint64(rec[8:16], p.In)
		rec[16] = p.Bits
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("%w: writing access point: %v", ErrIO, err)
		}
		if _, err := bw.Write(p.Window[:]); err != nil {
			return fmt.Errorf("%w: writing access point window: %v", ErrIO, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: flushing index: %v", ErrIO, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("%w: closing index writer: %v", ErrIO, err)
	}
	return nil
}

// ReadIndex reads and validates an index previously written by
// WriteIndex. A magic mismatch, including the legacy host-order "ZSEK"
// magic, a header cut short before its 12 bytes, or an unexpected
// offsize, fails with ErrIncompatible.
func ReadIndex(r io.Reader) (*Index, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index: %v", ErrIO, err)
	}
	defer gr.Close()
	br := bufio.NewReader(gr)

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: index header truncated", ErrIncompatible)
		}
		return nil, fmt.Errorf("%w: reading index header: %v", ErrIO, err)
	}
	var gotMagic [4]byte
	copy(gotMagic[:], hdr[0:4])
	if gotMagic == legacyMagic {
		return nil, fmt.Errorf("%w: legacy host-order index format is not portably readable", ErrIncompatible)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIncompatible, gotMagic)
	}
	gotOffsize := binary.LittleEndian.Uint32(hdr[4:8])
	if gotOffsize != offsize {
		return nil, fmt.Errorf("%w: offset width %d unsupported", ErrIncompatible, gotOffsize)
	}
	count := binary.LittleEndian.Uint32(hdr[8:12])

	idx := &Index{}
	var rec [offsize*2 + 1]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: reading access point %d: %v", ErrData, i, err)
		}
		var p AccessPoint
		p.Out = binary.LittleEndian.Uint64(rec[0:8])
		p.In = binary.LittleEndian.Uint64(rec[8:16])
		p.Bits = rec[16]
		if _, err := io.ReadFull(br, p.Window[:]); err != nil {
			return nil, fmt.Errorf("%w: reading access point %d window: %v", ErrData, i, err)
		}
		idx.Append(p)
	}
	idx.Shrink()
	return idx, nil
}
