package seekgzip

import (
	"fmt"
	"io"

	"github.com/nekogz/seekgzip/internal/flate"
)

// Extract delivers up to len(buf) bytes of uncompressed data, starting
// at the uncompressed offset, from the compressed stream accessible
// through at, using idx to locate the nearest preceding access point.
//
// It returns the number of bytes written, 0 <= n <= len(buf). A
// returned n less than len(buf) with a nil error means end-of-stream,
// not failure; a returned n of 0 with a nil error means offset is at
// or past the end of the stream, or precedes the index's first point.
//
// Extract issues its own seeks and reads against at and leaves its
// position unspecified afterward; at is not safe to share across
// concurrent calls.
func Extract(at io.ReadSeeker, idx *Index, offset uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	point, ok := idx.Lookup(offset)
	if !ok {
		return 0, nil
	}

	seekTo := int64(point.In)
	if point.Bits != 0 {
		seekTo--
	}
	if _, err := at.Seek(seekTo, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: seeking to access point: %v", ErrIO, err)
	}

	f := flate.NewReaderDict(at, point.Window[:])
	if point.Bits != 0 {
		var b [1]byte
		if _, err := io.ReadFull(at, b[:]); err != nil {
			return 0, fmt.Errorf("%w: reading priming byte: %v", ErrIO, err)
		}
		f.Prime(int(point.Bits), uint32(b[0])>>(8-point.Bits))
	}

	remainingSkip := offset - point.Out
	var scratch [WinSize]byte
	for remainingSkip > 0 {
		n := remainingSkip
		if n > WinSize {
			n = WinSize
		}
		read, err := io.ReadFull(f, scratch[:n])
		remainingSkip -= uint64(read)
		if err != nil {
			if (err == io.EOF || err == io.ErrUnexpectedEOF) && f.Err == io.EOF {
				return 0, nil
			}
			return 0, classifyFlateError(err)
		}
	}

	n, err := io.ReadFull(f, buf)
	if err != nil {
		if (err == io.EOF || err == io.ErrUnexpectedEOF) && f.Err == io.EOF {
			return n, nil
		}
		return n, classifyFlateError(err)
	}
	return n, nil
}
