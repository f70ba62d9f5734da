package seekgzip

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/nekogz/seekgzip/capnslog"
	"github.com/nekogz/seekgzip/internal/flate"
	igzip "github.com/nekogz/seekgzip/internal/gzip"
)

var blog = capnslog.NewPackageLogger("github.com/nekogz/seekgzip", "builder")

// Build reads path, builds its index, and writes it to path+".idx",
// overwriting any existing index file.
func Build(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrOpen, path, err)
	}
	defer f.Close()

	idx, err := BuildIndex(bufio.NewReader(f))
	if err != nil {
		return err
	}

	out, err := os.Create(path + ".idx")
	if err != nil {
		return fmt.Errorf("%w: creating %s.idx: %v", ErrOpen, path, err)
	}
	if err := WriteIndex(out, idx); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing %s.idx: %v", ErrIO, path, err)
	}
	return nil
}

// BuildIndex walks r, a single gzip-framed member, start to finish and
// returns an index of access points spaced roughly every Span
// uncompressed bytes at DEFLATE block boundaries. r need not be
// seekable; it is consumed exactly once, forward.
//
// Only the first gzip member of a concatenated stream is indexed; any
// data after its trailer is ignored, matching the single-member
// scope this package covers.
func BuildIndex(r io.Reader) (*Index, error) {
	gz, err := igzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading gzip header: %v", ErrData, err)
	}

	idx := &Index{}
	f := gz.Decompressor
	var last uint64
	first := true

	for {
		if f.AtBlockBoundary() && !f.LastBlock() {
			totout := uint64(f.Woffset)
			if first || totout-last >= Span {
				var p AccessPoint
				p.Out = totout
				// InputOffset is relative to the first byte after the
				// gzip header (where the flate.Decompressor's own
				// Roffset starts counting from); add the header length
				// back in so In is an absolute compressed-file offset,
				// matching what Extract seeks the raw file handle to.
				p.In = uint64(f.InputOffset()) + uint64(gz.HeaderLen)
				p.Bits = uint8(f.PendingBits())
				f.Window(p.Window[:])
				idx.Append(p)
				last = totout
				first = false
			}
		}

		b, err := f.ReadBlock()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, classifyFlateError(err)
		}
		gz.ObserveBlock(b)
	}

	if err := gz.VerifyTrailer(); err != nil {
		if err == igzip.ErrChecksum {
			return nil, fmt.Errorf("%w: %v", ErrData, err)
		}
		return nil, fmt.Errorf("%w: reading gzip trailer: %v", ErrIO, err)
	}

	idx.Shrink()
	blog.Infof("built index: %d access points over %d uncompressed bytes", idx.Len(), f.Woffset)
	return idx, nil
}

// classifyFlateError maps an error surfaced by the DEFLATE engine onto
// this package's error taxonomy. A short read with no EOF marker is
// truncation, reported as ErrData per the core design's edge policy;
// anything else from the underlying reader is ErrIO.
func classifyFlateError(err error) error {
	if err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: truncated deflate stream: %v", ErrData, err)
	}
	switch e := err.(type) {
	case *flate.ReadError:
		if e.Err == io.EOF || e.Err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated deflate stream: %v", ErrData, err)
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	case flate.InternalError:
		return fmt.Errorf("%w: %v", ErrZlib, err)
	default:
		return fmt.Errorf("%w: %v", ErrData, err)
	}
}
