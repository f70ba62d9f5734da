package seekgzip

import (
	"fmt"
	"os"

	"github.com/nekogz/seekgzip/capnslog"
)

var slog = capnslog.NewPackageLogger("github.com/nekogz/seekgzip", "session")

// Session is a thin, stateful collaborator in front of the Extractor: it
// owns the open compressed-file handle and the loaded index, and keeps
// a mutable uncompressed-offset cursor so callers can Seek/Tell/Read the
// way they would against any other file-like object. It is out of
// scope for the core random-access algorithm itself but is the surface
// most callers actually use.
type Session struct {
	file   *os.File
	idx    *Index
	offset uint64
	closed bool
}

// Open opens path for random-access reading. It expects the index
// previously built by Build at path+".idx".
func Open(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrOpen, path, err)
	}

	idxFile, err := os.Open(path + ".idx")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: opening %s.idx: %v", ErrOpen, path, err)
	}
	defer idxFile.Close()

	idx, err := ReadIndex(idxFile)
	if err != nil {
		f.Close()
		return nil, err
	}

	slog.Infof("opened %s: %d access points", path, idx.Len())
	return &Session{file: f, idx: idx}, nil
}

// Close releases the session's file handle. It is idempotent: calling
// Close more than once, or calling any other method after Close, never
// panics or blocks, and Seek/Tell/Read after Close behave as if the
// stream were empty.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Seek sets the cursor to offset. It does not validate offset against
// the stream's actual length; an out-of-range cursor simply yields 0
// bytes on the next Read.
func (s *Session) Seek(offset uint64) {
	s.offset = offset
}

// Tell returns the cursor's current position.
func (s *Session) Tell() uint64 {
	return s.offset
}

// Read delivers up to len(buf) bytes starting at the cursor and
// advances the cursor by the number of bytes actually delivered. After
// Close it always returns 0, nil.
func (s *Session) Read(buf []byte) (int, error) {
	if s.closed {
		return 0, nil
	}
	n, err := Extract(s.file, s.idx, s.offset, buf)
	if err != nil {
		return n, err
	}
	s.offset += uint64(n)
	return n, nil
}
