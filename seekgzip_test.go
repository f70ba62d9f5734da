package seekgzip

import (
	"bytes"
	"errors"
	"os"
	"testing"
)

// TestTinyPayload covers the literal scenario from the core design: an
// 11-byte payload compresses to one data block (followed by the empty
// final block compress/gzip always writes), so the index's only access
// point sits right after the gzip header, at Out=0.
func TestTinyPayload(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "hello.gz", []byte("hello world"))

	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	sess.Seek(6)
	buf := make([]byte, 5)
	n, err := sess.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("Read(6,5) = %q, want %q", buf[:n], "world")
	}
}

// TestSpanStraddling builds a payload larger than Span so the index
// gains more than one access point, then confirms a read at 2,000,000
// returns the right bytes. The periodic payload compresses into a single
// data block, so the second point sits at that block's end, just before
// the empty final block, and the read is served from the first point.
func TestSpanStraddling(t *testing.T) {
	const size = 3 * 1024 * 1024 // 3 MiB, i.e. 3,145,728 bytes
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	dir := t.TempDir()
	path := writeGzipFile(t, dir, "big.gz", data)

	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	idxFile, err := os.Open(path + ".idx")
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	idx, err := ReadIndex(idxFile)
	idxFile.Close()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if idx.Len() < 2 {
		t.Fatalf("expected at least 2 access points for a %d-byte payload, got %d", size, idx.Len())
	}
	for i := 0; i < idx.Len(); i++ {
		if len(idx.At(i).Window) != WinSize {
			t.Fatalf("point %d window is %d bytes, want %d", i, len(idx.At(i).Window), WinSize)
		}
		if int(idx.At(i).Bits) > 7 {
			t.Fatalf("point %d bits = %d, want 0-7", i, idx.At(i).Bits)
		}
		if i > 0 && idx.At(i).Out <= idx.At(i-1).Out {
			t.Fatalf("points not strictly increasing in Out at %d", i)
		}
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	sess.Seek(2_000_000)
	buf := make([]byte, 10)
	n, err := sess.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 10 {
		t.Fatalf("Read returned %d bytes, want 10", n)
	}
	want := data[2_000_000:2_000_010]
	if !bytes.Equal(buf, want) {
		t.Fatalf("Read(2_000_000,10) = %v, want %v", buf, want)
	}
}

// TestExtractFromEveryPoint reads a handful of bytes starting exactly
// at each access point's Out offset (whatever its Bits value happens to
// be, aligned or not) and checks the bytes match a full decompression.
// The pseudo-random payload is incompressible, so compress/gzip writes
// it as stored blocks and every point here has Bits == 0; the mid-byte
// priming path is not exercised by this payload.
func TestExtractFromEveryPoint(t *testing.T) {
	const size = 4 * 1024 * 1024
	data := make([]byte, size)
	seed := uint32(987654321)
	for i := range data {
		seed = seed*1664525 + 1013904223
		data[i] = byte(seed >> 16)
	}

	dir := t.TempDir()
	path := writeGzipFile(t, dir, "everypoint.gz", data)
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	idxFile, err := os.Open(path + ".idx")
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	idx, err := ReadIndex(idxFile)
	idxFile.Close()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if idx.Len() < 2 {
		t.Fatalf("expected at least 2 access points for a %d-byte payload, got %d", size, idx.Len())
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	for i := 0; i < idx.Len(); i++ {
		p := idx.At(i)
		const n = 64
		want := data[p.Out:]
		if uint64(len(want)) > n {
			want = want[:n]
		}
		sess.Seek(p.Out)
		buf := make([]byte, len(want))
		got, err := sess.Read(buf)
		if err != nil {
			t.Fatalf("point %d (out=%d, bits=%d): Read: %v", i, p.Out, p.Bits, err)
		}
		if got != len(want) || !bytes.Equal(buf[:got], want) {
			t.Fatalf("point %d (out=%d, bits=%d): mismatch", i, p.Out, p.Bits)
		}
	}
}

// TestRoundTripFull checks build(F); open(F); read(0, size_of(F))
// reconstructs F byte-for-byte, across a size that spans several
// access points.
func TestRoundTripFull(t *testing.T) {
	const size = 2500000
	data := make([]byte, size)
	seed := uint32(12345)
	for i := range data {
		// A small cheap PRNG: the payload is incompressible, so the
		// deflate encoder emits it as many stored blocks rather than
		// one block, giving the builder boundaries to place points at.
		seed = seed*1664525 + 1013904223
		data[i] = byte(seed >> 24)
	}

	dir := t.TempDir()
	path := writeGzipFile(t, dir, "roundtrip.gz", data)

	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	got := make([]byte, size)
	total := 0
	for total < size {
		n, err := sess.Read(got[total:])
		if err != nil {
			t.Fatalf("Read at %d: %v", total, err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total != size {
		t.Fatalf("read %d bytes, want %d", total, size)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-tripped data does not match original")
	}
}

// TestSeekSplit checks the round-trip law: seek(o); read(L) equals the
// concatenation of seek(o); read(k); seek(o+k); read(L-k).
func TestSeekSplit(t *testing.T) {
	const size = 1500000
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 37) % 256)
	}
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "split.gz", data)
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	const o, l, k = 900000, 1000, 400
	sess.Seek(o)
	whole := make([]byte, l)
	if _, err := sess.Read(whole); err != nil {
		t.Fatalf("Read whole: %v", err)
	}

	sess.Seek(o)
	first := make([]byte, k)
	if _, err := sess.Read(first); err != nil {
		t.Fatalf("Read first half: %v", err)
	}
	sess.Seek(o + k)
	second := make([]byte, l-k)
	if _, err := sess.Read(second); err != nil {
		t.Fatalf("Read second half: %v", err)
	}

	split := append(append([]byte{}, first...), second...)
	if !bytes.Equal(whole, split) {
		t.Fatalf("split read does not match whole read")
	}
}

// TestBoundaries checks read(0,0), read(len,L), and read(len-1,10).
func TestBoundaries(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "bounds.gz", data)
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}
	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	sess.Seek(0)
	n, err := sess.Read(nil)
	if err != nil || n != 0 {
		t.Fatalf("Read(0,0) = %d, %v, want 0, nil", n, err)
	}

	sess.Seek(uint64(len(data)))
	buf := make([]byte, 10)
	n, err = sess.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read(len,10) = %d, %v, want 0, nil", n, err)
	}

	sess.Seek(uint64(len(data) - 1))
	n, err = sess.Read(buf)
	if err != nil || n != 1 {
		t.Fatalf("Read(len-1,10) = %d, %v, want 1, nil", n, err)
	}
	if buf[0] != data[len(data)-1] {
		t.Fatalf("last byte mismatch: got %q, want %q", buf[0], data[len(data)-1])
	}
}

// TestPastEnd checks that seeking past the end of the stream yields 0
// bytes without clamping the cursor.
func TestPastEnd(t *testing.T) {
	data := []byte("short stream")
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "past.gz", data)
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}
	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	target := uint64(len(data)) + 100
	sess.Seek(target)
	buf := make([]byte, 50)
	n, err := sess.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read past end = %d, %v, want 0, nil", n, err)
	}
	if sess.Tell() != target {
		t.Fatalf("Tell() = %d, want %d (seek is not clamped)", sess.Tell(), target)
	}
}

// TestMalformedStream checks that a tampered compressed file fails
// Build with a DataError, matching the core design's malformed-stream
// scenario.
func TestMalformedStream(t *testing.T) {
	data := make([]byte, 400000)
	for i := range data {
		data[i] = byte(i % 200)
	}
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "tampered.gz", data)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	mid := len(raw) / 2
	raw[mid] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing tampered file: %v", err)
	}

	if err := Build(path); err == nil {
		t.Fatal("Build on tampered stream succeeded, want DataError")
	} else if !errors.Is(err, ErrData) && !errors.Is(err, ErrIO) {
		// A flipped byte normally surfaces as ErrData: a deflate decode
		// error, or a CRC/length mismatch against the gzip trailer. If
		// the corrupted stream ends within the file's last eight bytes,
		// the trailer itself reads short, which Build reports as ErrIO;
		// either is an acceptable rejection, a silent success is not.
		t.Fatalf("Build on tampered stream returned unexpected error: %v", err)
	}
}

// TestMalformedAfterIndexing builds an index against a clean file, then
// tampers with the compressed file afterward and checks that a Session
// opened against it fails a Read with an error at some call, matching
// the core design's "tampered after indexing" scenario.
func TestMalformedAfterIndexing(t *testing.T) {
	data := make([]byte, 400000)
	for i := range data {
		data[i] = byte(i % 197)
	}
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "tampered2.gz", data)
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	// Corrupt a run of bytes, not just one, so the bit-level Huffman
	// stream is desynchronized badly enough to be caught reliably
	// rather than happening to still decode to valid (if wrong) codes.
	mid := len(raw) / 2
	for i := mid; i < mid+64 && i < len(raw); i++ {
		raw[i] ^= 0xff
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing tampered file: %v", err)
	}

	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	buf := make([]byte, len(data))
	var lastErr error
	total := 0
	for total < len(data) {
		n, rerr := sess.Read(buf[total:])
		total += n
		if rerr != nil {
			lastErr = rerr
			break
		}
		if n == 0 {
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected a read against tampered data to eventually fail")
	}
}

// TestIncompatibleIndex checks that a truncated index magic fails Open
// with ErrIncompatible.
func TestIncompatibleIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "ok.gz", []byte("some data to index"))
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	idxBytes, err := os.ReadFile(path + ".idx")
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	raw := decompressToBytes(t, idxBytes)
	raw = raw[:2] // truncate the magic mid-way
	var corrupt bytes.Buffer
	recompress(t, &corrupt, raw)
	if err := os.WriteFile(path+".idx", corrupt.Bytes(), 0o644); err != nil {
		t.Fatalf("writing truncated index: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("Open with truncated index magic succeeded, want an error")
	} else if !errors.Is(err, ErrIncompatible) && !errors.Is(err, ErrIO) {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
}

// TestSessionCloseIdempotent checks that Close can be called more than
// once and that operations after Close behave as a defined empty
// stream rather than panicking.
func TestSessionCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "close.gz", []byte("closeable"))
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}
	sess, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	buf := make([]byte, 5)
	n, err := sess.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("Read after Close = %d, %v, want 0, nil", n, err)
	}
}
