package seekgzip

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"testing"
)

// decompressToBytes fully inflates a gzip stream written by compress/gzip,
// for test fixtures that need to tamper with the index's own serialized
// bytes (which are themselves gzip-compressed per the on-disk format) and
// then re-wrap them.
func decompressToBytes(t *testing.T, gzipped []byte) []byte {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("reading gzip stream: %v", err)
	}
	return raw
}

// recompress gzip-compresses raw into dst using the standard library
// writer, mirroring the format WriteIndex produces.
func recompress(t *testing.T, dst *bytes.Buffer, raw []byte) {
	t.Helper()
	gw := gzip.NewWriter(dst)
	if _, err := gw.Write(raw); err != nil {
		t.Fatalf("writing gzip stream: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
}

// writeGzipFile gzip-compresses data (as a single member) to a new file
// under dir and returns its path.
func writeGzipFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := dir + "/" + name
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("writing gzip data: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
	return path
}
