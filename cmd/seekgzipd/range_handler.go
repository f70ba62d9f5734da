package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/nekogz/seekgzip"
)

// rangeHandler serves one seekgzip.Session as an HTTP resource supporting
// RFC 7233 single-range "Range: bytes=START-END" requests, translating
// them directly into Session.Seek/Session.Read calls. A Session is not
// safe for concurrent use (it owns one file handle and one cursor), so
// this handler serializes requests against it with a mutex; concurrent
// requests for the same served file wait their turn rather than racing
// the cursor.
func rangeHandler(sess *seekgzip.Session) http.Handler {
	h := &rangeHTTPHandler{sess: sess}
	return h
}

type rangeHTTPHandler struct {
	mu   sync.Mutex
	sess *seekgzip.Session
}

func (h *rangeHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin, end, hasRange, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sess.Seek(begin)

	buf := make([]byte, seekgzip.ChunkSize)
	remaining := end - begin
	size := remaining
	if size > uint64(len(buf)) {
		size = uint64(len(buf))
	}
	n, err := h.sess.Read(buf[:size])
	if err != nil {
		plog.Errorf("serving range [%d,%d): %v", begin, end, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n == 0 {
		// begin is at or past the stream's actual length: the stream
		// ends before Extract's skip from the nearest access point
		// reaches begin, which it reports as a clean 0, nil rather
		// than an error.
		w.Header().Set("Content-Range", "bytes */*")
		http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", begin, end-1))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if _, err := w.Write(buf[:n]); err != nil {
		return
	}
	remaining -= uint64(n)

	for remaining > 0 {
		size := remaining
		if size > uint64(len(buf)) {
			size = uint64(len(buf))
		}
		n, err := h.sess.Read(buf[:size])
		if err != nil {
			plog.Errorf("serving range [%d,%d): %v", begin, end, err)
			return
		}
		if n == 0 {
			break
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return
		}
		remaining -= uint64(n)
	}
}

// parseRangeHeader parses a single-range "bytes=START-END" header value
// as sent by HTTP range clients. An empty header requests the entire
// stream, reported as hasRange=false with end set to the maximum
// representable offset; Session.Read's own EOF-as-short-read behavior
// ends the response once the real stream length is reached.
func parseRangeHeader(v string) (begin, end uint64, hasRange bool, err error) {
	if v == "" {
		return 0, ^uint64(0), false, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(v, prefix) {
		return 0, 0, false, fmt.Errorf("unsupported range unit: %q", v)
	}
	spec := strings.TrimPrefix(v, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false, fmt.Errorf("multiple ranges not supported: %q", v)
	}
	i := strings.IndexByte(spec, '-')
	if i < 0 {
		return 0, 0, false, fmt.Errorf("malformed range: %q", v)
	}
	startStr, endStr := spec[:i], spec[i+1:]
	if startStr == "" {
		return 0, 0, false, fmt.Errorf("suffix ranges not supported: %q", v)
	}
	begin, err = strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("malformed range: %q", v)
	}
	if endStr == "" {
		return begin, ^uint64(0), true, nil
	}
	end, err = strconv.ParseUint(endStr, 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("malformed range: %q", v)
	}
	return begin, end + 1, true, nil
}
