package seekgzip

import "errors"

// Sentinel errors identifying the kinds in the error taxonomy: every
// failing operation wraps one of these with fmt.Errorf("%w", ...) so
// callers can distinguish kinds with errors.Is while still getting a
// descriptive message.
var (
	// ErrOpen reports that the target or index file could not be opened.
	ErrOpen = errors.New("seekgzip: open error")
	// ErrIO reports an underlying read, write, or seek failure.
	ErrIO = errors.New("seekgzip: io error")
	// ErrData reports a malformed DEFLATE stream, truncated input, or a
	// block that needs a dictionary that was never supplied.
	ErrData = errors.New("seekgzip: data error")
	// ErrOutOfMemory reports an allocation failure.
	ErrOutOfMemory = errors.New("seekgzip: out of memory")
	// ErrIncompatible reports a bad index magic or mismatched offset width.
	ErrIncompatible = errors.New("seekgzip: incompatible index")
	// ErrZlib reports a terminal inflate failure not covered by ErrData.
	ErrZlib = errors.New("seekgzip: zlib error")
)
