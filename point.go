package seekgzip

// Constants governing access-point spacing and buffer sizing, shared by
// the builder, the extractor and the on-disk codec.
const (
	// Span is the target distance, in uncompressed bytes, between
	// consecutive access points.
	Span = 1 << 20 // 1,048,576
	// WinSize is the number of trailing uncompressed bytes an access
	// point carries as its raw-inflate dictionary.
	WinSize = 32768
	// ChunkSize is the size of the buffer the seekgzip CLI and the
	// seekgzipd range server read uncompressed data through. The builder
	// and extractor do not use it: they read the compressed stream
	// through a bufio.Reader of the default size.
	ChunkSize = 16384
)

// AccessPoint is a checkpoint from which raw DEFLATE can be resumed
// without replaying the stream from the start.
type AccessPoint struct {
	// Out is the uncompressed byte offset at which this point sits: the
	// first byte after the checkpoint.
	Out uint64
	// In is the compressed byte offset of the first full input byte at
	// or after the checkpoint.
	In uint64
	// Bits is the number of leading bits (0-7) of the byte at In-1 that
	// must be primed into a fresh inflater before normal input resumes.
	Bits uint8
	// Window holds exactly WinSize bytes of uncompressed data
	// immediately preceding Out, in chronological order.
	Window [WinSize]byte
}
