// Command seekgzip builds and queries random-access indexes over
// single-member gzip files.
//
// Usage:
//
//	seekgzip -b FILE          build an index file FILE.idx
//	seekgzip -i FILE          print summary information about FILE.idx
//	seekgzip FILE BEGIN-END   print the uncompressed range [BEGIN, END)
//	seekgzip FILE BEGIN-      print from BEGIN to end of stream
//	seekgzip FILE -END        print [0, END)
//	seekgzip FILE N           print one byte at offset N
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nekogz/seekgzip"
	"github.com/nekogz/seekgzip/capnslog"
	"github.com/nekogz/seekgzip/yamlutil"
)

var plog = capnslog.NewPackageLogger("github.com/nekogz/seekgzip", "cmd/seekgzip")

const usage = `This utility maintains an index for random (seekable) access of a gzip file.
USAGE:
    seekgzip -b FILE           Build an index file "FILE.idx" for the gzip file FILE.
    seekgzip -i FILE           Print summary information about FILE.idx.
    seekgzip FILE BEGIN-END    Output the content of FILE in the offset range [BEGIN, END).
    seekgzip FILE BEGIN-       Output from BEGIN to end of stream.
    seekgzip FILE -END         Output the range [0, END).
    seekgzip FILE N            Output one byte at offset N.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("seekgzip", flag.ContinueOnError)
	build := fs.String("b", "", "build an index for FILE")
	info := fs.String("i", "", "print summary information about FILE.idx")
	config := fs.String("config", "", "optional YAML file overriding unset flags")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *config != "" {
		if err := applyConfig(fs, *config); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return 1
		}
	}

	switch {
	case *build != "":
		return cmdBuild(*build)
	case *info != "":
		return cmdInfo(*info)
	}

	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Print(usage)
		return 0
	}
	return cmdRead(rest[0], rest[1])
}

func applyConfig(fs *flag.FlagSet, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return yamlutil.SetFlagsFromYaml(fs, raw)
}

func cmdBuild(target string) int {
	fmt.Printf("Building an index: %s.idx\n", target)
	if err := seekgzip.Build(target); err != nil {
		plog.Errorf("build %s: %v", target, err)
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	return 0
}

func cmdInfo(target string) int {
	f, err := os.Open(target + ".idx")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: Failed to open the index file.")
		return 1
	}
	defer f.Close()

	idx, err := seekgzip.ReadIndex(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	fmt.Printf("access points: %d\n", idx.Len())
	fmt.Println("format: ZSK1 (portable little-endian)")
	if idx.Len() > 0 {
		first := idx.At(0)
		last := idx.At(idx.Len() - 1)
		fmt.Printf("covers uncompressed offsets [%d, %d]\n", first.Out, last.Out)
	}
	return 0
}

func cmdRead(path, rangeArg string) int {
	zs, err := seekgzip.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: Failed to open the index file.")
		return 1
	}
	defer zs.Close()

	begin, end, err := parseRange(rangeArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}

	zs.Seek(begin)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	buf := make([]byte, seekgzip.ChunkSize)
	for begin < end {
		size := end - begin
		if size > uint64(len(buf)) {
			size = uint64(len(buf))
		}
		n, err := zs.Read(buf[:size])
		if err != nil {
			plog.Errorf("read %s: %v", path, err)
			fmt.Fprintln(os.Stderr, "ERROR: An error occurred while reading the gzip file.")
			return 1
		}
		if n == 0 {
			break
		}
		if _, err := w.Write(buf[:n]); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return 1
		}
		begin += uint64(n)
	}
	return 0
}

// parseRange parses the four range forms the CLI accepts: "BEGIN-END",
// "BEGIN-", "-END", and a lone "N" meaning a single byte at offset N.
func parseRange(arg string) (begin, end uint64, err error) {
	i := strings.IndexByte(arg, '-')
	switch {
	case i < 0:
		begin, err = strconv.ParseUint(arg, 10, 64)
		end = begin + 1
	case i == 0:
		end, err = strconv.ParseUint(arg[1:], 10, 64)
	case i == len(arg)-1:
		begin, err = strconv.ParseUint(arg[:i], 10, 64)
		end = ^uint64(0)
	default:
		begin, err = strconv.ParseUint(arg[:i], 10, 64)
		if err == nil {
			end, err = strconv.ParseUint(arg[i+1:], 10, 64)
		}
	}
	if err != nil {
		err = fmt.Errorf("invalid range %q: %w", arg, err)
	}
	return
}
