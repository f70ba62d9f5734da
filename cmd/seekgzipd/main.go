// Command seekgzipd serves byte-range reads over a set of indexed gzip
// files via HTTP, translating RFC 7233 Range requests directly into
// Session.Seek/Session.Read calls against the random-access core.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/nekogz/seekgzip"
	"github.com/nekogz/seekgzip/capnslog"
	"github.com/nekogz/seekgzip/flagutil"
	"github.com/nekogz/seekgzip/httputil"
	"github.com/nekogz/seekgzip/stop"
	yaml "gopkg.in/yaml.v2"
)

var plog = capnslog.NewPackageLogger("github.com/nekogz/seekgzip", "cmd/seekgzipd")

// servedFile is one entry of the server's file table: the URL name it
// is served under, and the path to the compressed file on disk (paired
// with path+".idx", as produced by `seekgzip -b`).
type servedFile struct {
	Name string
	Path string
}

func main() {
	var addr flagutil.IPv4Flag
	addr.Set("127.0.0.1")
	port := flag.Int("port", 8080, "listen port")
	config := flag.String("config", "", "YAML file listing served files")
	flag.Var(&addr, "addr", "listen address")
	flag.Parse()

	if journal.Enabled() {
		capnslog.SetFormatter(capnslog.NewJournaldFormatter())
	} else {
		capnslog.SetFormatter(capnslog.NewStringFormatter(os.Stderr))
	}

	files, err := loadFiles(*config, flag.Args())
	if err != nil {
		plog.Errorf("loading served files: %v", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: seekgzipd [-addr ADDR] [-port PORT] [-config FILE] FILE...")
		os.Exit(1)
	}

	group := stop.NewGroup()
	mux := http.NewServeMux()
	for _, sf := range files {
		sess, err := seekgzip.Open(sf.Path)
		if err != nil {
			plog.Errorf("opening %s: %v", sf.Path, err)
			os.Exit(1)
		}
		group.AddFunc(func() <-chan struct{} {
			sess.Close()
			return stop.AlreadyDone
		})
		mux.Handle("/"+sf.Name, rangeHandler(sess))
	}

	srv := &http.Server{
		Addr:    addr.IP().String() + ":" + strconv.Itoa(*port),
		Handler: &httputil.LoggingMiddleware{Next: mux},
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		plog.Infof("shutting down")
		<-group.Stop()
		os.Exit(0)
	}()

	plog.Infof("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		plog.Errorf("serve: %v", err)
		os.Exit(1)
	}
}

func loadFiles(configPath string, extra []string) ([]servedFile, error) {
	var files []servedFile
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", configPath, err)
		}
		cfg, err := parseFileList(raw)
		if err != nil {
			return nil, err
		}
		files = append(files, cfg...)
	}
	for _, path := range extra {
		files = append(files, servedFile{Name: baseName(path), Path: path})
	}
	return files, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// parseFileList reads a "name: path" YAML mapping, using the same
// gopkg.in/yaml.v2 dependency the -config flag overlay (yamlutil) uses
// for its own unmarshaling.
func parseFileList(raw []byte) ([]servedFile, error) {
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing file list: %w", err)
	}
	files := make([]servedFile, 0, len(m))
	for name, path := range m {
		files = append(files, servedFile{Name: name, Path: path})
	}
	return files, nil
}
