package httputil

import (
	"net/http"

	"github.com/nekogz/seekgzip/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/nekogz/seekgzip", "httputil")

// LoggingMiddleware logs every request's method and URL before delegating
// to Next. It is used in front of the range-read server so that access
// patterns against the index are visible in the same log stream as the
// rest of the program.
type LoggingMiddleware struct {
	Next http.Handler
}

func (l *LoggingMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	plog.Infof("HTTP %s %v", r.Method, r.URL)
	l.Next.ServeHTTP(w, r)
}
