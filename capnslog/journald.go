package capnslog

import (
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournaldFormatter writes log entries directly to the systemd journal,
// mapping each LogLevel onto the nearest journal.Priority and carrying
// the originating package name as a structured field (SYSLOG_IDENTIFIER
// equivalent) instead of baking it into the message text the way
// StringFormatter does.
type JournaldFormatter struct{}

// NewJournaldFormatter returns a Formatter that writes to the local
// systemd journal. Callers should check journal.Enabled() first; if the
// journal isn't reachable, journal.Send simply fails silently per its
// own contract, so callers who want a guaranteed destination should
// fall back to NewStringFormatter instead.
func NewJournaldFormatter() *JournaldFormatter {
	return &JournaldFormatter{}
}

func (j *JournaldFormatter) Format(pkg string, level LogLevel, _ int, entries ...LogEntry) {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.LogString())
	}
	vars := map[string]string{"PACKAGE": pkg}
	journal.Send(b.String(), journalPriority(level), vars)
}

func journalPriority(level LogLevel) journal.Priority {
	switch level {
	case CRITICAL:
		return journal.PriCrit
	case ERROR:
		return journal.PriErr
	case WARNING:
		return journal.PriWarning
	case NOTICE:
		return journal.PriNotice
	case INFO:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
