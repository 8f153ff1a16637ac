package log

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
)

type tbWrapper struct {
	testing.TB
	level  dlog.LogLevel
	fields map[string]any
}

// NewTestLogger returns a logger that writes to t.Log and drops everything
// above the given level. Unlike dlog.WrapTB it never fails the test.
func NewTestLogger(t testing.TB, level dlog.LogLevel) dlog.Logger {
	return &tbWrapper{TB: t, level: level}
}

func (w *tbWrapper) StdLogger(dlog.LogLevel) *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (w *tbWrapper) WithField(key string, value any) dlog.Logger {
	ret := tbWrapper{
		TB:     w.TB,
		level:  w.level,
		fields: make(map[string]any, len(w.fields)+1),
	}
	for k, v := range w.fields {
		ret.fields[k] = v
	}
	ret.fields[key] = value
	return &ret
}

func (w *tbWrapper) Log(level dlog.LogLevel, msg string) {
	if level > w.level {
		return
	}
	w.Helper()
	sb := strings.Builder{}
	sb.WriteString(time.Now().Format("15:04:05.0000"))
	sb.WriteByte(' ')
	sb.WriteString(msg)

	if len(w.fields) > 0 {
		keys := make([]string, 0, len(w.fields))
		for k := range w.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" :")
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%#v", k, w.fields[k])
		}
	}
	w.TB.Log(sb.String())
}
