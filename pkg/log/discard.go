package log

import (
	"context"
	"io"
	"log"

	"github.com/datawire/dlib/dlog"
)

type discard struct{}

func (discard) Helper() {}

func (discard) Log(dlog.LogLevel, string) {}

// The Unformatted variants must be implemented too, or dlog formats every
// message just to throw it away. The packet path logs a lot at trace level.

func (discard) UnformattedLog(dlog.LogLevel, ...any) {}

func (discard) UnformattedLogf(dlog.LogLevel, string, ...any) {}

func (discard) UnformattedLogln(dlog.LogLevel, ...any) {}

func (discard) StdLogger(dlog.LogLevel) *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (d discard) WithField(string, any) dlog.Logger {
	return d
}

// WithDiscardingLogger returns a context that discards all log output.
func WithDiscardingLogger(ctx context.Context) context.Context {
	return dlog.WithLogger(ctx, discard{})
}
