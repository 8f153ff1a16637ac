package log

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dlog"
)

// MakeBaseLogger installs a logrus backed dlog logger that writes to out
// and makes its level adjustable through SetLevel.
func MakeBaseLogger(ctx context.Context, out io.Writer, logLevel string) context.Context {
	logrusLogger := logrus.New()
	logrusLogger.SetOutput(out)
	logrusFormatter := NewFormatter("2006-01-02 15:04:05.0000")
	logrusLogger.SetFormatter(logrusFormatter)

	SetLogrusLevel(logrusLogger, logLevel, false)

	logger := dlog.WrapLogrus(logrusLogger)
	dlog.SetFallbackLogger(logger)
	ctx = dlog.WithLogger(ctx, logger)
	return WithLevelSetter(ctx, logrusLogger)
}
