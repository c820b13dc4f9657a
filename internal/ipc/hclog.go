package ipc

import (
	"io"
	stdlog "log"

	"github.com/hashicorp/go-hclog"

	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// newMemberlistLogger returns a standard logger for memberlist whose lines
// are parsed for their [LEVEL] prefix and forwarded to log at that level.
func newMemberlistLogger(log logger.Logger) *stdlog.Logger {
	il := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:   "memberlist",
		Level:  hclog.Trace,
		Output: io.Discard,
	})
	il.RegisterSink(&slogSink{logger: log})
	return il.StandardLoggerIntercept(&hclog.StandardLoggerOptions{InferLevels: true})
}

// slogSink adapts the application logger to an hclog sink.
type slogSink struct {
	logger logger.Logger
}

// Accept implements hclog.SinkAdapter.
func (s *slogSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	args = append(args, "source", name)
	switch level {
	case hclog.Trace, hclog.Debug:
		s.logger.Debug(msg, args...)
	case hclog.Info:
		s.logger.Info(msg, args...)
	case hclog.Warn:
		s.logger.Warn(msg, args...)
	case hclog.Error:
		s.logger.Error(msg, args...)
	default:
		s.logger.Info(msg, args...)
	}
}
