// Package logging wires github.com/joeycumines/logiface, backed by
// github.com/joeycumines/stumpy's allocation-light JSON event encoder,
// to the host's log hostcall surface — the only log sink available
// inside the sandboxed VM.
package logging

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"proxy-pow-filter/internal/hostabi"
)

// Logger is a thin façade over logiface.Logger[*stumpy.Event], exposing
// printf-style helpers so the rest of the core never imports logiface
// directly.
type Logger struct {
	inner *logiface.Logger[*stumpy.Event]
}

// New constructs a Logger that renders each event as a stumpy JSON line
// and hands it to sink. level sets the minimum level passed through;
// everything below it is a no-op at the call site (logiface gates
// before building the event).
func New(sink hostabi.LogSink, level hostabi.LogLevel) *Logger {
	writer := logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
		return sink.Log(fromLogifaceLevel(e.Level()), string(e.Bytes()))
	})

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(writer),
		stumpy.L.WithLevel(toLogifaceLevel(level)),
	)
	return &Logger{inner: logger}
}

func (l *Logger) Tracef(format string, args ...any) { l.inner.Trace().Logf(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.inner.Debug().Logf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.inner.Info().Logf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.inner.Notice().Logf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.inner.Err().Logf(format, args...) }

func toLogifaceLevel(l hostabi.LogLevel) logiface.Level {
	switch l {
	case hostabi.LogTrace:
		return logiface.LevelTrace
	case hostabi.LogDebug:
		return logiface.LevelDebug
	case hostabi.LogInfo:
		return logiface.LevelInformational
	case hostabi.LogWarn:
		return logiface.LevelNotice
	case hostabi.LogError:
		return logiface.LevelError
	default:
		return logiface.LevelTrace
	}
}

func fromLogifaceLevel(l logiface.Level) hostabi.LogLevel {
	switch {
	case l >= logiface.LevelTrace:
		return hostabi.LogTrace
	case l == logiface.LevelDebug:
		return hostabi.LogDebug
	case l == logiface.LevelInformational:
		return hostabi.LogInfo
	case l == logiface.LevelNotice || l == logiface.LevelWarning:
		return hostabi.LogWarn
	default: // Error, Critical, Alert, Emergency
		return hostabi.LogError
	}
}
