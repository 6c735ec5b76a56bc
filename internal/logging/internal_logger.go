package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// InternalLogger is used by background jobs (sync, metrics, registration) so that their output
// can go to zerolog and to the per-task log buffer at the same time.
type InternalLogger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Sink receives every formatted line of an InternalLogger.
type Sink func(level zerolog.Level, msg string)

// ZerologSink forwards lines to zl, honoring the global level.
func ZerologSink(zl zerolog.Logger) Sink {
	return func(level zerolog.Level, msg string) {
		zl.WithLevel(level).Msg(msg)
	}
}

var _ InternalLogger = Fanout(nil)

// Fanout formats a line once and hands it to every sink in order.
type Fanout []Sink

func NewFanout(sinks ...Sink) Fanout {
	return Fanout(sinks)
}

func (f Fanout) emit(level zerolog.Level, format string, args []any) {
	msg := fmt.Sprintf(format, args...)
	for _, sink := range f {
		sink(level, msg)
	}
}

func (f Fanout) Debug(format string, args ...any) { f.emit(zerolog.DebugLevel, format, args) }
func (f Fanout) Info(format string, args ...any)  { f.emit(zerolog.InfoLevel, format, args) }
func (f Fanout) Warn(format string, args ...any)  { f.emit(zerolog.WarnLevel, format, args) }
func (f Fanout) Error(format string, args ...any) { f.emit(zerolog.ErrorLevel, format, args) }

// Nop discards everything. Handy for CLI one-shots and tests.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
