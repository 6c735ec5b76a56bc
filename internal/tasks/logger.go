package tasks

import (
	"github.com/rs/zerolog"

	"github.com/darmiel/satellite/internal/logging"
)

// bufferSink stores lines in the bounded log buffer of task.
func bufferSink(task *RunnableTask) logging.Sink {
	return func(level zerolog.Level, msg string) {
		task.AppendLog(level.String(), msg)
	}
}

// newRunLogger logs one execution of task to zerolog first, then into the task buffer.
func newRunLogger(task *RunnableTask, zl zerolog.Logger) logging.InternalLogger {
	return logging.NewFanout(logging.ZerologSink(zl), bufferSink(task))
}
