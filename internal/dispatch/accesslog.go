package dispatch

import (
	"time"

	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// Record is the access log entry emitted exactly once per dispatched
// call, after the outcome is known.
type Record struct {
	Success  bool
	Endpoint string
	Method   string
	Status   int
	UserID   string
	Error    string
	Duration time.Duration
}

// AccessLogger is the log sink capability. Emission is fire-and-forget:
// a failing or panicking sink must never fail the call it describes.
type AccessLogger interface {
	Log(record Record)
}

// loggerSink writes access records through the structured logger.
type loggerSink struct {
	logger observability.Logger
}

// NewLoggerSink creates an AccessLogger backed by the structured logger.
func NewLoggerSink(logger observability.Logger) AccessLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &loggerSink{logger: logger}
}

var _ AccessLogger = (*loggerSink)(nil)

// Log implements AccessLogger.
func (s *loggerSink) Log(record Record) {
	fields := []observability.Field{
		observability.Bool("success", record.Success),
		observability.String("endpoint", record.Endpoint),
		observability.String("method", record.Method),
		observability.Int("status", record.Status),
		observability.Duration("duration", record.Duration),
	}
	if record.UserID != "" {
		fields = append(fields, observability.String("user_id", record.UserID))
	}
	if record.Error != "" {
		fields = append(fields, observability.String("error", record.Error))
	}

	if record.Success {
		s.logger.Info("request completed", fields...)
	} else {
		s.logger.Warn("request failed", fields...)
	}
}

// emit delivers a record to the sink, swallowing sink panics so log
// delivery can never fail the call.
func emit(sink AccessLogger, record Record) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink.Log(record)
}
