// Package report delivers correlated detection records to their consumers.
//
// Report is called on the pipeline's streaming threads, so every Reporter
// must return immediately. Reporters that do I/O queue records into a
// bounded buffer and drop them when it is full.
package report

import (
	"errors"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
)

// Reporter consumes records.
type Reporter interface {
	Report(rec correlate.Record)
	Close() error
}

// Stats counts records handled by a queued reporter.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Errors  uint64
}

// Log writes one log line per record.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a reporter logging through logger (slog.Default if nil).
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Report(rec correlate.Record) {
	attrs := []any{
		"stream", rec.Stream,
		"label", rec.Label,
		"score", rec.Score,
	}
	if rec.Tracked {
		attrs = append(attrs, "track_id", rec.TrackID)
	}
	l.logger.Info(rec.String(), attrs...)
}

func (l *Log) Close() error { return nil }

// Multi fans records out to several reporters.
type Multi []Reporter

func (m Multi) Report(rec correlate.Record) {
	for _, r := range m {
		r.Report(rec)
	}
}

// Close closes every reporter and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Report(correlate.Record) {}
func (Discard) Close() error           { return nil }
