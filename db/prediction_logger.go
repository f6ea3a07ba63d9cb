package db

import (
	"sync"

	"churnserve/inference"
	"churnserve/logging"
)

// PredictionLogger writes prediction audit entries to SQLite off the
// request path. Entries are dropped, not queued indefinitely, when the
// buffer is full: audit delivery is best effort and must never block or
// fail a prediction.
type PredictionLogger struct {
	store   *Store
	entries chan inference.AuditEntry
	done    chan struct{}
	once    sync.Once
}

func NewPredictionLogger(store *Store, buffer int) *PredictionLogger {
	if buffer <= 0 {
		buffer = 256
	}
	logger := &PredictionLogger{
		store:   store,
		entries: make(chan inference.AuditEntry, buffer),
		done:    make(chan struct{}),
	}
	go logger.run()
	return logger
}

// RecordPrediction implements inference.AuditSink.
func (l *PredictionLogger) RecordPrediction(entry inference.AuditEntry) {
	select {
	case l.entries <- entry:
	default:
		logging.L().Debugw("prediction audit buffer full, entry dropped",
			"request_id", entry.RequestID)
	}
}

func (l *PredictionLogger) run() {
	defer close(l.done)
	for entry := range l.entries {
		record := PredictionRecord{
			RequestID:   entry.RequestID,
			RowIndex:    entry.RowIndex,
			Input:       entry.Features,
			Label:       entry.Label,
			Probability: entry.Probability,
			Confidence:  entry.Confidence,
			LatencyMS:   entry.Latency.Milliseconds(),
			Err:         entry.Err,
			At:          entry.At,
		}
		if err := l.store.InsertPrediction(record); err != nil {
			logging.L().Debugw("prediction audit write failed", "error", err)
		}
	}
}

// Close drains buffered entries and stops the writer.
func (l *PredictionLogger) Close() {
	l.once.Do(func() {
		close(l.entries)
		<-l.done
	})
}
