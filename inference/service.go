// Package inference serves churn predictions from one immutable
// (model, scaler) pair loaded at process start.
package inference

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"churnserve/artifact"
	"churnserve/dataset"
	"churnserve/logging"
	"churnserve/ml"
)

// ErrNotReady is returned by Predict before a successful artifact load. The
// caller retries after a redeploy; the service never reloads on its own.
var ErrNotReady = errors.New("service not ready: model artifacts not loaded")

// DefaultThreshold is the decision threshold used when the artifact
// manifest does not carry a calibrated one.
const DefaultThreshold = 0.5

// Model is the loaded classifier as the service sees it: an opaque
// forward pass.
type Model interface {
	PredictProba(features []float64) (float64, error)
}

// Request identifies the customer to score: either a row of the reference
// dataset or an explicit feature payload.
type Request struct {
	RequestID string
	RowIndex  *int
	Features  map[string]interface{}
}

// Result is one prediction. Created per request, never persisted by the
// service itself.
type Result struct {
	RowIndex       *int
	Record         ml.CustomerRecord
	Features       map[string]interface{}
	Label          int
	Probability    float64
	Confidence     float64
	ConfidenceText string
	RunID          string
	Latency        time.Duration
}

// AuditEntry is the structured record handed to audit sinks after every
// call. Sinks must not block; delivery is best effort.
type AuditEntry struct {
	RequestID   string
	RowIndex    *int
	Features    map[string]interface{}
	Label       int
	Probability float64
	Confidence  float64
	Latency     time.Duration
	Err         string
	At          time.Time
}

// AuditSink receives prediction audit records. Implementations swallow
// their own failures.
type AuditSink interface {
	RecordPrediction(entry AuditEntry)
}

// loaded holds everything a prediction needs. Built once, then shared
// read-only across requests; there is no mutable state in the hot path.
type loaded struct {
	model     Model
	encoder   *ml.Encoder
	ref       *dataset.Reference
	runID     string
	threshold float64
}

// Service transitions Uninitialized -> Ready exactly once, on a successful
// artifact load. A failed load leaves it Uninitialized for the process
// lifetime.
type Service struct {
	thresholdOverride float64
	sinks             []AuditSink
	state             atomic.Pointer[loaded]
}

// New returns an Uninitialized service. thresholdOverride > 0 takes
// precedence over the manifest threshold.
func New(thresholdOverride float64, sinks ...AuditSink) *Service {
	return &Service{thresholdOverride: thresholdOverride, sinks: sinks}
}

// Initialize loads the active artifact pair from the store. ref may be nil
// when no reference dataset is configured; row_index requests then fail.
func (s *Service) Initialize(store *artifact.Store, ref *dataset.Reference) error {
	model, scaler, manifest, err := store.Load()
	if err != nil {
		return err
	}
	threshold := manifest.Threshold
	if s.thresholdOverride > 0 {
		threshold = s.thresholdOverride
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	s.ready(model, scaler, ref, manifest.ActiveRun, threshold)
	logging.L().Infow("model artifacts loaded",
		"run_id", manifest.ActiveRun,
		"threshold", threshold,
		"columns", len(scaler.Columns),
	)
	return nil
}

// ready installs the loaded pair. Exported via Initialize for production
// and used directly by tests that inject a fake model.
func (s *Service) ready(model Model, scaler *ml.Scaler, ref *dataset.Reference, runID string, threshold float64) {
	s.state.Store(&loaded{
		model:     model,
		encoder:   ml.NewEncoder(scaler),
		ref:       ref,
		runID:     runID,
		threshold: threshold,
	})
}

// MakeReady installs an already-constructed pair, bypassing the store.
func (s *Service) MakeReady(model Model, scaler *ml.Scaler, ref *dataset.Reference, runID string, threshold float64) {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	s.ready(model, scaler, ref, runID, threshold)
}

// Ready reports whether artifacts have been loaded.
func (s *Service) Ready() bool {
	return s.state.Load() != nil
}

// RunID returns the active training run, or "" while Uninitialized.
func (s *Service) RunID() string {
	if st := s.state.Load(); st != nil {
		return st.runID
	}
	return ""
}

// Predict encodes the request, runs the forward pass, and applies the
// decision threshold. Validation and encoding errors propagate unchanged;
// audit logging is log-and-continue and never fails the prediction.
func (s *Service) Predict(req Request) (*Result, error) {
	start := time.Now()

	st := s.state.Load()
	if st == nil {
		s.audit(req, nil, ErrNotReady, start)
		return nil, ErrNotReady
	}

	record, err := s.resolve(st, req)
	if err != nil {
		s.audit(req, nil, err, start)
		return nil, err
	}

	row, err := st.encoder.Encode(record)
	if err != nil {
		s.audit(req, nil, err, start)
		return nil, err
	}

	p, err := st.model.PredictProba(row.Values)
	if err != nil {
		s.audit(req, nil, err, start)
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	label := 0
	if p >= st.threshold {
		label = 1
	}
	confidence := p
	if 1-p > confidence {
		confidence = 1 - p
	}

	result := &Result{
		RowIndex:       req.RowIndex,
		Record:         record,
		Features:       record.FeatureMap(),
		Label:          label,
		Probability:    p,
		Confidence:     confidence,
		ConfidenceText: FormatConfidence(confidence),
		RunID:          st.runID,
		Latency:        time.Since(start),
	}
	s.audit(req, result, nil, start)
	return result, nil
}

func (s *Service) resolve(st *loaded, req Request) (ml.CustomerRecord, error) {
	switch {
	case req.RowIndex != nil:
		if st.ref == nil {
			return ml.CustomerRecord{}, &ml.ConfigurationError{Reason: "no reference dataset configured for row_index lookups"}
		}
		return st.ref.Row(*req.RowIndex)
	case req.Features != nil:
		return ml.RecordFromPayload(req.Features)
	default:
		return ml.CustomerRecord{}, &ml.ValidationError{Reason: "either row_index or features is required"}
	}
}

// audit fans the call out to the log and every sink. Failures here must
// never surface to the caller.
func (s *Service) audit(req Request, result *Result, callErr error, start time.Time) {
	entry := AuditEntry{
		RequestID: req.RequestID,
		RowIndex:  req.RowIndex,
		Latency:   time.Since(start),
		At:        start,
	}
	if result != nil {
		entry.Features = result.Features
		entry.Label = result.Label
		entry.Probability = result.Probability
		entry.Confidence = result.Confidence
	} else if req.Features != nil {
		entry.Features = req.Features
	}
	if callErr != nil {
		entry.Err = callErr.Error()
	}

	if callErr != nil {
		logging.L().Infow("prediction failed",
			"request_id", entry.RequestID,
			"latency_ms", entry.Latency.Milliseconds(),
			"error", entry.Err,
		)
	} else {
		logging.L().Infow("prediction served",
			"request_id", entry.RequestID,
			"label", entry.Label,
			"probability", entry.Probability,
			"latency_ms", entry.Latency.Milliseconds(),
		)
	}

	for _, sink := range s.sinks {
		sink.RecordPrediction(entry)
	}
}

// FormatConfidence renders max(p, 1-p) as a percentage string.
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}
