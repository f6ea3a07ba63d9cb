package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"churnserve/db"
	"churnserve/inference"
	"churnserve/ml"
	"churnserve/monitoring"
)

// Deps are the collaborators handlers are bound to. Constructed once at
// startup and passed by reference; no package-level state.
type Deps struct {
	Service *inference.Service
	Metrics *monitoring.Collector
	Hub     *monitoring.Hub
	DB      *db.Store
}

// RegisterHandlers wires all routes onto the mux.
func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.HandleFunc("POST /predict/", deps.handlePredict)
	mux.HandleFunc("POST /predict", deps.handlePredict)
	mux.HandleFunc("GET /metrics", deps.handleMetrics)
	mux.HandleFunc("GET /runs", deps.handleRuns)
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws/monitor", deps.Hub.HandleWS)
	}
}

func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "not_ready"
	if d.Service.Ready() {
		status = "ready"
	}
	payload := map[string]interface{}{
		"status": status,
		"run_id": d.Service.RunID(),
	}
	if d.Metrics != nil {
		payload["uptime_seconds"] = int64(d.Metrics.Uptime().Seconds())
	}
	writeJSON(w, http.StatusOK, payload)
}

// predictRequest accepts either a reference row index or an explicit
// feature object.
type predictRequest struct {
	RowIndex *int                   `json:"row_index"`
	Features map[string]interface{} `json:"features"`
}

// predictResponse is the fixed payload shape. Failures fill the same shape
// with an error description so clients can branch uniformly.
type predictResponse struct {
	Message               string                 `json:"message"`
	RowIndex              *int                   `json:"row_index"`
	Prediction            *int                   `json:"prediction"`
	PredictionMessage     string                 `json:"prediction_message"`
	PredictionProbability *float64               `json:"prediction_probability"`
	PredictionConfidence  string                 `json:"prediction_confidence"`
	InputFeatures         map[string]interface{} `json:"input_features"`
	Note                  string                 `json:"note"`
	Error                 string                 `json:"error,omitempty"`
}

func (d Deps) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.predictFailure(w, nil, http.StatusBadRequest, "request body must be JSON with row_index or features")
		return
	}

	result, err := d.Service.Predict(inference.Request{
		RequestID: GetRequestID(r.Context()),
		RowIndex:  req.RowIndex,
		Features:  req.Features,
	})
	if err != nil {
		code := statusFor(err)
		d.countPrediction(code, time.Since(start))
		d.predictFailure(w, req.RowIndex, code, err.Error())
		return
	}

	d.countPrediction(http.StatusOK, time.Since(start))

	message := "Customer is not likely to churn"
	if result.Label == 1 {
		message = "Customer is likely to churn"
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Message:               "prediction successful",
		RowIndex:              result.RowIndex,
		Prediction:            &result.Label,
		PredictionMessage:     message,
		PredictionProbability: &result.Probability,
		PredictionConfidence:  result.ConfidenceText,
		InputFeatures:         result.Features,
		Note:                  "served by training run " + result.RunID,
	})
}

func (d Deps) predictFailure(w http.ResponseWriter, rowIndex *int, code int, detail string) {
	writeJSON(w, code, predictResponse{
		Message:       "prediction failed",
		RowIndex:      rowIndex,
		InputFeatures: map[string]interface{}{},
		Note:          "see error field",
		Error:         detail,
	})
}

// statusFor maps the error taxonomy onto HTTP statuses: client input errors
// are 4xx, artifact/model errors 5xx, not-ready 503.
func statusFor(err error) int {
	var validationErr *ml.ValidationError
	var encodingErr *ml.EncodingError
	switch {
	case errors.Is(err, inference.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &validationErr), errors.As(err, &encodingErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (d Deps) countPrediction(code int, latency time.Duration) {
	if d.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case code >= 500:
		result = "server_error"
	case code >= 400:
		result = "client_error"
	}
	d.Metrics.IncrCounter("predictions_total", 1, map[string]string{"result": result})
	d.Metrics.RecordHistogram("prediction_latency_ms", float64(latency.Milliseconds()), nil)
}

func (d Deps) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if d.Metrics == nil {
		http.Error(w, "metrics collector disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(d.Metrics.ExportPrometheus()))
}

func (d Deps) handleRuns(w http.ResponseWriter, r *http.Request) {
	if d.DB == nil {
		http.Error(w, "experiment tracking disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := d.DB.ListTrainingRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_run": d.Service.RunID(),
		"runs":       runs,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
