package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"churnserve/inference"
	"churnserve/ml"
)

type fakeModel struct {
	p   float64
	err error
}

func (f *fakeModel) PredictProba(features []float64) (float64, error) {
	return f.p, f.err
}

func identityScaler() *ml.Scaler {
	columns := ml.FeatureColumns()
	means := make([]float64, len(columns))
	scales := make([]float64, len(columns))
	for i := range scales {
		scales[i] = 1
	}
	return &ml.Scaler{Columns: columns, Means: means, Scales: scales}
}

func testPayload() map[string]interface{} {
	record := ml.CustomerRecord{
		State:                "NY",
		AccountLength:        138,
		AreaCode:             408,
		InternationalPlan:    "No",
		VoiceMailPlan:        "No",
		NumberVmailMessages:  0,
		TotalDayMinutes:      241.8,
		TotalDayCalls:        93,
		TotalDayCharge:       41.11,
		TotalEveMinutes:      170.1,
		TotalEveCalls:        99,
		TotalEveCharge:       14.46,
		TotalNightMinutes:    221.1,
		TotalNightCalls:      104,
		TotalNightCharge:     9.95,
		TotalIntlMinutes:     11.8,
		TotalIntlCalls:       5,
		TotalIntlCharge:      3.19,
		CustomerServiceCalls: 3,
	}
	payload := make(map[string]interface{})
	for key, value := range record.FeatureMap() {
		payload[key] = value
	}
	return payload
}

func newTestMux(service *inference.Service) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterHandlers(mux, Deps{Service: service})
	return mux
}

func postPredict(t *testing.T, mux *http.ServeMux, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict/", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthTracksReadiness(t *testing.T) {
	service := inference.New(0)
	mux := newTestMux(service)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}

	service.MakeReady(&fakeModel{p: 0.9}, identityScaler(), nil, "run-7", 0.5)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after load, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["status"] != "ready" || payload["run_id"] != "run-7" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
}

func TestPredictSuccess(t *testing.T) {
	service := inference.New(0)
	service.MakeReady(&fakeModel{p: 1.0}, identityScaler(), nil, "run-7", 0.5)
	mux := newTestMux(service)

	w := postPredict(t, mux, map[string]interface{}{"features": testPayload()})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["prediction"].(float64) != 1 {
		t.Fatalf("expected prediction 1, got %v", payload["prediction"])
	}
	if payload["prediction_probability"].(float64) != 1.0 {
		t.Fatalf("expected probability 1.0, got %v", payload["prediction_probability"])
	}
	if payload["prediction_confidence"] != "100.00%" {
		t.Fatalf("expected confidence 100.00%%, got %v", payload["prediction_confidence"])
	}
	features, ok := payload["input_features"].(map[string]interface{})
	if !ok || features[ml.ColAccountLength].(float64) != 138 {
		t.Fatalf("expected input features echoed, got %v", payload["input_features"])
	}
	if payload["prediction_message"] != "Customer is likely to churn" {
		t.Fatalf("unexpected prediction message: %v", payload["prediction_message"])
	}
}

func TestPredictValidationErrorIs400(t *testing.T) {
	service := inference.New(0)
	service.MakeReady(&fakeModel{p: 0.5}, identityScaler(), nil, "run-7", 0.5)
	mux := newTestMux(service)

	incomplete := testPayload()
	delete(incomplete, ml.ColState)
	w := postPredict(t, mux, map[string]interface{}{"features": incomplete})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["message"] != "prediction failed" {
		t.Fatalf("error payload should mirror success shape, got %v", payload)
	}
	if payload["error"] == nil || payload["error"] == "" {
		t.Fatal("expected error description")
	}
}

func TestPredictUnknownCategoricalIs400(t *testing.T) {
	service := inference.New(0)
	service.MakeReady(&fakeModel{p: 0.5}, identityScaler(), nil, "run-7", 0.5)
	mux := newTestMux(service)

	bad := testPayload()
	bad[ml.ColState] = "ZZ"
	w := postPredict(t, mux, map[string]interface{}{"features": bad})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPredictNotReadyIs503(t *testing.T) {
	mux := newTestMux(inference.New(0))

	w := postPredict(t, mux, map[string]interface{}{"features": testPayload()})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestPredictModelFailureIs500(t *testing.T) {
	service := inference.New(0)
	service.MakeReady(&fakeModel{err: errModel}, identityScaler(), nil, "run-7", 0.5)
	mux := newTestMux(service)

	w := postPredict(t, mux, map[string]interface{}{"features": testPayload()})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

var errModel = &modelError{}

type modelError struct{}

func (e *modelError) Error() string { return "forward pass exploded" }

func TestPredictMalformedBodyIs400(t *testing.T) {
	service := inference.New(0)
	service.MakeReady(&fakeModel{p: 0.5}, identityScaler(), nil, "run-7", 0.5)
	mux := newTestMux(service)

	req := httptest.NewRequest(http.MethodPost, "/predict/", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
