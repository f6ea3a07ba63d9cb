package inference

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"churnserve/dataset"
	"churnserve/ml"
)

func testReference(t *testing.T) *dataset.Reference {
	t.Helper()
	content := "State,Account length,Area code,International plan,Voice mail plan," +
		"Number vmail messages,Total day minutes,Total day calls,Total day charge," +
		"Total eve minutes,Total eve calls,Total eve charge," +
		"Total night minutes,Total night calls,Total night charge," +
		"Total intl minutes,Total intl calls,Total intl charge," +
		"Customer service calls,Churn\n" +
		"KS,128,415,No,Yes,25,265.1,110,45.07,197.4,99,16.78,244.7,91,11.01,10,3,2.7,1,False\n" +
		"NY,138,408,Yes,No,0,241.8,93,41.11,170.1,99,14.46,221.1,104,9.95,11.8,5,3.19,3,True\n"
	path := filepath.Join(t.TempDir(), "churn.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ref, err := dataset.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return ref
}

func TestPredictByRowIndex(t *testing.T) {
	service := New(0)
	service.MakeReady(&fakeModel{p: 1.0}, identityScaler(), testReference(t), "test-run", 0.5)

	index := 1
	result, err := service.Predict(Request{RowIndex: &index})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Label != 1 || result.Probability != 1.0 {
		t.Fatalf("unexpected result: label=%d p=%v", result.Label, result.Probability)
	}
	if result.ConfidenceText != "100.00%" {
		t.Fatalf("expected 100.00%%, got %s", result.ConfidenceText)
	}
	if result.Features["State"] != "NY" {
		t.Fatalf("expected row 1 features echoed, got %v", result.Features["State"])
	}
	if result.RowIndex == nil || *result.RowIndex != 1 {
		t.Fatalf("expected row index echoed, got %v", result.RowIndex)
	}
}

func TestPredictRowIndexOutOfRange(t *testing.T) {
	service := New(0)
	service.MakeReady(&fakeModel{p: 0.5}, identityScaler(), testReference(t), "test-run", 0.5)

	index := 50
	_, err := service.Predict(Request{RowIndex: &index})
	var validationErr *ml.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
