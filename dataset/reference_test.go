package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"churnserve/ml"
)

const testHeader = "State,Account length,Area code,International plan,Voice mail plan," +
	"Number vmail messages,Total day minutes,Total day calls,Total day charge," +
	"Total eve minutes,Total eve calls,Total eve charge," +
	"Total night minutes,Total night calls,Total night charge," +
	"Total intl minutes,Total intl calls,Total intl charge," +
	"Customer service calls,Churn"

func writeTestCSV(t *testing.T, rows ...string) string {
	t.Helper()
	content := testHeader + "\n"
	for _, row := range rows {
		content += row + "\n"
	}
	path := filepath.Join(t.TempDir(), "churn.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestOpenAndRowLookup(t *testing.T) {
	path := writeTestCSV(t,
		"KS,128,415,No,Yes,25,265.1,110,45.07,197.4,99,16.78,244.7,91,11.01,10,3,2.7,1,False",
		"NY,138,408,Yes,No,0,241.8,93,41.11,170.1,99,14.46,221.1,104,9.95,11.8,5,3.19,3,True",
	)

	ref, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if ref.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", ref.Len())
	}

	record, err := ref.Row(1)
	if err != nil {
		t.Fatalf("row lookup failed: %v", err)
	}
	if record.State != "NY" || record.AccountLength != 138 || record.AreaCode != 408 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.TotalDayMinutes != 241.8 {
		t.Fatalf("expected 241.8 day minutes, got %v", record.TotalDayMinutes)
	}

	// Cached parse must return the same record.
	again, err := ref.Row(1)
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if again != record {
		t.Fatalf("cache returned different record: %+v", again)
	}
}

func TestRowOutOfRange(t *testing.T) {
	path := writeTestCSV(t,
		"KS,128,415,No,Yes,25,265.1,110,45.07,197.4,99,16.78,244.7,91,11.01,10,3,2.7,1,False",
	)
	ref, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, err = ref.Row(5)
	var validationErr *ml.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := ref.Row(-1); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for negative index, got %v", err)
	}
}

func TestLabelsAndRecords(t *testing.T) {
	path := writeTestCSV(t,
		"KS,128,415,No,Yes,25,265.1,110,45.07,197.4,99,16.78,244.7,91,11.01,10,3,2.7,1,False",
		"NY,138,408,Yes,No,0,241.8,93,41.11,170.1,99,14.46,221.1,104,9.95,11.8,5,3.19,3,True",
	)
	ref, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	records, labels, err := ref.Records()
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if len(records) != 2 || len(labels) != 2 {
		t.Fatalf("expected 2 records and labels, got %d/%d", len(records), len(labels))
	}
	if labels[0] != 0 || labels[1] != 1 {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

func TestOpenRejectsMissingColumn(t *testing.T) {
	content := "State,Account length\nKS,128\n"
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestCleanerRejectsBadRows(t *testing.T) {
	records := []ml.CustomerRecord{
		{State: "KS", InternationalPlan: "No", VoiceMailPlan: "Yes", TotalDayMinutes: 100},
		{State: "ZZ", InternationalPlan: "No", VoiceMailPlan: "Yes", TotalDayMinutes: 100},
		{State: "NY", InternationalPlan: "No", VoiceMailPlan: "No", TotalDayMinutes: -5},
	}
	labels := []int{0, 1, 1}

	clean, cleanLabels, stats := NewCleaner().Clean(records, labels)
	if stats.TotalProcessed != 3 || stats.Passed != 1 || stats.Rejected != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(clean) != 1 || clean[0].State != "KS" {
		t.Fatalf("unexpected surviving rows: %+v", clean)
	}
	if len(cleanLabels) != 1 || cleanLabels[0] != 0 {
		t.Fatalf("unexpected surviving labels: %v", cleanLabels)
	}
	if stats.Issues["category"] == 0 || stats.Issues["range"] == 0 {
		t.Fatalf("expected both rules to fire: %v", stats.Issues)
	}
}

func TestSplitRespectsRatio(t *testing.T) {
	features := make([][]float64, 10)
	labels := make([]int, 10)
	for i := range features {
		features[i] = []float64{float64(i)}
		labels[i] = i % 2
	}

	trainX, trainY, testX, testY := Split(features, labels, 0.2, 1)
	if len(trainX) != 8 || len(testX) != 2 {
		t.Fatalf("unexpected split sizes: %d/%d", len(trainX), len(testX))
	}
	if len(trainY) != len(trainX) || len(testY) != len(testX) {
		t.Fatal("labels out of step with features")
	}
}
