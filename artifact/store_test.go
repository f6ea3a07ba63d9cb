package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"churnserve/ml"
)

func trainedPair(t *testing.T) (*ml.Network, *ml.Scaler) {
	t.Helper()
	columns := []string{"a", "b"}
	features := [][]float64{
		{1, -1}, {2, -2}, {-1, 1}, {-2, 2},
		{1.5, -0.5}, {-1.5, 0.5}, {0.5, -1.5}, {-0.5, 1.5},
	}
	labels := []int{1, 1, 0, 0, 1, 0, 1, 0}

	scaler, err := ml.FitScaler(columns, features)
	if err != nil {
		t.Fatalf("fit scaler failed: %v", err)
	}
	network := ml.NewNetwork(columns, ml.NetworkConfig{
		HiddenSize:   4,
		Epochs:       100,
		LearningRate: 0.1,
		Seed:         3,
	})
	if err := network.Train(features, labels); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	return network, scaler
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())
	model, scaler := trainedPair(t)

	if err := store.Save(model, scaler, "run-1", 0.4); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loadedModel, loadedScaler, manifest, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if manifest.ActiveRun != "run-1" {
		t.Fatalf("expected active run run-1, got %s", manifest.ActiveRun)
	}
	if manifest.Threshold != 0.4 {
		t.Fatalf("expected threshold 0.4, got %v", manifest.Threshold)
	}

	input := []float64{0.7, -0.7}
	want, err := model.PredictProba(input)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	got, err := loadedModel.PredictProba(input)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if got != want {
		t.Fatalf("loaded model diverges: %v vs %v", got, want)
	}
	if len(loadedScaler.Columns) != 2 {
		t.Fatalf("unexpected scaler columns: %v", loadedScaler.Columns)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, _, _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptModel(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	model, scaler := trainedPair(t)
	if err := store.Save(model, scaler, "run-1", 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	modelPath := filepath.Join(dir, "run-1", "model.json")
	if err := os.WriteFile(modelPath, []byte("not json"), 0o600); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	_, _, _, err := store.Load()
	var corruptErr *CorruptError
	if !errors.As(err, &corruptErr) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
}

func TestLoadSignatureMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	model, scaler := trainedPair(t)
	if err := store.Save(model, scaler, "run-1", 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Overwrite the scaler with one fitted against different columns.
	other, err := ml.FitScaler([]string{"a", "c"}, [][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("fit scaler failed: %v", err)
	}
	if err := other.Save(filepath.Join(dir, "run-1", "scaler.json")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	_, _, _, err = store.Load()
	var configErr *ml.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestSaveRejectsMismatchedPair(t *testing.T) {
	store := NewStore(t.TempDir())
	model, _ := trainedPair(t)
	other, err := ml.FitScaler([]string{"a", "c"}, [][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("fit scaler failed: %v", err)
	}

	saveErr := store.Save(model, other, "run-1", 0)
	var configErr *ml.ConfigurationError
	if !errors.As(saveErr, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", saveErr)
	}
}

func TestPromote(t *testing.T) {
	store := NewStore(t.TempDir())
	model, scaler := trainedPair(t)
	if err := store.Save(model, scaler, "run-1", 0.5); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(model, scaler, "run-2", 0.5); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.Promote("run-1", 0.6); err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	_, _, manifest, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if manifest.ActiveRun != "run-1" || manifest.Threshold != 0.6 {
		t.Fatalf("unexpected manifest after promote: %+v", manifest)
	}

	if err := store.Promote("missing-run", 0.5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
