// Package artifact persists trained (model, scaler) pairs keyed by training
// run and resolves the active pair for serving.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"churnserve/ml"
)

const (
	manifestName = "manifest.json"
	modelName    = "model.json"
	scalerName   = "scaler.json"
)

// ErrNotFound means no valid artifact pair has been published yet.
var ErrNotFound = errors.New("no model artifact pair found")

// CorruptError means the active pair exists but cannot be deserialized.
type CorruptError struct {
	RunID string
	Err   error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("artifact pair for run %s is corrupt: %v", e.RunID, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Manifest marks the active run. The decision threshold travels with the
// artifacts so serving never hard-codes a calibrated value.
type Manifest struct {
	ActiveRun string    `json:"active_run"`
	SavedAt   time.Time `json:"saved_at"`
	Threshold float64   `json:"threshold,omitempty"`
}

// Store reads and writes artifact pairs under a single directory:
//
//	<dir>/<run_id>/model.json
//	<dir>/<run_id>/scaler.json
//	<dir>/manifest.json
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Save writes both artifacts under a staging directory, renames it into
// place, then updates the manifest. A reader resolving through the manifest
// can never observe a model without its matching scaler.
func (s *Store) Save(model *ml.Network, scaler *ml.Scaler, runID string, threshold float64) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if !signaturesMatch(model.Columns, scaler.Columns) {
		return &ml.ConfigurationError{Reason: "model and scaler feature signatures disagree"}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	staging := filepath.Join(s.dir, runID+".tmp")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := model.Save(filepath.Join(staging, modelName)); err != nil {
		return err
	}
	if err := scaler.Save(filepath.Join(staging, scalerName)); err != nil {
		return err
	}

	final := filepath.Join(s.dir, runID)
	if err := os.RemoveAll(final); err != nil {
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		return err
	}

	return s.writeManifest(Manifest{
		ActiveRun: runID,
		SavedAt:   time.Now().UTC(),
		Threshold: threshold,
	})
}

// Load resolves the active run through the manifest and reads its pair.
// The feature-column signatures of both artifacts must agree.
func (s *Store) Load() (*ml.Network, *ml.Scaler, Manifest, error) {
	manifest, err := s.readManifest()
	if err != nil {
		return nil, nil, Manifest{}, err
	}

	runDir := filepath.Join(s.dir, manifest.ActiveRun)
	if _, err := os.Stat(runDir); err != nil {
		return nil, nil, Manifest{}, fmt.Errorf("%w: active run %s has no artifacts", ErrNotFound, manifest.ActiveRun)
	}

	model := ml.NewNetwork(nil, ml.DefaultNetworkConfig())
	if err := model.Load(filepath.Join(runDir, modelName)); err != nil {
		return nil, nil, Manifest{}, &CorruptError{RunID: manifest.ActiveRun, Err: err}
	}
	scaler, err := ml.LoadScaler(filepath.Join(runDir, scalerName))
	if err != nil {
		return nil, nil, Manifest{}, &CorruptError{RunID: manifest.ActiveRun, Err: err}
	}

	if !signaturesMatch(model.Columns, scaler.Columns) {
		return nil, nil, Manifest{}, &ml.ConfigurationError{
			Reason: fmt.Sprintf("run %s: model and scaler feature signatures disagree", manifest.ActiveRun),
		}
	}

	return model, scaler, manifest, nil
}

// Promote marks an already-saved run as active.
func (s *Store) Promote(runID string, threshold float64) error {
	runDir := filepath.Join(s.dir, runID)
	if _, err := os.Stat(filepath.Join(runDir, modelName)); err != nil {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if _, err := os.Stat(filepath.Join(runDir, scalerName)); err != nil {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return s.writeManifest(Manifest{
		ActiveRun: runID,
		SavedAt:   time.Now().UTC(),
		Threshold: threshold,
	})
}

// Runs lists run ids present on disk, newest first by modification time.
func (s *Store) Runs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type runInfo struct {
		id      string
		modTime time.Time
	}
	runs := make([]runInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, runInfo{id: entry.Name(), modTime: info.ModTime()})
	}
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			if runs[j].modTime.After(runs[i].modTime) {
				runs[i], runs[j] = runs[j], runs[i]
			}
		}
	}
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.id
	}
	return ids, nil
}

func (s *Store) writeManifest(manifest Manifest) error {
	payload, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, manifestName))
}

func (s *Store) readManifest() (Manifest, error) {
	payload, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNotFound
		}
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return Manifest{}, &CorruptError{Err: err}
	}
	if manifest.ActiveRun == "" {
		return Manifest{}, ErrNotFound
	}
	return manifest, nil
}

func signaturesMatch(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
