// Package db keeps experiment tracking and the prediction audit trail in
// SQLite.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite handle. One Store per process.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and ensures the schema.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_runs (
        id INTEGER PRIMARY KEY,
        run_id TEXT NOT NULL,
        model_type TEXT,
        accuracy REAL,
        precision REAL,
        recall REAL,
        data_points INTEGER,
        threshold REAL,
        trained_at DATETIME,
        UNIQUE(run_id)
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        row_index INTEGER,
        input TEXT,
        predicted_label INTEGER,
        probability REAL,
        confidence REAL,
        latency_ms INTEGER,
        error TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainingRun is one experiment-tracking record.
type TrainingRun struct {
	RunID      string    `json:"run_id"`
	ModelType  string    `json:"model_type"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	DataPoints int       `json:"data_points"`
	Threshold  float64   `json:"threshold"`
	TrainedAt  time.Time `json:"trained_at"`
}

// RecordTrainingRun upserts the run's evaluation metrics.
func (s *Store) RecordTrainingRun(run TrainingRun) error {
	_, err := s.db.Exec(`
        INSERT INTO training_runs (run_id, model_type, accuracy, precision, recall, data_points, threshold, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            model_type = excluded.model_type,
            accuracy = excluded.accuracy,
            precision = excluded.precision,
            recall = excluded.recall,
            data_points = excluded.data_points,
            threshold = excluded.threshold,
            trained_at = excluded.trained_at`,
		run.RunID, run.ModelType, run.Accuracy, run.Precision, run.Recall,
		run.DataPoints, run.Threshold, run.TrainedAt)
	return err
}

// ListTrainingRuns returns the most recent runs, newest first.
func (s *Store) ListTrainingRuns(limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT run_id, model_type, accuracy, precision, recall, data_points, threshold, trained_at
        FROM training_runs ORDER BY trained_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.RunID, &run.ModelType, &run.Accuracy, &run.Precision,
			&run.Recall, &run.DataPoints, &run.Threshold, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PredictionRecord is one audit row.
type PredictionRecord struct {
	RequestID   string
	RowIndex    *int
	Input       map[string]interface{}
	Label       int
	Probability float64
	Confidence  float64
	LatencyMS   int64
	Err         string
	At          time.Time
}

// InsertPrediction writes one audit row.
func (s *Store) InsertPrediction(record PredictionRecord) error {
	input, err := json.Marshal(record.Input)
	if err != nil {
		input = []byte("{}")
	}
	var rowIndex interface{}
	if record.RowIndex != nil {
		rowIndex = *record.RowIndex
	}
	_, err = s.db.Exec(`
        INSERT INTO predictions (request_id, row_index, input, predicted_label, probability, confidence, latency_ms, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID, rowIndex, string(input), record.Label,
		record.Probability, record.Confidence, record.LatencyMS, record.Err, record.At)
	return err
}
