// Command train runs the churn training pipeline: ingest and clean the
// reference dataset, fit the scaler, train the network, evaluate on a
// held-out split, and publish the (model, scaler) pair as the active
// artifact run.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"churnserve/artifact"
	"churnserve/dataset"
	"churnserve/db"
	"churnserve/ml"
)

func main() {
	dataPath := flag.String("data", "./data/churn.csv", "churn dataset CSV")
	artifactDir := flag.String("artifacts", "./artifacts", "artifact store directory")
	dbPath := flag.String("db", "./data/churnserve.db", "experiment tracking database (empty to skip)")
	runID := flag.String("run_id", "", "training run id (default: timestamp)")
	hidden := flag.Int("hidden", 16, "hidden layer size")
	epochs := flag.Int("epochs", 200, "training epochs")
	learningRate := flag.Float64("lr", 0.05, "learning rate")
	testRatio := flag.Float64("test_ratio", 0.2, "held-out evaluation ratio")
	seed := flag.Int64("seed", 42, "random seed")
	threshold := flag.Float64("threshold", 0.5, "decision threshold recorded with the run")
	flag.Parse()

	if *runID == "" {
		*runID = time.Now().UTC().Format("20060102-150405")
	}

	ref, err := dataset.Open(*dataPath)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}
	records, labels, err := ref.Records()
	if err != nil {
		log.Fatalf("failed to read dataset: %v", err)
	}

	records, labels, stats := dataset.NewCleaner().Clean(records, labels)
	log.Printf("cleaned dataset: %d passed, %d rejected", stats.Passed, stats.Rejected)
	if len(records) == 0 {
		log.Fatal("no usable rows after cleaning")
	}

	raw := make([][]float64, len(records))
	for i, record := range records {
		vector, err := record.RawVector()
		if err != nil {
			log.Fatalf("row %d failed encoding after cleaning: %v", i, err)
		}
		raw[i] = vector
	}

	trainRaw, trainY, testRaw, testY := dataset.Split(raw, labels, *testRatio, *seed)

	// The scaler is fitted on the training split only; serving reuses it
	// through the artifact pair.
	scaler, err := ml.FitScaler(ml.FeatureColumns(), trainRaw)
	if err != nil {
		log.Fatalf("failed to fit scaler: %v", err)
	}
	trainX, err := transformAll(scaler, trainRaw)
	if err != nil {
		log.Fatalf("failed to scale training split: %v", err)
	}
	testX, err := transformAll(scaler, testRaw)
	if err != nil {
		log.Fatalf("failed to scale test split: %v", err)
	}

	model := ml.NewNetwork(ml.FeatureColumns(), ml.NetworkConfig{
		HiddenSize:   *hidden,
		Epochs:       *epochs,
		LearningRate: *learningRate,
		Seed:         *seed,
	})
	if err := model.Train(trainX, trainY); err != nil {
		log.Fatalf("training failed: %v", err)
	}

	accuracy, precision, recall := evaluate(model, testX, testY, *threshold)
	log.Printf("run %s: accuracy=%.3f precision=%.3f recall=%.3f (test n=%d)",
		*runID, accuracy, precision, recall, len(testY))

	store := artifact.NewStore(*artifactDir)
	if err := store.Save(model, scaler, *runID, *threshold); err != nil {
		log.Fatalf("failed to save artifacts: %v", err)
	}

	if *dbPath != "" {
		tracking, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open tracking database: %v", err)
		}
		defer tracking.Close()
		err = tracking.RecordTrainingRun(db.TrainingRun{
			RunID:      *runID,
			ModelType:  "feedforward",
			Accuracy:   accuracy,
			Precision:  precision,
			Recall:     recall,
			DataPoints: len(trainY),
			Threshold:  *threshold,
			TrainedAt:  time.Now().UTC(),
		})
		if err != nil {
			log.Fatalf("failed to record training run: %v", err)
		}
	}

	fmt.Printf("run %s published to %s\n", *runID, *artifactDir)
}

func transformAll(scaler *ml.Scaler, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := scaler.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

func evaluate(model *ml.Network, features [][]float64, labels []int, threshold float64) (accuracy, precision, recall float64) {
	if len(features) == 0 {
		return 0, 0, 0
	}
	var correct, truePos, falsePos, falseNeg int
	for i, x := range features {
		p, err := model.PredictProba(x)
		if err != nil {
			continue
		}
		predicted := 0
		if p >= threshold {
			predicted = 1
		}
		if predicted == labels[i] {
			correct++
		}
		switch {
		case predicted == 1 && labels[i] == 1:
			truePos++
		case predicted == 1 && labels[i] == 0:
			falsePos++
		case predicted == 0 && labels[i] == 1:
			falseNeg++
		}
	}
	accuracy = float64(correct) / float64(len(labels))
	if truePos+falsePos > 0 {
		precision = float64(truePos) / float64(truePos+falsePos)
	}
	if truePos+falseNeg > 0 {
		recall = float64(truePos) / float64(truePos+falseNeg)
	}
	return accuracy, precision, recall
}
