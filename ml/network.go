package ml

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
)

// NetworkConfig holds training hyperparameters. They are not persisted with
// the artifact; only the fitted weights and architecture are.
type NetworkConfig struct {
	HiddenSize   int
	Epochs       int
	LearningRate float64
	Seed         int64
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		HiddenSize:   16,
		Epochs:       200,
		LearningRate: 0.05,
		Seed:         42,
	}
}

// Network is a feed-forward binary classifier: one ReLU hidden layer and a
// sigmoid output. Weights are immutable after training/loading; the forward
// pass is safe for concurrent use.
type Network struct {
	Columns    []string    `json:"columns"`
	HiddenSize int         `json:"hidden_size"`
	W1         [][]float64 `json:"w1"`
	B1         []float64   `json:"b1"`
	W2         []float64   `json:"w2"`
	B2         float64     `json:"b2"`

	config NetworkConfig
}

func NewNetwork(columns []string, config NetworkConfig) *Network {
	if config.HiddenSize <= 0 {
		config.HiddenSize = DefaultNetworkConfig().HiddenSize
	}
	if config.Epochs <= 0 {
		config.Epochs = DefaultNetworkConfig().Epochs
	}
	if config.LearningRate <= 0 {
		config.LearningRate = DefaultNetworkConfig().LearningRate
	}
	return &Network{
		Columns:    append([]string(nil), columns...),
		HiddenSize: config.HiddenSize,
		config:     config,
	}
}

// Train fits the network on scaled feature vectors with {0,1} labels using
// per-sample gradient descent on the log loss.
func (n *Network) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	inputSize := len(features[0])
	if inputSize != len(n.Columns) {
		return errors.New("feature width does not match column signature")
	}
	for _, label := range labels {
		if label != 0 && label != 1 {
			return errors.New("labels must be 0 or 1")
		}
	}

	rnd := rand.New(rand.NewSource(n.config.Seed))
	n.initWeights(inputSize, rnd)

	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}

	lr := n.config.LearningRate
	for epoch := 0; epoch < n.config.Epochs; epoch++ {
		rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, idx := range order {
			n.step(features[idx], float64(labels[idx]), lr)
		}
	}
	return nil
}

func (n *Network) initWeights(inputSize int, rnd *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(inputSize+n.HiddenSize))
	n.W1 = make([][]float64, n.HiddenSize)
	n.B1 = make([]float64, n.HiddenSize)
	n.W2 = make([]float64, n.HiddenSize)
	n.B2 = 0
	for h := 0; h < n.HiddenSize; h++ {
		n.W1[h] = make([]float64, inputSize)
		for i := 0; i < inputSize; i++ {
			n.W1[h][i] = (rnd.Float64()*2 - 1) * limit
		}
		n.W2[h] = (rnd.Float64()*2 - 1) * limit
	}
}

// step runs one forward/backward pass for a single sample.
func (n *Network) step(x []float64, y, lr float64) {
	pre := make([]float64, n.HiddenSize)
	hidden := make([]float64, n.HiddenSize)
	for h := 0; h < n.HiddenSize; h++ {
		sum := n.B1[h]
		for i, v := range x {
			sum += n.W1[h][i] * v
		}
		pre[h] = sum
		if sum > 0 {
			hidden[h] = sum
		}
	}
	z := n.B2
	for h := 0; h < n.HiddenSize; h++ {
		z += n.W2[h] * hidden[h]
	}
	p := sigmoid(z)

	// dLoss/dz for sigmoid + log loss.
	dz := p - y
	for h := 0; h < n.HiddenSize; h++ {
		dh := dz * n.W2[h]
		n.W2[h] -= lr * dz * hidden[h]
		if pre[h] > 0 {
			for i, v := range x {
				n.W1[h][i] -= lr * dh * v
			}
			n.B1[h] -= lr * dh
		}
	}
	n.B2 -= lr * dz
}

// PredictProba runs the forward pass and returns the churn probability.
func (n *Network) PredictProba(features []float64) (float64, error) {
	if len(n.W1) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != len(n.Columns) {
		return 0, errors.New("feature width does not match column signature")
	}
	z := n.B2
	for h := 0; h < n.HiddenSize; h++ {
		sum := n.B1[h]
		for i, v := range features {
			sum += n.W1[h][i] * v
		}
		if sum > 0 {
			z += n.W2[h] * sum
		}
	}
	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, errors.New("forward pass produced NaN")
	}
	return p, nil
}

// Predict applies the default 0.5 threshold and returns label and
// probability.
func (n *Network) Predict(features []float64) (int, float64, error) {
	p, err := n.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := 0
	if p >= 0.5 {
		label = 1
	}
	return label, p, nil
}

// Save writes the architecture and weights as JSON.
func (n *Network) Save(path string) error {
	if len(n.W1) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a persisted network and validates its shape.
func (n *Network) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded Network
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Columns) == 0 || loaded.HiddenSize <= 0 ||
		len(loaded.W1) != loaded.HiddenSize ||
		len(loaded.B1) != loaded.HiddenSize ||
		len(loaded.W2) != loaded.HiddenSize {
		return errors.New("network parameters incomplete")
	}
	for _, row := range loaded.W1 {
		if len(row) != len(loaded.Columns) {
			return errors.New("network parameters incomplete")
		}
	}
	loaded.config = n.config
	*n = loaded
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
