package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Classifier is a binary classifier over numeric feature vectors. Any
// implementation can back a Model.
type Classifier interface {
	// Fit trains on feature rows x with labels y (true = failed)
	Fit(x [][]float64, y []bool) error

	// Probability returns the estimated probability of the positive class
	Probability(x []float64) float64
}

// ClassifierFactory creates an unfitted classifier seeded for reproducibility
type ClassifierFactory func(seed int64) Classifier

var errNotFitted = errors.New("classifier not fitted")

// LogisticRegression is fitted with stochastic gradient descent on
// standardized features. The visiting order of samples in each epoch is
// shuffled from Seed, so a given seed always yields the same weights.
type LogisticRegression struct {
	Seed         int64
	Epochs       int
	LearningRate float64
	L2           float64

	weights []float64
	bias    float64
	mean    []float64
	scale   []float64
}

// Defaults for NewLogisticRegression
const (
	DefaultEpochs       = 300
	DefaultLearningRate = 0.05
	DefaultL2           = 0.001
)

// NewLogisticRegression returns a classifier with default hyperparameters
func NewLogisticRegression(seed int64) Classifier {
	return &LogisticRegression{
		Seed:         seed,
		Epochs:       DefaultEpochs,
		LearningRate: DefaultLearningRate,
		L2:           DefaultL2,
	}
}

// Fit implements Classifier
func (lr *LogisticRegression) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return fmt.Errorf("no samples to fit")
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d samples but %d labels", len(x), len(y))
	}
	dims := len(x[0])
	for i, row := range x {
		if len(row) != dims {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), dims)
		}
	}

	lr.mean, lr.scale = standardization(x, dims)
	scaled := make([][]float64, len(x))
	for i, row := range x {
		scaled[i] = lr.standardize(row)
	}

	weights := make([]float64, dims)
	bias := 0.0
	rng := rand.New(rand.NewSource(lr.Seed))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < lr.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			p := sigmoid(bias + dot(weights, scaled[i]))
			target := 0.0
			if y[i] {
				target = 1.0
			}
			g := p - target
			for k := range weights {
				weights[k] -= lr.LearningRate * (g*scaled[i][k] + lr.L2*weights[k])
			}
			bias -= lr.LearningRate * g
		}
	}

	lr.weights = weights
	lr.bias = bias
	return nil
}

// Probability implements Classifier
func (lr *LogisticRegression) Probability(x []float64) float64 {
	if lr.weights == nil {
		panic(errNotFitted)
	}
	return sigmoid(lr.bias + dot(lr.weights, lr.standardize(x)))
}

func (lr *LogisticRegression) standardize(x []float64) []float64 {
	out := make([]float64, len(x))
	for k, v := range x {
		out[k] = (v - lr.mean[k]) / lr.scale[k]
	}
	return out
}

// standardization returns per-feature mean and population standard deviation.
// Constant features get a scale of 1.
func standardization(x [][]float64, dims int) (mean, scale []float64) {
	mean = make([]float64, dims)
	scale = make([]float64, dims)
	n := float64(len(x))

	for _, row := range x {
		for k, v := range row {
			mean[k] += v
		}
	}
	for k := range mean {
		mean[k] /= n
	}
	for _, row := range x {
		for k, v := range row {
			d := v - mean[k]
			scale[k] += d * d
		}
	}
	for k := range scale {
		scale[k] = math.Sqrt(scale[k] / n)
		if scale[k] == 0 {
			scale[k] = 1
		}
	}
	return mean, scale
}

func sigmoid(z float64) float64 {
	// Clamp extreme values to avoid overflow
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
