// Package risk estimates how likely each test is to fail on its next run,
// from historical code churn and recent failure counts.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mslinn/testintel/pkg/dataset"
)

var (
	// ErrUntrainedModel is returned by Predict before a successful Train.
	// It signals a programming error and callers should treat it as fatal.
	ErrUntrainedModel = errors.New("risk model has not been trained")

	// ErrNoTrainingData is returned when Train is given no rows
	ErrNoTrainingData = errors.New("no training data")

	// ErrInvalidProbability is returned when a classifier produces a value outside [0,1]
	ErrInvalidProbability = errors.New("classifier returned an invalid probability")
)

// DefaultSeed seeds the classifier unless WithSeed overrides it
const DefaultSeed int64 = 42

// Entry is a test with its predicted failure probability
type Entry struct {
	TestName        string
	FailProbability float64
}

// Probabilities maps each test name to its highest predicted probability.
// A name listed twice in the dataset is ranked by that value.
func Probabilities(entries []Entry) map[string]float64 {
	prob := make(map[string]float64, len(entries))
	for _, e := range entries {
		if p, ok := prob[e.TestName]; !ok || e.FailProbability > p {
			prob[e.TestName] = e.FailProbability
		}
	}
	return prob
}

// Model is a caller-owned failure-risk model. Independent models (one per
// suite, say) can coexist; nothing is shared between them.
type Model struct {
	seed          int64
	newClassifier ClassifierFactory
	state         atomic.Pointer[fittedState]
}

type fittedState struct {
	classifier Classifier
	rows       []dataset.Row
}

// Option configures a Model
type Option func(*Model)

// WithSeed fixes the classifier seed
func WithSeed(seed int64) Option {
	return func(m *Model) {
		m.seed = seed
	}
}

// WithClassifier replaces the default logistic regression
func WithClassifier(factory ClassifierFactory) Option {
	return func(m *Model) {
		m.newClassifier = factory
	}
}

// NewModel creates an untrained model
func NewModel(opts ...Option) *Model {
	m := &Model{
		seed:          DefaultSeed,
		newClassifier: NewLogisticRegression,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed returns the seed passed to the classifier
func (m *Model) Seed() int64 {
	return m.seed
}

// Trained returns true once Train has succeeded
func (m *Model) Trained() bool {
	return m.state.Load() != nil
}

// Train fits a fresh classifier on (related_code_churn, failures_last_10_runs)
// labeled by last_run_status == fail. The previous fit stays in place unless
// the new one succeeds.
func (m *Model) Train(rows []dataset.Row) error {
	if len(rows) == 0 {
		return ErrNoTrainingData
	}

	x := make([][]float64, len(rows))
	y := make([]bool, len(rows))
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		x[i] = row.Features()
		y[i] = row.Failed()
	}

	classifier := m.newClassifier(m.seed)
	if err := classifier.Fit(x, y); err != nil {
		return fmt.Errorf("failed to fit classifier: %w", err)
	}

	kept := make([]dataset.Row, len(rows))
	copy(kept, rows)
	m.state.Store(&fittedState{classifier: classifier, rows: kept})
	return nil
}

// Predict returns an entry for every training row whose name was requested,
// in dataset order. Requested names with no history produce no entry.
func (m *Model) Predict(testNames []string) ([]Entry, error) {
	state := m.state.Load()
	if state == nil {
		return nil, ErrUntrainedModel
	}

	wanted := make(map[string]struct{}, len(testNames))
	for _, name := range testNames {
		wanted[name] = struct{}{}
	}

	entries := []Entry{}
	for _, row := range state.rows {
		if _, ok := wanted[row.TestName]; !ok {
			continue
		}
		p := state.classifier.Probability(row.Features())
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: %v for %s", ErrInvalidProbability, p, row.TestName)
		}
		entries = append(entries, Entry{TestName: row.TestName, FailProbability: p})
	}

	return entries, nil
}
