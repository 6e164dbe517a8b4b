package risk

import (
	"errors"
	"sort"
	"testing"

	"github.com/mslinn/testintel/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history() []dataset.Row {
	return []dataset.Row{
		{TestName: "test_checkout", RelatedCodeChurn: 80, FailuresLast10Runs: 6, LastRunStatus: dataset.StatusFail},
		{TestName: "test_login", RelatedCodeChurn: 5, FailuresLast10Runs: 0, LastRunStatus: dataset.StatusPass},
		{TestName: "test_cart_add", RelatedCodeChurn: 60, FailuresLast10Runs: 4, LastRunStatus: dataset.StatusFail},
		{TestName: "test_profile", RelatedCodeChurn: 2, FailuresLast10Runs: 0, LastRunStatus: dataset.StatusPass},
		{TestName: "test_search", RelatedCodeChurn: 30, FailuresLast10Runs: 2, LastRunStatus: dataset.StatusPass},
		{TestName: "test_payment", RelatedCodeChurn: 70, FailuresLast10Runs: 5, LastRunStatus: dataset.StatusFail},
		{TestName: "test_logout", RelatedCodeChurn: 1, FailuresLast10Runs: 1, LastRunStatus: dataset.StatusPass},
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	t.Parallel()

	m := NewModel()
	assert.False(t, m.Trained())

	_, err := m.Predict([]string{"test_login"})
	assert.True(t, errors.Is(err, ErrUntrainedModel))
}

func TestTrainRejectsEmpty(t *testing.T) {
	t.Parallel()

	err := NewModel().Train(nil)
	assert.True(t, errors.Is(err, ErrNoTrainingData))
}

func TestTrainRejectsMalformedRows(t *testing.T) {
	t.Parallel()

	rows := history()
	rows[3].LastRunStatus = "unknown"

	m := NewModel()
	err := m.Train(rows)
	assert.True(t, errors.Is(err, dataset.ErrMalformedRow))
	assert.False(t, m.Trained())
}

func TestPredictFiltersToRequestedInDatasetOrder(t *testing.T) {
	t.Parallel()

	m := NewModel()
	require.NoError(t, m.Train(history()))

	entries, err := m.Predict([]string{"test_search", "test_unknown", "test_checkout"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "test_checkout", entries[0].TestName)
	assert.Equal(t, "test_search", entries[1].TestName)

	for _, e := range entries {
		assert.GreaterOrEqual(t, e.FailProbability, 0.0)
		assert.LessOrEqual(t, e.FailProbability, 1.0)
	}
}

func TestPredictRanksRiskyTestsFirst(t *testing.T) {
	t.Parallel()

	m := NewModel()
	require.NoError(t, m.Train(history()))

	entries, err := m.Predict(dataset.Names(history()))
	require.NoError(t, err)

	prob := map[string]float64{}
	for _, e := range entries {
		prob[e.TestName] = e.FailProbability
	}
	assert.Greater(t, prob["test_checkout"], prob["test_login"])
	assert.Greater(t, prob["test_payment"], prob["test_profile"])
	assert.Greater(t, prob["test_cart_add"], 0.5)
	assert.Less(t, prob["test_profile"], 0.5)
}

func TestTrainPredictIsDeterministic(t *testing.T) {
	t.Parallel()

	names := dataset.Names(history())
	run := func() []Entry {
		m := NewModel(WithSeed(7))
		require.NoError(t, m.Train(history()))
		entries, err := m.Predict(names)
		require.NoError(t, err)
		return entries
	}

	first := run()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}
}

func TestHighestRiskRanksFirstForAnySeed(t *testing.T) {
	t.Parallel()

	for _, seed := range []int64{1, DefaultSeed, 1234} {
		m := NewModel(WithSeed(seed))
		require.NoError(t, m.Train(history()))
		entries, err := m.Predict(dataset.Names(history()))
		require.NoError(t, err)

		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].FailProbability > entries[j].FailProbability
		})
		assert.Equal(t, "test_checkout", entries[0].TestName, "seed=%d", seed)
	}
}

type constantClassifier struct {
	p       float64
	fitErr  error
	fitSeen int
}

func (c *constantClassifier) Fit(x [][]float64, y []bool) error {
	c.fitSeen = len(x)
	return c.fitErr
}

func (c *constantClassifier) Probability(x []float64) float64 {
	return c.p
}

func TestWithClassifier(t *testing.T) {
	t.Parallel()

	stub := &constantClassifier{p: 0.25}
	var gotSeed int64
	m := NewModel(WithSeed(99), WithClassifier(func(seed int64) Classifier {
		gotSeed = seed
		return stub
	}))

	require.NoError(t, m.Train(history()))
	assert.Equal(t, int64(99), gotSeed)
	assert.Equal(t, len(history()), stub.fitSeen)

	entries, err := m.Predict([]string{"test_login"})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{TestName: "test_login", FailProbability: 0.25}}, entries)
}

func TestFailedRetrainKeepsPreviousFit(t *testing.T) {
	t.Parallel()

	calls := 0
	m := NewModel(WithClassifier(func(seed int64) Classifier {
		calls++
		if calls == 1 {
			return &constantClassifier{p: 0.8}
		}
		return &constantClassifier{fitErr: errors.New("diverged")}
	}))

	require.NoError(t, m.Train(history()))
	require.Error(t, m.Train(history()[:2]))

	entries, err := m.Predict(dataset.Names(history()))
	require.NoError(t, err)
	assert.Len(t, entries, len(history()))
	assert.Equal(t, 0.8, entries[0].FailProbability)
}

func TestRetrainReplacesRows(t *testing.T) {
	t.Parallel()

	m := NewModel()
	require.NoError(t, m.Train(history()))
	require.NoError(t, m.Train(history()[:3]))

	entries, err := m.Predict([]string{"test_payment", "test_login"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "test_login", entries[0].TestName)
}

func TestInvalidProbability(t *testing.T) {
	t.Parallel()

	m := NewModel(WithClassifier(func(int64) Classifier {
		return &constantClassifier{p: 1.5}
	}))
	require.NoError(t, m.Train(history()))

	_, err := m.Predict([]string{"test_login"})
	assert.True(t, errors.Is(err, ErrInvalidProbability))
}

func TestLogisticRegressionFitErrors(t *testing.T) {
	t.Parallel()

	lr := NewLogisticRegression(DefaultSeed)
	assert.Error(t, lr.Fit(nil, nil))
	assert.Error(t, lr.Fit([][]float64{{1, 2}}, []bool{true, false}))
	assert.Error(t, lr.Fit([][]float64{{1, 2}, {1}}, []bool{true, false}))
}

func TestLogisticRegressionConstantFeatures(t *testing.T) {
	t.Parallel()

	lr := NewLogisticRegression(DefaultSeed)
	require.NoError(t, lr.Fit(
		[][]float64{{3, 1}, {3, 1}, {3, 1}, {3, 1}},
		[]bool{true, false, false, false},
	))

	p := lr.Probability([]float64{3, 1})
	assert.InDelta(t, 0.25, p, 0.05)
}

func TestProbabilitiesKeepsHighest(t *testing.T) {
	t.Parallel()

	prob := Probabilities([]Entry{
		{TestName: "a", FailProbability: 0.2},
		{TestName: "b", FailProbability: 0.4},
		{TestName: "a", FailProbability: 0.7},
		{TestName: "a", FailProbability: 0.5},
	})
	assert.Equal(t, map[string]float64{"a": 0.7, "b": 0.4}, prob)
	assert.Empty(t, Probabilities(nil))
}
