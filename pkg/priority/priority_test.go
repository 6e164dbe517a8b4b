package priority

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mslinn/testintel/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAppendsTestsWithoutHistory(t *testing.T) {
	t.Parallel()

	predicted := []risk.Entry{
		{TestName: "B", FailProbability: 0.2},
		{TestName: "A", FailProbability: 0.9},
	}

	assert.Equal(t, []string{"A", "B", "C"}, Build(predicted, []string{"A", "B", "C"}))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		predicted []risk.Entry
		requested []string
		expected  []string
	}{
		{
			name:      "no predictions keeps requested order",
			requested: []string{"c", "a", "b"},
			expected:  []string{"c", "a", "b"},
		},
		{
			name: "ties keep predicted order",
			predicted: []risk.Entry{
				{TestName: "x", FailProbability: 0.5},
				{TestName: "y", FailProbability: 0.7},
				{TestName: "z", FailProbability: 0.5},
				{TestName: "w", FailProbability: 0.5},
			},
			requested: []string{"w", "x", "y", "z"},
			expected:  []string{"y", "x", "z", "w"},
		},
		{
			name: "missing tail keeps requested order",
			predicted: []risk.Entry{
				{TestName: "b", FailProbability: 0.1},
			},
			requested: []string{"d", "b", "a", "c"},
			expected:  []string{"b", "d", "a", "c"},
		},
		{
			name: "unrequested predictions are dropped",
			predicted: []risk.Entry{
				{TestName: "ghost", FailProbability: 0.99},
				{TestName: "a", FailProbability: 0.3},
			},
			requested: []string{"a"},
			expected:  []string{"a"},
		},
		{
			name: "duplicate predictions keep the highest",
			predicted: []risk.Entry{
				{TestName: "a", FailProbability: 0.1},
				{TestName: "b", FailProbability: 0.5},
				{TestName: "a", FailProbability: 0.8},
			},
			requested: []string{"a", "b"},
			expected:  []string{"a", "b"},
		},
		{
			name:      "duplicate requests appear once",
			requested: []string{"a", "b", "a"},
			expected:  []string{"a", "b"},
		},
		{
			name:     "nothing requested",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Build(tt.predicted, tt.requested))
		})
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	predicted := []risk.Entry{
		{TestName: "a", FailProbability: 0.1},
		{TestName: "b", FailProbability: 0.9},
	}
	Build(predicted, []string{"a", "b"})
	assert.Equal(t, "a", predicted[0].TestName)
}

// Every requested name appears exactly once, whatever subset was predicted.
func TestBuildTotality(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	names := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}

	for iter := 0; iter < 200; iter++ {
		requested := make([]string, 0, len(names))
		for _, n := range names {
			if rng.Intn(3) > 0 {
				requested = append(requested, n)
			}
		}

		var predicted []risk.Entry
		for _, n := range names {
			if rng.Intn(2) == 0 {
				predicted = append(predicted, risk.Entry{TestName: n, FailProbability: float64(rng.Intn(4)) / 4})
			}
		}

		got := Build(predicted, requested)
		gotSorted := append([]string(nil), got...)
		wantSorted := append([]string(nil), requested...)
		sort.Strings(gotSorted)
		sort.Strings(wantSorted)
		require.Equal(t, wantSorted, gotSorted, "iteration %d", iter)
	}
}

func TestSaveAndLoadOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ai_outputs", "prioritization_order.json")
	order := []string{"test_checkout", "test_login"}

	require.NoError(t, SaveOrder(path, order))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"test_checkout\",\n  \"test_login\"\n]", string(data))

	loaded, err := LoadOrder(path)
	require.NoError(t, err)
	assert.Equal(t, order, loaded)
}

func TestSaveEmptyOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, SaveOrder(path, nil))

	loaded, err := LoadOrder(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveOrderFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := SaveOrder(filepath.Join(blocker, "order.json"), []string{"a"})
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestLoadOrderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadOrder(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, ErrOrderNotFound))

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`["a", 3]`), 0644))
	_, err = LoadOrder(garbage)
	assert.True(t, errors.Is(err, ErrMalformedOrder))

	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, []byte(`["a", "b`), 0644))
	_, err = LoadOrder(truncated)
	assert.True(t, errors.Is(err, ErrMalformedOrder))
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	out := bytes.Buffer{}
	predicted := []risk.Entry{{TestName: "A", FailProbability: 0.9}}
	require.NoError(t, WriteReport(&out, []string{"A", "C"}, predicted))

	assert.Contains(t, out.String(), "1. A (fail probability 0.90)")
	assert.Contains(t, out.String(), "2. C (no history)")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteReportReturnsWriterError(t *testing.T) {
	t.Parallel()

	err := WriteReport(brokenWriter{}, []string{"A", "B"}, []risk.Entry{{TestName: "A", FailProbability: 0.5}})
	assert.EqualError(t, err, "disk full")
}

func TestWriteReportUsesHighestProbability(t *testing.T) {
	t.Parallel()

	predicted := []risk.Entry{
		{TestName: "A", FailProbability: 0.1},
		{TestName: "B", FailProbability: 0.5},
		{TestName: "A", FailProbability: 0.8},
	}
	order := Build(predicted, []string{"A", "B"})
	require.Equal(t, []string{"A", "B"}, order)

	out := bytes.Buffer{}
	require.NoError(t, WriteReport(&out, order, predicted))
	assert.Contains(t, out.String(), "1. A (fail probability 0.80)")
	assert.Contains(t, out.String(), "2. B (fail probability 0.50)")
}
