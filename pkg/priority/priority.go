// Package priority turns predicted failure probabilities into a total
// execution order and persists it for the next test run.
package priority

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mslinn/testintel/pkg/risk"
)

var (
	// ErrPersistence is returned when the order file cannot be written
	ErrPersistence = errors.New("failed to persist prioritization order")

	// ErrOrderNotFound is returned when no order file exists
	ErrOrderNotFound = errors.New("prioritization order not found")

	// ErrMalformedOrder is returned when the order file is not a JSON array of strings
	ErrMalformedOrder = errors.New("malformed prioritization order")
)

// Build orders the requested tests by descending failure probability. Ties
// keep their predicted order. Requested tests without a prediction follow in
// requested order, so every requested name appears exactly once. Predictions
// for names that were not requested are ignored.
func Build(predicted []risk.Entry, requested []string) []string {
	want := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		want[name] = struct{}{}
	}

	sorted := make([]risk.Entry, len(predicted))
	copy(sorted, predicted)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FailProbability > sorted[j].FailProbability
	})

	order := make([]string, 0, len(want))
	seen := make(map[string]struct{}, len(want))
	add := func(name string) {
		if _, ok := want[name]; !ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	for _, e := range sorted {
		add(e.TestName)
	}
	for _, name := range requested {
		add(name)
	}

	return order
}

// SaveOrder writes order as an indented JSON array, creating parent
// directories as needed
func SaveOrder(path string, order []string) error {
	if order == nil {
		order = []string{}
	}
	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrPersistence, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return nil
}

// LoadOrder reads an order written by SaveOrder
func LoadOrder(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOrder, path, err)
	}

	return order, nil
}

// WriteReport prints the final order with each test's predicted probability
func WriteReport(w io.Writer, order []string, predicted []risk.Entry) error {
	prob := risk.Probabilities(predicted)

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Prioritized test order:")
	for i, name := range order {
		if p, ok := prob[name]; ok {
			fmt.Fprintf(bw, "  %d. %s (fail probability %.2f)\n", i+1, name, p)
		} else {
			fmt.Fprintf(bw, "  %d. %s (no history)\n", i+1, name)
		}
	}
	return bw.Flush()
}
