// Package reorder applies a persisted priority order to the tests a runner
// discovered at collection time.
//
// Historical names and runner identifiers come from independent naming
// schemes, so they are correlated by substring containment: a historical name
// claims the first not-yet-claimed identifier that contains it. The match is
// deliberately permissive and order sensitive. Whatever the order file says,
// the result is a permutation of the discovered tests.
package reorder

import (
	"errors"
	"strings"

	"github.com/mslinn/testintel/pkg/logging"
	"github.com/mslinn/testintel/pkg/priority"
	"github.com/sirupsen/logrus"
)

// Reorder places discovered items claimed by order first, in order, followed
// by the unclaimed items in discovery order. id returns an item's runtime
// identifier. Empty historical names are ignored since they would claim any
// identifier.
func Reorder[T any](order []string, discovered []T, id func(T) string) []T {
	out := make([]T, 0, len(discovered))
	matched := make([]bool, len(discovered))

	for _, name := range order {
		if name == "" {
			continue
		}
		for i, item := range discovered {
			if matched[i] {
				continue
			}
			if strings.Contains(id(item), name) {
				matched[i] = true
				out = append(out, item)
				break
			}
		}
	}

	for i, item := range discovered {
		if !matched[i] {
			out = append(out, item)
		}
	}

	return out
}

// Apply is the collection hook. Unless enabled, discovered is returned as is
// without touching orderPath. A missing, unreadable, malformed or empty order
// file also leaves the discovered order unchanged.
func Apply[T any](enabled bool, orderPath string, discovered []T, id func(T) string, log *logrus.Entry) []T {
	if !enabled {
		return discovered
	}
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithField("path", orderPath)

	order, err := priority.LoadOrder(orderPath)
	switch {
	case errors.Is(err, priority.ErrOrderNotFound):
		log.Warn("Prioritization order not found. Running tests in default order.")
		return discovered
	case err != nil:
		log.Warnf("Ignoring prioritization order: %v. Running tests in default order.", err)
		return discovered
	case len(order) == 0:
		log.Info("Prioritization order is empty. Running tests in default order.")
		return discovered
	}

	log.Info("Prioritization enabled. Reordering tests...")
	sorted := Reorder(order, discovered, id)

	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		for i, item := range sorted {
			log.Debugf("  %d. %s", i+1, id(item))
		}
	}
	return sorted
}

// Identity is the id accessor for plain string identifiers
func Identity(s string) string {
	return s
}
