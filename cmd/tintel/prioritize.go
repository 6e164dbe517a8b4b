package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mslinn/testintel/pkg/database"
	"github.com/mslinn/testintel/pkg/dataset"
	"github.com/mslinn/testintel/pkg/priority"
	"github.com/mslinn/testintel/pkg/risk"
	"github.com/sirupsen/logrus"
)

func (a *app) prioritize(args []string) error {
	fs := a.newFlagSet("prioritize")
	datasetPath := fs.String("dataset", a.cfg.GetDatasetPath(), "Historical dataset CSV")
	output := fs.String("output", a.cfg.GetOrderPath(), "Where to write the execution order")
	tests := fs.StringSlice("tests", nil, "Tests to prioritize (default: every test in the dataset)")
	testsFile := fs.String("tests-file", "", "File listing tests to prioritize, one per line")
	seed := fs.Int64("seed", a.cfg.Seed, "Classifier random seed")
	fromHistory := fs.Bool("from-history", false, "Train on recorded history instead of the dataset")
	record := fs.Bool("record", false, "Record the order in the history database")

	if err := parse(fs, args); err != nil {
		return err
	}

	log := a.component("prioritize")
	log.Info("Starting test prioritization")

	// An order left over from an earlier run must not outlive a failed one
	saved := false
	defer func() {
		if !saved {
			removeOrder(*output, log)
		}
	}()

	requested := *tests
	if *testsFile != "" {
		names, err := readLines(*testsFile)
		if err != nil {
			return fmt.Errorf("failed to read tests file: %w", err)
		}
		requested = append(requested, names...)
	}

	var rows []dataset.Row
	var err error
	source := *datasetPath
	if *fromHistory {
		source = "history"
		rows, err = a.historyRows(*datasetPath, log)
	} else {
		rows, err = dataset.Load(*datasetPath, log)
	}
	if errors.Is(err, dataset.ErrSourceUnavailable) {
		log.Warn("No prioritization order available; tests will run in default order.")
		return nil
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Warn("Historical dataset is empty; tests will run in default order.")
		return nil
	}

	model := risk.NewModel(risk.WithSeed(*seed))
	if err := model.Train(rows); err != nil {
		return fmt.Errorf("failed to train risk model: %w", err)
	}
	log.WithField("seed", model.Seed()).Infof("Test prioritization model trained on %d rows", len(rows))

	if len(requested) == 0 {
		requested = dataset.Names(rows)
	}

	predicted, err := model.Predict(requested)
	if err != nil {
		return err
	}
	if len(predicted) == 0 {
		log.Warn("No historical data for the given tests. Returning original order.")
	}

	order := priority.Build(predicted, requested)
	if err := priority.SaveOrder(*output, order); err != nil {
		log.WithField("path", *output).Error("Prioritization order could not be saved; tests will run in default order.")
		return err
	}
	saved = true
	log.WithField("path", *output).Info("Prioritization order saved")

	if err := priority.WriteReport(a.stdout, order, predicted); err != nil {
		return err
	}

	if *record {
		return a.recordPrioritization(source, model.Seed(), order, predicted)
	}
	return nil
}

// historyRows derives training rows from recorded analyze runs. Churn comes
// from the dataset when it is readable.
func (a *app) historyRows(datasetPath string, log *logrus.Entry) ([]dataset.Row, error) {
	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stats, err := db.TestHistory(a.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}

	return database.HistoryRows(stats, loadChurn(datasetPath, log)), nil
}

// loadChurn maps test names to related_code_churn from a dataset. History
// cannot observe churn, so tests missing here get 0.
func loadChurn(path string, log *logrus.Entry) map[string]float64 {
	churn := map[string]float64{}
	known, err := dataset.Load(path, nil)
	if err != nil {
		log.Debugf("No code churn available: %v", err)
	}
	for _, row := range known {
		churn[row.TestName] = row.RelatedCodeChurn
	}
	return churn
}

func (a *app) recordPrioritization(source string, seed int64, order []string, predicted []risk.Entry) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	run := &database.Run{Kind: database.KindPrioritize, Source: source, Seed: seed}
	if err := db.CreateRun(run); err != nil {
		return err
	}
	if err := db.RecordPriorities(database.NewPriorities(run.ID, order, predicted)); err != nil {
		return err
	}
	run.Notes = fmt.Sprintf("%d tests, %d with history", len(order), len(predicted))
	if err := db.CompleteRun(run, database.StatusCompleted); err != nil {
		return err
	}

	a.component("prioritize").WithField("run_id", run.ID).Info("Recorded prioritization")
	return nil
}

// removeOrder deletes the order file at path so the reorderer falls back to
// discovery order
func removeOrder(path string, log *logrus.Entry) {
	err := os.Remove(path)
	switch {
	case err == nil:
		log.WithField("path", path).Info("Removed previous prioritization order")
	case !os.IsNotExist(err):
		log.WithField("path", path).Warnf("Failed to remove previous prioritization order: %v", err)
	}
}

// readLines returns the non-blank, trimmed lines of path
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanLines(bufio.NewScanner(f))
}

func scanLines(scanner *bufio.Scanner) ([]string, error) {
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
