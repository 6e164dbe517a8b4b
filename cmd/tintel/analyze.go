package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/mslinn/testintel/pkg/anomaly"
	"github.com/mslinn/testintel/pkg/database"
	"github.com/mslinn/testintel/pkg/extract"
	"github.com/mslinn/testintel/pkg/timing"
)

func (a *app) analyze(args []string) error {
	fs := a.newFlagSet("analyze")
	logFile := fs.String("log-file", "", "Path to the test runner log")
	execCmd := fs.String("exec", "", "Run this test command and analyze its output")
	timeout := fs.Duration("timeout", 0, "Timeout for --exec (0 = none)")
	record := fs.Bool("record", false, "Record the executions in the history database")

	if err := parse(fs, args); err != nil {
		return err
	}

	if (*logFile == "") == (*execCmd == "") {
		fmt.Fprintf(a.stderr, "Error: exactly one of --log-file or --exec is required\n")
		return errUsage
	}

	log := a.component("analyze")
	var records []extract.Record
	source := *logFile

	if *logFile != "" {
		log.WithField("path", *logFile).Info("Starting log analysis")

		var err error
		records, err = extract.ExtractFile(*logFile, log)
		if err != nil && !errors.Is(err, extract.ErrSourceUnavailable) {
			log.Warnf("Analyzing partial log: %v", err)
		}
	} else {
		source = *execCmd
		log.WithField("command", *execCmd).Info("Running test command")

		result := timing.RunShell(*execCmd, &timing.Options{Timeout: *timeout})
		if !result.Started() {
			log.Warnf("Test command did not run: %v", result.Error)
		} else {
			log.Info(result.String())
		}
		records = extract.ExtractLines(result.Lines())
	}

	report := anomaly.Detect(records)
	if err := report.Write(a.stdout); err != nil {
		return err
	}

	if *record {
		return a.recordAnalysis(source, records, report)
	}
	return nil
}

func (a *app) recordAnalysis(source string, records []extract.Record, report *anomaly.Report) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	run := &database.Run{
		Kind:      database.KindAnalyze,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	if err := db.CreateRun(run); err != nil {
		return err
	}

	if err := db.RecordExecutions(database.NewExecutions(run.ID, records, report.Anomalies)); err != nil {
		run.Notes = err.Error()
		if cerr := db.CompleteRun(run, database.StatusFailed); cerr != nil {
			a.component("analyze").Warnf("Failed to mark run %s failed: %v", run.ID, cerr)
		}
		return err
	}

	if !report.NoData() {
		threshold := report.Threshold
		run.Threshold = &threshold
	}
	run.Notes = fmt.Sprintf("%d executions, %d anomalies", report.Count, len(report.Anomalies))
	if err := db.CompleteRun(run, database.StatusCompleted); err != nil {
		return err
	}

	a.component("analyze").WithField("run_id", run.ID).Infof("Recorded %d executions", len(records))
	return nil
}
