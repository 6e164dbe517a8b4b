package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/mslinn/testintel/pkg/database"
	"github.com/mslinn/testintel/pkg/dataset"
)

func (a *app) history(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(a.stderr, "Error: history requires a subcommand (runs, show, export)\n")
		return errUsage
	}

	switch args[0] {
	case "runs":
		return a.historyRuns(args[1:])
	case "show":
		return a.historyShow(args[1:])
	case "export":
		return a.historyExport(args[1:])
	default:
		fmt.Fprintf(a.stderr, "Error: unknown history subcommand '%s'\n", args[0])
		return errUsage
	}
}

func (a *app) historyRuns(args []string) error {
	fs := a.newFlagSet("runs")
	kind := fs.String("kind", "", "Only show runs of this kind (analyze, prioritize)")
	limit := fs.Int("limit", 20, "Maximum number of runs to display")
	if err := parse(fs, args); err != nil {
		return err
	}

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(*kind)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded")
		return nil
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKind\tStarted\tStatus\tSource\tNotes")
	fmt.Fprintln(w, "--\t----\t-------\t------\t------\t-----")
	for _, run := range runs {
		source := run.Source
		// Truncate long commands
		if len(source) > 40 {
			source = source[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Kind, run.StartedAt.Format("2006-01-02 15:04:05"), run.Status, source, run.Notes)
	}
	return w.Flush()
}

func (a *app) historyShow(args []string) error {
	fs := a.newFlagSet("show")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(a.stderr, "Error: 'show' requires a RUN_ID argument\n")
		return errUsage
	}

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Run %s\n\n", run.ID)
	fmt.Fprintf(a.stdout, "  Kind:      %s\n", run.Kind)
	fmt.Fprintf(a.stdout, "  Source:    %s\n", run.Source)
	fmt.Fprintf(a.stdout, "  Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.stdout, "  Status:    %s\n", run.Status)
	if run.Threshold != nil {
		fmt.Fprintf(a.stdout, "  Threshold: %.2fs\n", *run.Threshold)
	}
	if run.Kind == database.KindPrioritize {
		fmt.Fprintf(a.stdout, "  Seed:      %d\n", run.Seed)
	}
	fmt.Fprintln(a.stdout)

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	switch run.Kind {
	case database.KindAnalyze:
		executions, err := db.ListExecutions(run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "#\tTest\tDuration\tOutcome\tAnomaly")
		fmt.Fprintln(w, "-\t----\t--------\t-------\t-------")
		for _, e := range executions {
			flag := ""
			if e.Anomalous {
				flag = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%dms\t%s\t%s\n", e.Position+1, e.TestName, e.DurationMs, e.Outcome, flag)
		}
	case database.KindPrioritize:
		priorities, err := db.ListPriorities(run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "#\tTest\tFail probability")
		fmt.Fprintln(w, "-\t----\t----------------")
		for _, p := range priorities {
			prob := "no history"
			if p.FailProbability != nil {
				prob = fmt.Sprintf("%.2f", *p.FailProbability)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", p.Position+1, p.TestName, prob)
		}
	}
	return w.Flush()
}

func (a *app) historyExport(args []string) error {
	fs := a.newFlagSet("export")
	out := fs.String("out", "", "Write the dataset here (default: stdout)")
	churnFrom := fs.String("churn-from", a.cfg.GetDatasetPath(), "Dataset to take related_code_churn from")
	window := fs.Int("window", a.cfg.HistoryWindow, "Number of recent runs per test")
	if err := parse(fs, args); err != nil {
		return err
	}

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.TestHistory(*window)
	if err != nil {
		return err
	}

	rows := database.HistoryRows(stats, loadChurn(*churnFrom, a.component("history")))

	if *out == "" {
		return dataset.Write(a.stdout, rows)
	}
	if err := dataset.Save(*out, rows); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "✓ Exported %d tests to %s\n", len(rows), *out)
	return nil
}
