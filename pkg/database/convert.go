package database

import (
	"math"

	"github.com/mslinn/testintel/pkg/dataset"
	"github.com/mslinn/testintel/pkg/extract"
	"github.com/mslinn/testintel/pkg/risk"
)

// NewExecutions converts extracted records to executions of runID. Records
// present in anomalies are flagged.
func NewExecutions(runID string, records, anomalies []extract.Record) []*Execution {
	flagged := make(map[extract.Record]int, len(anomalies))
	for _, a := range anomalies {
		flagged[a]++
	}

	executions := make([]*Execution, len(records))
	for i, rec := range records {
		anomalous := flagged[rec] > 0
		if anomalous {
			flagged[rec]--
		}
		executions[i] = &Execution{
			RunID:      runID,
			Position:   i,
			TestName:   rec.TestName,
			DurationMs: int64(math.Round(rec.Duration * 1000)),
			Outcome:    string(rec.Outcome),
			Anomalous:  anomalous,
		}
	}
	return executions
}

// NewPriorities converts a final order to priorities of runID, attaching the
// predicted probability where there was one
func NewPriorities(runID string, order []string, predicted []risk.Entry) []*Priority {
	prob := risk.Probabilities(predicted)

	priorities := make([]*Priority, len(order))
	for i, name := range order {
		p := &Priority{RunID: runID, Position: i, TestName: name}
		if v, ok := prob[name]; ok {
			p.FailProbability = &v
		}
		priorities[i] = p
	}
	return priorities
}

// HistoryRows turns recorded history into dataset rows. Code churn is not
// observable from logs, so it is taken from churn when known and 0 otherwise.
func HistoryRows(stats []*TestStat, churn map[string]float64) []dataset.Row {
	rows := make([]dataset.Row, len(stats))
	for i, s := range stats {
		status := dataset.StatusPass
		if s.LastOutcome == string(extract.Failed) {
			status = dataset.StatusFail
		}
		rows[i] = dataset.Row{
			TestName:           s.TestName,
			RelatedCodeChurn:   churn[s.TestName],
			FailuresLast10Runs: s.Failures,
			LastRunStatus:      status,
		}
	}
	return rows
}
