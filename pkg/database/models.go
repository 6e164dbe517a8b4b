package database

import "time"

// Run kinds
const (
	KindAnalyze    = "analyze"
	KindPrioritize = "prioritize"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one analysis or prioritization pass
type Run struct {
	ID          string // UUID, assigned by CreateRun when empty
	Kind        string // 'analyze', 'prioritize'
	Source      string // log file, command or dataset the run read
	Seed        int64  // classifier seed, prioritize runs only
	Threshold   *float64
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string // 'running', 'completed', 'failed'
	Notes       string
}

// Execution is a timed test execution extracted from a log
type Execution struct {
	ID         int64
	RunID      string
	Position   int
	TestName   string
	DurationMs int64
	Outcome    string // 'PASSED', 'FAILED'
	Anomalous  bool
}

// Priority is one slot of a persisted execution order
type Priority struct {
	ID              int64
	RunID           string
	Position        int
	TestName        string
	FailProbability *float64 // nil for tests appended without history
}

// TestStat summarizes a test's most recent recorded executions
type TestStat struct {
	TestName      string
	Executions    int
	Failures      int
	LastOutcome   string
	AvgDurationMs float64
}
