// Package dataset reads and writes the historical test metadata the risk model
// is trained on.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSourceUnavailable is returned when the dataset file cannot be opened
	ErrSourceUnavailable = errors.New("dataset source unavailable")

	// ErrMalformedRow is returned for rows whose features or label cannot be used
	ErrMalformedRow = errors.New("malformed dataset row")

	// ErrMissingColumn is returned when the header lacks a required column
	ErrMissingColumn = errors.New("missing dataset column")
)

// Column names, as written in the CSV header
const (
	ColTestName      = "test_name"
	ColCodeChurn     = "related_code_churn"
	ColFailures      = "failures_last_10_runs"
	ColLastRunStatus = "last_run_status"
)

// Columns lists the required columns in the order Write emits them
var Columns = []string{ColTestName, ColCodeChurn, ColFailures, ColLastRunStatus}

// Status is the outcome of a test's most recent run
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Row is one test's historical metadata
type Row struct {
	TestName           string
	RelatedCodeChurn   float64
	FailuresLast10Runs int
	LastRunStatus      Status
}

// Failed reports whether the last run failed; this is the training label
func (r Row) Failed() bool {
	return r.LastRunStatus == StatusFail
}

// Features returns the feature vector (churn, recent failures)
func (r Row) Features() []float64 {
	return []float64{r.RelatedCodeChurn, float64(r.FailuresLast10Runs)}
}

// Validate checks the row's invariants
func (r Row) Validate() error {
	if r.TestName == "" {
		return fmt.Errorf("%w: empty test name", ErrMalformedRow)
	}
	if math.IsNaN(r.RelatedCodeChurn) || math.IsInf(r.RelatedCodeChurn, 0) || r.RelatedCodeChurn < 0 {
		return fmt.Errorf("%w: %s: code churn must be a finite non-negative number, got %v",
			ErrMalformedRow, r.TestName, r.RelatedCodeChurn)
	}
	if r.FailuresLast10Runs < 0 {
		return fmt.Errorf("%w: %s: negative failure count %d", ErrMalformedRow, r.TestName, r.FailuresLast10Runs)
	}
	if r.LastRunStatus != StatusPass && r.LastRunStatus != StatusFail {
		return fmt.Errorf("%w: %s: last run status %q is neither %q nor %q",
			ErrMalformedRow, r.TestName, r.LastRunStatus, StatusPass, StatusFail)
	}
	return nil
}

// Read parses CSV with a header row. Columns are located by name; extra columns
// are ignored. Every malformed row is reported in the returned error.
func Read(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	rows := []Row{}
	var errs *multierror.Error
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		row, err := parseRecord(record, index)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		rows = append(rows, row)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rows, nil
}

func parseRecord(record []string, index map[string]int) (Row, error) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	churn, err := strconv.ParseFloat(field(ColCodeChurn), 64)
	if err != nil {
		return Row{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, ColCodeChurn, err)
	}
	failures, err := strconv.Atoi(field(ColFailures))
	if err != nil {
		return Row{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, ColFailures, err)
	}

	row := Row{
		TestName:           field(ColTestName),
		RelatedCodeChurn:   churn,
		FailuresLast10Runs: failures,
		LastRunStatus:      Status(field(ColLastRunStatus)),
	}
	if err := row.Validate(); err != nil {
		return Row{}, err
	}
	return row, nil
}

// Load reads the dataset at path. A missing or unreadable file is logged and
// reported as ErrSourceUnavailable; parse errors are returned as they are.
func Load(path string, log *logrus.Entry) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if log != nil {
			log.WithField("path", path).Warnf("Historical dataset not available: %v", err)
		}
		return []Row{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if log != nil {
		log.WithField("path", path).Debugf("Loaded %d historical rows", len(rows))
	}
	return rows, nil
}

// Write emits rows as CSV with the standard header
func Write(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write dataset header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.TestName,
			strconv.FormatFloat(row.RelatedCodeChurn, 'f', -1, 64),
			strconv.Itoa(row.FailuresLast10Runs),
			string(row.LastRunStatus),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write dataset row %s: %w", row.TestName, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save writes rows to path, creating the parent directory if needed
func Save(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Names returns the test names in dataset order
func Names(rows []Row) []string {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.TestName
	}
	return names
}
