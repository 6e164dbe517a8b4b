// Package extract turns raw test runner logs into per-test execution records.
//
// A line is recognized when its second whitespace-delimited field is PASSED or
// FAILED and it carries a parenthesized duration such as (0.52s):
//
//	tests/step_defs/test_login_steps.py::test_successful_login PASSED (0.52s)
//
// Lines without a duration are skipped; runners commonly print summary lines
// that mention outcomes without timing them.
package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrSourceUnavailable is returned when the log cannot be opened
var ErrSourceUnavailable = errors.New("log source unavailable")

// Outcome is the reported result of a single test execution
type Outcome string

const (
	Passed Outcome = "PASSED"
	Failed Outcome = "FAILED"
)

// Record is one timed test execution taken from a log line
type Record struct {
	TestName string
	Duration float64 // seconds
	Outcome  Outcome
}

var durationPattern = regexp.MustCompile(`\((\d+\.\d+)s\)`)

// maxLineSize bounds a single log line; runner output with huge tracebacks on one line still fits
const maxLineSize = 1024 * 1024

// Extract reads the log line by line and returns records in source order
func Extract(r io.Reader) ([]Record, error) {
	records := []Record{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if rec, ok := ParseLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read log: %w", err)
	}

	return records, nil
}

// ExtractLines parses already-split log text
func ExtractLines(lines []string) []Record {
	records := []Record{}
	for _, line := range lines {
		if rec, ok := ParseLine(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ExtractFile opens path and extracts its records. A missing or unreadable file
// is logged and reported as ErrSourceUnavailable with an empty result.
func ExtractFile(path string, log *logrus.Entry) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if log != nil {
			log.WithField("path", path).Warnf("Log file not available: %v", err)
		}
		return []Record{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	records, err := Extract(f)
	if err != nil {
		return records, err
	}
	if log != nil {
		log.WithField("path", path).Debugf("Extracted %d records", len(records))
	}
	return records, nil
}

// ParseLine returns the record carried by line, if any
func ParseLine(line string) (Record, bool) {
	if !strings.Contains(line, string(Passed)) && !strings.Contains(line, string(Failed)) {
		return Record{}, false
	}

	fields := strings.Fields(line)
	if len(fields) <= 2 {
		return Record{}, false
	}

	outcome := Outcome(fields[1])
	if outcome != Passed && outcome != Failed {
		return Record{}, false
	}

	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}
	duration, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Record{}, false
	}

	return Record{
		TestName: fields[0],
		Duration: duration,
		Outcome:  outcome,
	}, true
}

// Durations returns the durations of records in order
func Durations(records []Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Duration
	}
	return out
}
