// Package anomaly flags test executions that ran unusually long compared to
// the rest of the batch.
package anomaly

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/mslinn/testintel/pkg/extract"
)

// Sigma is the number of sample standard deviations above the mean a duration
// must exceed to be reported
const Sigma = 2.0

// Report is the result of one detection pass
type Report struct {
	Count     int
	Mean      float64
	StdDev    float64 // sample standard deviation (N-1)
	Threshold float64
	Anomalies []extract.Record
}

// NoData returns true when there was nothing to analyze
func (r *Report) NoData() bool {
	return r.Count == 0
}

// Detect computes mean + Sigma*stddev over all durations, regardless of
// outcome, and returns the records strictly above it in input order.
func Detect(records []extract.Record) *Report {
	report := &Report{Anomalies: []extract.Record{}}
	if len(records) == 0 {
		return report
	}

	mean, stddev := Stats(extract.Durations(records))
	report.Count = len(records)
	report.Mean = mean
	report.StdDev = stddev
	report.Threshold = mean + Sigma*stddev

	for _, rec := range records {
		if rec.Duration > report.Threshold {
			report.Anomalies = append(report.Anomalies, rec)
		}
	}

	return report
}

// Stats returns the arithmetic mean and sample standard deviation of values.
// A single value has a standard deviation of 0.
func Stats(values []float64) (mean, stddev float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)
	if n == 1 {
		return mean, 0
	}

	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1))
}

// Write renders the human-readable anomaly report
func (r *Report) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if r.NoData() {
		fmt.Fprintln(bw, "No test data found in log file. Cannot perform analysis.")
		return bw.Flush()
	}

	fmt.Fprintln(bw, "\n--- Anomaly Detection Report ---")
	fmt.Fprintf(bw, "Analyzed %d executions (mean %.2fs, stddev %.2fs)\n", r.Count, r.Mean, r.StdDev)
	fmt.Fprintf(bw, "Threshold for performance anomaly: > %.2fs\n", r.Threshold)
	if len(r.Anomalies) == 0 {
		fmt.Fprintln(bw, "No performance anomalies detected.")
	}
	for _, rec := range r.Anomalies {
		fmt.Fprintf(bw, "[ANOMALY DETECTED] Test '%s' took %.2fs.\n", rec.TestName, rec.Duration)
	}
	fmt.Fprintln(bw, "------------------------------")
	return bw.Flush()
}
