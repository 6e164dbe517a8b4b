// Package timing runs an external test command, timing it and capturing the
// log it prints so the log can be analyzed afterwards.
package timing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result contains the results of a timed test command
type Result struct {
	Command    string
	Args       []string
	DurationMs int64
	Stdout     string
	Stderr     string
	ExitCode   int
	Error      error
}

// Options configures command execution
type Options struct {
	Dir     string        // Working directory
	Timeout time.Duration // Command timeout (0 for no timeout)
	Env     []string      // Extra KEY=VALUE pairs appended to the environment
}

// Run executes a command and measures its execution time with millisecond precision
func Run(command string, args []string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}

	result := &Result{
		Command: command,
		Args:    args,
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.DurationMs = time.Since(start).Milliseconds()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		result.Error = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	return result
}

// RunShell runs commandLine through sh -c
func RunShell(commandLine string, opts *Options) *Result {
	return Run("sh", []string{"-c", commandLine}, opts)
}

// Success returns true if the command executed successfully
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// Started returns true if the command ran at all. Test runners exit non-zero
// when tests fail, and their output is still worth analyzing.
func (r *Result) Started() bool {
	return r.ExitCode >= 0
}

// Lines returns stdout followed by stderr, split into lines
func (r *Result) Lines() []string {
	text := r.Stdout
	if r.Stderr != "" {
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += r.Stderr
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// String returns a human-readable summary of the result
func (r *Result) String() string {
	status := "success"
	if !r.Success() {
		status = fmt.Sprintf("failed (exit code %d)", r.ExitCode)
	}

	return fmt.Sprintf("%s %v: %s (%.3fs)",
		r.Command,
		r.Args,
		status,
		float64(r.DurationMs)/1000.0,
	)
}
