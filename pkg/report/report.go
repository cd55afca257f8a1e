// Package report exposes phase results to the rest of the workflow.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// CacheHitOutput is the name of the boolean output set by the restore phase.
const CacheHitOutput = "cache-hit"

// Sink receives the externally visible results of a phase.
type Sink interface {
	// SetCacheHit publishes the cache-hit output.
	SetCacheHit(hit bool) error
	// Warning reports a non-fatal problem.
	Warning(msg string)
	// Failure reports a fatal problem; the phase exits non-zero afterwards.
	Failure(msg string)
}

// Actions writes outputs to the GITHUB_OUTPUT file and renders warnings and
// failures as workflow commands on stdout.
type Actions struct {
	outputPath string
	stdout     io.Writer
	logger     *slog.Logger
}

// NewActions returns a Sink writing outputs to outputPath. With an empty
// outputPath outputs are printed as "name=value" lines instead.
func NewActions(outputPath string, stdout io.Writer, logger *slog.Logger) *Actions {
	return &Actions{outputPath: outputPath, stdout: stdout, logger: logger}
}

func (a *Actions) SetCacheHit(hit bool) error {
	line := CacheHitOutput + "=" + strconv.FormatBool(hit) + "\n"
	if a.outputPath == "" {
		_, err := io.WriteString(a.stdout, line)
		return err
	}

	f, err := os.OpenFile(a.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	_, err = io.WriteString(f, line)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return closeErr
}

func (a *Actions) Warning(msg string) {
	a.logger.Warn(msg)
	fmt.Fprintf(a.stdout, "::warning::%s\n", escapeData(msg))
}

func (a *Actions) Failure(msg string) {
	a.logger.Error(msg)
	fmt.Fprintf(a.stdout, "::error::%s\n", escapeData(msg))
}

// escapeData escapes a workflow command message.
func escapeData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

// Recorder is a Sink that keeps everything in memory.
type Recorder struct {
	mu       sync.Mutex
	hit      *bool
	warnings []string
	failures []string
}

func (r *Recorder) SetCacheHit(hit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit = &hit
	return nil
}

func (r *Recorder) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *Recorder) Failure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

// CacheHit returns the published output and whether it was set.
func (r *Recorder) CacheHit() (hit, set bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hit == nil {
		return false, false
	}
	return *r.hit, true
}

func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}
