// Package pipeline is the shared stage runner: a worker pool that processes
// records independently, so one bad record never stops the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"briefpipe/pkg/store"
)

// Options controls a stage run.
type Options struct {
	Workers int
}

// Report is the outcome of one stage run. Skipped counts records that hit a
// duplicate constraint, which is normal on re-runs, not a failure.
type Report struct {
	Stage     string
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []Failure

	mu      sync.Mutex
	metrics map[string]float64
}

// Failure names one record that could not be processed.
type Failure struct {
	Record string
	Err    error
}

// AddMetric accumulates a named stage metric (token counts, costs).
func (r *Report) AddMetric(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metrics == nil {
		r.metrics = make(map[string]float64)
	}
	r.metrics[name] += value
}

// Metric returns an accumulated metric value.
func (r *Report) Metric(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[name]
}

// LogAttrs renders the report for structured logging.
func (r *Report) LogAttrs() []any {
	attrs := []any{
		"stage", r.Stage,
		"attempted", r.Attempted,
		"succeeded", r.Succeeded,
		"failed", r.Failed,
		"skipped", r.Skipped,
	}
	r.mu.Lock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, name, r.metrics[name])
	}
	r.mu.Unlock()
	return attrs
}

// maxFailureDisplay caps how many failures a report log line carries.
const maxFailureDisplay = 10

// LogFailures logs up to maxFailureDisplay failures at warn level.
func (r *Report) LogFailures(logger *slog.Logger) {
	for i, f := range r.Failures {
		if i >= maxFailureDisplay {
			logger.Warn("More failures omitted", "stage", r.Stage, "omitted", len(r.Failures)-maxFailureDisplay)
			return
		}
		logger.Warn("Record failed", "stage", r.Stage, "record", f.Record, "error", f.Err)
	}
}

// ProcessFunc handles one record. Returning an error wrapping
// store.ErrDuplicate counts as a skip.
type ProcessFunc[T any] func(ctx context.Context, record T) error

// DescribeFunc names a record for failure reporting.
type DescribeFunc[T any] func(record T) string

// Run processes records through a worker pool. Each record is isolated: a
// failure (or panic) in one is recorded and the rest continue. The context
// stops new work but lets in-flight records finish.
func Run[T any](ctx context.Context, stage string, records []T, opts Options, describe DescribeFunc[T], process ProcessFunc[T]) *Report {
	report := &Report{Stage: stage, Attempted: len(records)}
	if len(records) == 0 {
		return report
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	jobs := make(chan T, len(records))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				err := runOne(ctx, record, process)
				mu.Lock()
				switch {
				case err == nil:
					report.Succeeded++
				case isSkip(err):
					report.Skipped++
				default:
					report.Failed++
					report.Failures = append(report.Failures, Failure{Record: describe(record), Err: err})
				}
				mu.Unlock()
			}
		}()
	}

	for _, record := range records {
		if ctx.Err() != nil {
			mu.Lock()
			report.Attempted--
			mu.Unlock()
			continue
		}
		jobs <- record
	}
	close(jobs)
	wg.Wait()

	return report
}

func runOne[T any](ctx context.Context, record T, process ProcessFunc[T]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing record: %v", p)
		}
	}()
	return process(ctx, record)
}

func isSkip(err error) bool {
	return errors.Is(err, store.ErrDuplicate)
}
