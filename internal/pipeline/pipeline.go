// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives batch vulnerability-knowledge extraction: it turns
// a collection of raw diff records into structured knowledge records through
// staged LLM calls, with bounded concurrency, per-task retry, and
// checkpointed resume. See docs/ARCHITECTURE § Extraction Pipeline.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/pkg/types"
)

const defaultWorkers = 3

// Options configures one pipeline run.
type Options struct {
	// OutputPath is the JSON array file results are appended to.
	OutputPath string

	// Workers is the concurrency limit C (default 3).
	Workers int

	// Retries is the number of re-attempts R after a task's first try.
	Retries int

	// Resume skips records whose identifier is already in the output.
	Resume bool
}

// Summary holds the final counts of a run. Never mutated after Run returns.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int

	// Reasons maps failed record identifiers to their last failure reason.
	Reasons map[string]string
}

// Total returns the number of records accounted for.
func (s Summary) Total() int { return s.Succeeded + s.Failed + s.Skipped }

// HasFailures reports whether any record failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

// runState carries the run-level mutable state: counters and failure
// reasons, mutated only through its synchronized methods.
type runState struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	skipped   int
	reasons   map[string]string
}

func newRunState() *runState {
	return &runState{reasons: make(map[string]string)}
}

func (r *runState) succeed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded++
}

func (r *runState) fail(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	r.reasons[id] = reason
}

func (r *runState) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *runState) summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	reasons := make(map[string]string, len(r.reasons))
	for k, v := range r.reasons {
		reasons[k] = v
	}
	return Summary{
		Succeeded: r.succeeded,
		Failed:    r.failed,
		Skipped:   r.skipped,
		Reasons:   reasons,
	}
}

// LoadRecords reads a JSON array of raw diff records and validates that
// every record carries a unique identifier. Any defect in the input file is
// fatal; no task is dispatched from a file that does not fully parse.
func LoadRecords(path string) ([]types.RawDiffRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Fatal(fmt.Errorf("reading input %s: %w", path, err))
	}

	var records []types.RawDiffRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, Fatal(fmt.Errorf("parsing input %s: %w", path, err))
	}

	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		id := r.Identifier()
		if id == "" {
			return nil, Fatal(fmt.Errorf("input %s: record %d has no identifier", path, i))
		}
		if _, dup := seen[id]; dup {
			return nil, Fatal(fmt.Errorf("input %s: duplicate identifier %q", path, id))
		}
		seen[id] = struct{}{}
	}
	return records, nil
}

// Run executes the batch extraction over records. Already-checkpointed
// records are skipped when resuming; the rest are dispatched to a worker
// pool of Options.Workers tasks. Dispatch blocks when the pool is full, so
// no task queue grows unboundedly. A fatal error stops dispatching, lets
// in-flight attempts finish, and is returned; per-record failures are
// contained and reported through the Summary.
func Run(ctx context.Context, transport llm.Transport, records []types.RawDiffRecord, opts Options, w io.Writer) (Summary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	writer, err := newResultWriter(opts.OutputPath, opts.Resume)
	if err != nil {
		return Summary{}, err
	}

	state := newRunState()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, record := range records {
		record := record
		id := record.Identifier()

		if opts.Resume && writer.Contains(id) {
			state.skip()
			fmt.Fprintf(w, "skipped %s (already processed)\n", record.Label())
			continue
		}

		// A fatal error cancels gctx: stop dispatching new tasks.
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// The dispatch loop may have been blocked on a full pool when
			// the run started aborting; a task that reaches here after
			// cancellation never starts its first attempt.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			// Attempts run on the caller's ctx: an abort elsewhere in the
			// run only gates new attempts, it does not kill this task's
			// in-flight transport calls.
			task := NewTask(record)
			knowledge, err := task.run(ctx, gctx, transport, opts.Retries, w)
			if err != nil {
				state.fail(id, task.Reason)
				return err
			}
			if knowledge == nil {
				state.fail(id, task.Reason)
				fmt.Fprintf(w, "failed  %s: %s\n", record.Label(), task.Reason)
				return nil
			}
			if err := writer.Append(knowledge); err != nil {
				state.fail(id, err.Error())
				return err
			}
			state.succeed()
			fmt.Fprintf(w, "extracted %s (attempt %d)\n", record.Label(), task.Attempt)
			return nil
		})
	}

	runErr := g.Wait()
	summary := state.summary()

	fmt.Fprintf(w, "\nsucceeded: %d, failed: %d, skipped: %d (total: %d)\n",
		summary.Succeeded, summary.Failed, summary.Skipped, summary.Total())
	for id, reason := range summary.Reasons {
		fmt.Fprintf(w, "  failed %s: %s\n", id, reason)
	}

	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}
