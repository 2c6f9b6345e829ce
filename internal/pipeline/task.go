// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/pkg/types"
)

// State is the lifecycle state of an analysis task.
type State int

const (
	Pending State = iota
	InProgress
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// stateAllowed is the pure transition relation of the task lifecycle.
// Pending moves to InProgress; InProgress resolves to Succeeded or Failed;
// Failed may re-enter Pending for a retry. Succeeded is terminal, and Failed
// never moves to Succeeded directly.
func stateAllowed(from, to State) bool {
	switch from {
	case Pending:
		return to == InProgress
	case InProgress:
		return to == Succeeded || to == Failed
	case Failed:
		return to == Pending
	}
	return false
}

// Task wraps one RawDiffRecord as a unit of work. A task is owned by exactly
// one worker at a time; nothing here is safe for concurrent use.
type Task struct {
	Record  types.RawDiffRecord
	Attempt int
	State   State
	Reason  string // last failure reason, kept for diagnosis
}

// NewTask wraps a record in a Pending task.
func NewTask(record types.RawDiffRecord) *Task {
	return &Task{Record: record, State: Pending}
}

// to advances the lifecycle, panicking on a transition the state machine
// does not define. Such a transition is a bug in the pipeline, not a runtime
// condition.
func (t *Task) to(next State) {
	if !stateAllowed(t.State, next) {
		panic(fmt.Sprintf("task %s: invalid transition %s -> %s", t.Record.Identifier(), t.State, next))
	}
	t.State = next
}

// backoffBase controls the base duration for retry backoff. Tests override
// this to avoid real sleeps.
var backoffBase = time.Second

// backoffCap bounds the delay regardless of attempt count.
const backoffCap = 30 * time.Second

// backoffDelay returns the delay before the attempt following attempt n.
// The curve doubles from backoffBase and is capped, so delays are
// non-decreasing and bounded within a task.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

// run executes the task to completion or exhaustion: up to retries+1
// attempts of the full staged analysis, with backoff between attempts.
//
// Attempts run on ctx; gate only controls whether a new attempt may start.
// An abort elsewhere in the run cancels gate, not ctx, so the attempt
// currently in flight finishes its transport calls instead of being killed
// mid-stage.
//
// Returns (knowledge, nil) on success, (nil, err) on a fatal error or
// cancellation, and (nil, nil) when transient failures exhausted the attempt
// budget; in that case the task is Failed and Reason holds the last failure.
func (t *Task) run(ctx, gate context.Context, transport llm.Transport, retries int, w io.Writer) (*types.VulnerabilityKnowledge, error) {
	label := t.Record.Label()

	for attempt := 1; attempt <= retries+1; attempt++ {
		t.Attempt = attempt
		t.to(InProgress)

		// Each attempt restarts from stage 1; stage outputs from a failed
		// attempt are discarded, never reused.
		knowledge, err := runStages(ctx, transport, t.Record)
		if err == nil {
			t.to(Succeeded)
			return knowledge, nil
		}

		t.Reason = err.Error()
		t.to(Failed)

		if IsFatal(err) {
			return nil, err
		}
		if attempt == retries+1 {
			break
		}

		fmt.Fprintf(w, "retrying %s (attempt %d/%d): %v\n", label, attempt, retries+1, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate.Done():
			// The run is aborting: the attempt just completed is the last
			// one; Reason keeps the transient failure for diagnosis.
			return nil, gate.Err()
		case <-time.After(backoffDelay(attempt)):
		}
		t.to(Pending)
	}

	return nil, nil
}
