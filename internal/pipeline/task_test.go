package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/pkg/types"
)

func TestStateAllowed(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Pending, InProgress, true},
		{InProgress, Succeeded, true},
		{InProgress, Failed, true},
		{Failed, Pending, true},

		{Pending, Succeeded, false},
		{Pending, Failed, false},
		{InProgress, Pending, false},
		{Succeeded, Pending, false},
		{Succeeded, Failed, false},
		{Failed, Succeeded, false},
		{Failed, InProgress, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := stateAllowed(tt.from, tt.to); got != tt.want {
				t.Errorf("stateAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTaskInvalidTransitionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid transition")
		}
	}()
	task := NewTask(types.RawDiffRecord{ID: "r1"})
	task.to(Succeeded) // Pending -> Succeeded is not defined
}

func TestBackoffDelay(t *testing.T) {
	orig := backoffBase
	backoffBase = time.Second
	defer func() { backoffBase = orig }()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > backoffCap {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	if got := backoffDelay(1); got != time.Second {
		t.Errorf("first delay = %v, want 1s", got)
	}
	if got := backoffDelay(2); got != 2*time.Second {
		t.Errorf("second delay = %v, want 2s", got)
	}
	if got := backoffDelay(100); got != backoffCap {
		t.Errorf("large attempt delay = %v, want cap %v", got, backoffCap)
	}
}

// stageCountTransport fails the knowledge stage a fixed number of times and
// counts how often each stage runs.
type stageCountTransport struct {
	purposeCalls   int
	knowledgeCalls int
	knowledgeFails int
	dummy          llm.Dummy
}

func (s *stageCountTransport) Model() string { return "stage-count" }

func (s *stageCountTransport) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := messages[len(messages)-1].Content
	switch {
	case strings.Contains(prompt, "What is the purpose"):
		s.purposeCalls++
	case strings.Contains(prompt, "vulnerability detection expert"):
		s.knowledgeCalls++
		if s.knowledgeCalls <= s.knowledgeFails {
			return "", fmt.Errorf("simulated knowledge failure")
		}
	}
	return s.dummy.Generate(ctx, messages)
}

func TestTaskRetryDiscardsEarlierStages(t *testing.T) {
	transport := &stageCountTransport{knowledgeFails: 1}
	task := NewTask(types.RawDiffRecord{ID: "r1", CVEID: "CVE-2024-0001", CodeBefore: "code"})

	knowledge, err := task.run(context.Background(), context.Background(), transport, 1, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if knowledge == nil {
		t.Fatal("want knowledge after retry")
	}

	// The failed attempt's stage 1-3 outputs are discarded; the retry
	// restarts from stage 1.
	if transport.purposeCalls != 2 {
		t.Errorf("purpose stage ran %d times, want 2", transport.purposeCalls)
	}
	if task.Attempt != 2 {
		t.Errorf("task finished on attempt %d, want 2", task.Attempt)
	}
	if task.State != Succeeded {
		t.Errorf("task state = %s, want succeeded", task.State)
	}
}

func TestTaskExhaustionLeavesFailedState(t *testing.T) {
	transport := &stageCountTransport{knowledgeFails: 100}
	task := NewTask(types.RawDiffRecord{ID: "r1", CVEID: "CVE-2024-0001"})

	knowledge, err := task.run(context.Background(), context.Background(), transport, 2, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if knowledge != nil {
		t.Fatal("want no knowledge on exhaustion")
	}
	if task.State != Failed {
		t.Errorf("task state = %s, want failed", task.State)
	}
	if task.Attempt != 3 {
		t.Errorf("task ran %d attempts, want 3", task.Attempt)
	}
	if !strings.Contains(task.Reason, "simulated knowledge failure") {
		t.Errorf("task reason = %q, missing failure cause", task.Reason)
	}
}

func TestTaskCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := &stageCountTransport{knowledgeFails: 100}
	task := NewTask(types.RawDiffRecord{ID: "r1"})

	_, err := task.run(ctx, context.Background(), transport, 5, io.Discard)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if transport.purposeCalls != 1 {
		t.Errorf("purpose stage ran %d times after cancellation, want 1", transport.purposeCalls)
	}
}

func TestTaskGateStopsNewAttemptsOnly(t *testing.T) {
	gate, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled gate still lets the current attempt run to completion.
	transport := &stageCountTransport{}
	task := NewTask(types.RawDiffRecord{ID: "r1", CVEID: "CVE-2024-0001"})

	knowledge, err := task.run(context.Background(), gate, transport, 5, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if knowledge == nil {
		t.Fatal("want knowledge from the completed attempt")
	}

	// With a transient failure, the gate blocks the next attempt.
	transport = &stageCountTransport{knowledgeFails: 100}
	task = NewTask(types.RawDiffRecord{ID: "r2", CVEID: "CVE-2024-0002"})

	_, err = task.run(context.Background(), gate, transport, 5, io.Discard)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled from the gate", err)
	}
	if transport.purposeCalls != 1 {
		t.Errorf("purpose stage ran %d times behind a closed gate, want 1", transport.purposeCalls)
	}
	if !strings.Contains(task.Reason, "simulated knowledge failure") {
		t.Errorf("task reason = %q, want the transient failure kept", task.Reason)
	}
}
