package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pdiddy/vulnkb/pkg/types"
)

func knowledgeRecord(id string) *types.VulnerabilityKnowledge {
	return &types.VulnerabilityKnowledge{
		ID: types.RecordID(id),
		Behavior: types.VulnerabilityBehavior{
			CauseDescription: "cause",
			TriggerCondition: "trigger",
			CodeBehavior:     "behavior",
		},
		Solution: "solution",
	}
}

func TestWriterAppendPersistsEachResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	w, err := newResultWriter(path, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Append(knowledgeRecord("r1")); err != nil {
		t.Fatal(err)
	}
	// The file is complete after every append, not just at shutdown.
	if got := readOutput(t, path); len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("after first append: %+v", got)
	}

	if err := w.Append(knowledgeRecord("r2")); err != nil {
		t.Fatal(err)
	}
	if got := readOutput(t, path); len(got) != 2 {
		t.Fatalf("after second append: %d records", len(got))
	}

	if !w.Contains("r1") || !w.Contains("r2") {
		t.Error("checkpoint set missing appended ids")
	}
}

func TestWriterTruncatesWithoutResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	os.WriteFile(path, []byte(`[{"id": "old"}]`), 0o644)

	w, err := newResultWriter(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if w.Contains("old") {
		t.Error("non-resume writer kept the old checkpoint set")
	}
	if got := readOutput(t, path); len(got) != 0 {
		t.Fatalf("non-resume writer kept %d old records", len(got))
	}
}

func TestWriterResumeLoadsCheckpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	os.WriteFile(path, []byte(`[{"id": "r1", "solution": "kept"}]`), 0o644)

	w, err := newResultWriter(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Contains("r1") {
		t.Error("resume writer did not load existing ids")
	}
	if w.Len() != 1 {
		t.Errorf("resume writer holds %d records, want 1", w.Len())
	}

	// New appends extend the existing array.
	if err := w.Append(knowledgeRecord("r2")); err != nil {
		t.Fatal(err)
	}
	got := readOutput(t, path)
	if len(got) != 2 || got[0].Solution != "kept" {
		t.Fatalf("resume append lost existing content: %+v", got)
	}
}

func TestWriterResumeMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")

	w, err := newResultWriter(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if w.Len() != 0 {
		t.Errorf("missing file produced %d records", w.Len())
	}
}

func TestWriterResumeCorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	os.WriteFile(path, []byte("{corrupt"), 0o644)

	_, err := newResultWriter(path, true)
	if err == nil || !IsFatal(err) {
		t.Fatalf("want fatal error, got %v", err)
	}
}

func TestWriterCreatesOutputDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "knowledge.json")

	w, err := newResultWriter(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(knowledgeRecord("r1")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file not created: %v", err)
	}
}

func TestWriterConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	w, err := newResultWriter(path, false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := w.Append(knowledgeRecord(string(rune('a' + n)))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if got := readOutput(t, path); len(got) != 10 {
		t.Fatalf("concurrent appends left %d records, want 10", len(got))
	}
}
