package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/vulnkb/pkg/types"
)

func testKnowledge(id, cve string) types.VulnerabilityKnowledge {
	k := types.VulnerabilityKnowledge{
		ID:    types.RecordID(id),
		CVEID: cve,
		Behavior: types.VulnerabilityBehavior{
			CauseDescription: "Unbounded copy of attacker-controlled input.",
			TriggerCondition: "Input longer than the destination buffer.",
			CodeBehavior:     "Copy without a length check.",
		},
		Solution:      "Bound the copy to the destination size.",
		Purpose:       "Copies input.",
		ModifiedLines: types.ModifiedLines{Added: []int{3}, Deleted: []int{3}},
	}
	k.Flatten()
	return k
}

func writeKnowledgeFile(t *testing.T, dir string, records []types.VulnerabilityKnowledge) string {
	t.Helper()
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "knowledge.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(types.KnowledgeBaseConfig{KnowledgeDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func TestIngest(t *testing.T) {
	store, dir := newTestStore(t)
	path := writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{
		testKnowledge("r1", "CVE-2024-0001"),
		testKnowledge("r2", "CVE-2024-0002"),
	})

	summary, err := store.Ingest(context.Background(), path, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 2 || summary.Updated != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 indexed", summary)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestIngestUpdatesExistingRecords(t *testing.T) {
	store, dir := newTestStore(t)
	path := writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{
		testKnowledge("r1", "CVE-2024-0001"),
	})

	if _, err := store.Ingest(context.Background(), path, io.Discard); err != nil {
		t.Fatal(err)
	}

	updated := testKnowledge("r1", "CVE-2024-0001")
	updated.Solution = "Use a bounds-checked copy routine."
	path = writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{updated})

	summary, err := store.Ingest(context.Background(), path, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Updated != 1 || summary.Indexed != 0 {
		t.Fatalf("summary = %+v, want 1 updated", summary)
	}

	n, _ := store.Count(context.Background())
	if n != 1 {
		t.Fatalf("count = %d after re-ingest, want 1", n)
	}

	records, err := store.allRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Solution != "Use a bounds-checked copy routine." {
		t.Fatalf("solution not updated: %q", records[0].Solution)
	}
}

func TestIngestSkipsRecordWithoutID(t *testing.T) {
	store, dir := newTestStore(t)
	good := testKnowledge("r1", "CVE-2024-0001")
	bad := testKnowledge("", "CVE-2024-0002")
	path := writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{bad, good})

	var progress strings.Builder
	summary, err := store.Ingest(context.Background(), path, &progress)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 indexed 1 failed", summary)
	}
	if !strings.Contains(progress.String(), "missing id") {
		t.Errorf("progress output missing failure line:\n%s", progress.String())
	}
}

func TestIngestMalformedFileFails(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "knowledge.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	if _, err := store.Ingest(context.Background(), path, io.Discard); err == nil {
		t.Fatal("want error for malformed knowledge file")
	}
}

func TestExportJSON(t *testing.T) {
	store, dir := newTestStore(t)
	path := writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{
		testKnowledge("r1", "CVE-2024-0001"),
	})
	if _, err := store.Ingest(context.Background(), path, io.Discard); err != nil {
		t.Fatal(err)
	}

	if err := store.ExportJSON(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "index", "export.json"))
	if err != nil {
		t.Fatal(err)
	}
	var exported []types.VulnerabilityKnowledge
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(exported) != 1 || exported[0].ID != "r1" {
		t.Fatalf("exported = %+v", exported)
	}
	if exported[0].CauseDescription == "" {
		t.Error("flat fields not populated in export")
	}
	if len(exported[0].ModifiedLines.Added) != 1 {
		t.Error("modified lines not round-tripped")
	}
}

func TestExportYAML(t *testing.T) {
	store, dir := newTestStore(t)
	path := writeKnowledgeFile(t, dir, []types.VulnerabilityKnowledge{
		testKnowledge("r1", "CVE-2024-0001"),
	})
	if _, err := store.Ingest(context.Background(), path, io.Discard); err != nil {
		t.Fatal(err)
	}

	if err := store.ExportYAML(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "index", "export.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var exported []types.VulnerabilityKnowledge
	if err := yaml.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export is not valid YAML: %v", err)
	}
	if len(exported) != 1 || exported[0].Solution == "" {
		t.Fatalf("exported = %+v", exported)
	}
}
