// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/vulnkb/pkg/types"
)

// resultWriter persists successful results to a JSON array file and owns the
// checkpoint set of identifiers already recorded. Appends are serialized
// behind a mutex, and every append rewrites the file through a temp file and
// rename so an interrupted run always leaves parseable output.
type resultWriter struct {
	mu      sync.Mutex
	path    string
	records []*types.VulnerabilityKnowledge
	seen    map[string]struct{}
}

// newResultWriter opens the output store. With resume set, existing output
// is loaded and its identifiers become the checkpoint set; malformed
// existing output is fatal rather than silently discarded. Without resume
// the store is reset to an empty array.
func newResultWriter(path string, resume bool) (*resultWriter, error) {
	w := &resultWriter{
		path: path,
		seen: make(map[string]struct{}),
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, Fatal(fmt.Errorf("creating output directory: %w", err))
		}
	}

	if !resume {
		if err := w.flushLocked(); err != nil {
			return nil, Fatal(err)
		}
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, Fatal(fmt.Errorf("reading existing output %s: %w", path, err))
	}
	if err := json.Unmarshal(data, &w.records); err != nil {
		return nil, Fatal(fmt.Errorf("existing output %s is corrupt: %w", path, err))
	}
	for _, r := range w.records {
		w.seen[string(r.ID)] = struct{}{}
	}
	return w, nil
}

// Contains reports whether the identifier is already checkpointed.
func (w *resultWriter) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[id]
	return ok
}

// Len returns the number of records in the store.
func (w *resultWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Append records one result and updates the checkpoint set atomically with
// the write. Completion order, not input order, determines position.
func (w *resultWriter) Append(knowledge *types.VulnerabilityKnowledge) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = append(w.records, knowledge)
	if err := w.flushLocked(); err != nil {
		w.records = w.records[:len(w.records)-1]
		return Fatal(err)
	}
	w.seen[string(knowledge.ID)] = struct{}{}
	return nil
}

// flushLocked rewrites the whole array through a temp file and rename.
// Callers hold w.mu.
func (w *resultWriter) flushLocked() error {
	records := w.records
	if records == nil {
		records = []*types.VulnerabilityKnowledge{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".vulnkb-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing output: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
