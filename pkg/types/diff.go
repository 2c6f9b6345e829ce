// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data transfer objects shared across pipeline
// stages: raw diff records, extracted vulnerability knowledge, normalized
// search queries, and per-stage configuration.
package types

import (
	"encoding/json"
	"fmt"
)

// RecordID is the unique identity of a raw diff record. Upstream datasets
// use both JSON strings and bare numbers for the id field, so unmarshaling
// accepts either.
type RecordID string

// UnmarshalJSON accepts a JSON string or number.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = RecordID(n.String())
		return nil
	}
	return fmt.Errorf("record id must be a string or number, got %s", data)
}

func (id RecordID) String() string { return string(id) }

// ModifiedLines records which line numbers a patch added and deleted.
// Added numbers refer to the post-change file, deleted numbers to the
// pre-change file.
type ModifiedLines struct {
	Added   []int `json:"added" yaml:"added"`
	Deleted []int `json:"deleted" yaml:"deleted"`
}

// IsEmpty reports whether the patch touched no lines.
func (m ModifiedLines) IsEmpty() bool {
	return len(m.Added) == 0 && len(m.Deleted) == 0
}

// RawDiffRecord is one before/after code change tied to a commit and file.
// The diff source produces it; the extraction pipeline consumes it read-only.
type RawDiffRecord struct {
	ID             RecordID      `json:"id"`
	CVEID          string        `json:"cve_id"`
	CodeBefore     string        `json:"code_before_change"`
	CodeAfter      string        `json:"code_after_change"`
	Patch          string        `json:"patch"`
	ModifiedLines  ModifiedLines `json:"function_modified_lines"`
	FilePath       string        `json:"file_path,omitempty"`
	CommitHash     string        `json:"commit_hash,omitempty"`
	CWE            []string      `json:"cwe,omitempty"`
	CVEDescription string        `json:"cve_description,omitempty"`
}

// Identifier returns the stable identity used for checkpointing: the explicit
// id when present, otherwise the commit hash and file path joined.
func (r RawDiffRecord) Identifier() string {
	if r.ID != "" {
		return string(r.ID)
	}
	if r.CommitHash == "" && r.FilePath == "" {
		return ""
	}
	return r.CommitHash + ":" + r.FilePath
}

// Label returns a human-readable name for progress output: the CVE id when
// known, otherwise the identifier.
func (r RawDiffRecord) Label() string {
	if r.CVEID != "" {
		return r.CVEID
	}
	return r.Identifier()
}
