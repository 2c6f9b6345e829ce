// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists extracted vulnerability knowledge in a local
// SQLite index keyed by record identifier. It stores and exports; retrieval
// belongs to downstream systems. See docs/ARCHITECTURE § Knowledge Index.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/vulnkb/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "vulnkb.db"
)

// Store manages the knowledge index SQLite database.
type Store struct {
	db           *sql.DB
	knowledgeDir string
}

// NewStore opens or creates the database at knowledgeDir/index/vulnkb.db,
// creating the schema if it does not exist.
func NewStore(cfg types.KnowledgeBaseConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.KnowledgeDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, knowledgeDir: cfg.KnowledgeDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			cve_id TEXT,
			purpose TEXT,
			function TEXT,
			analysis TEXT,
			cause TEXT NOT NULL,
			trigger_condition TEXT NOT NULL,
			code_behavior TEXT NOT NULL,
			solution TEXT NOT NULL,
			code_before TEXT,
			code_after TEXT,
			modified_lines TEXT,
			ingested_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_cve_id ON records(cve_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from an indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Failed  int
}

// Total returns the number of records processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Failed
}

// HasFailures reports whether any records failed.
func (s IngestSummary) HasFailures() bool {
	return s.Failed > 0
}

// Ingest reads a knowledge JSON file (the extraction pipeline's output) and
// upserts every record into the index. Individual record failures are
// reported and skipped; a file that does not parse aborts the ingest.
func (s *Store) Ingest(ctx context.Context, path string, w io.Writer) (IngestSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading knowledge file %s: %w", path, err)
	}

	var records []types.VulnerabilityKnowledge
	if err := json.Unmarshal(data, &records); err != nil {
		return IngestSummary{}, fmt.Errorf("parsing knowledge file %s: %w", path, err)
	}

	var summary IngestSummary
	now := time.Now().UTC().Format(time.RFC3339)

	for i := range records {
		record := &records[i]

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if string(record.ID) == "" {
			fmt.Fprintf(w, "failed  record %d: missing id\n", i)
			summary.Failed++
			continue
		}

		updated, err := s.upsert(ctx, record, now)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", record.ID, err)
			summary.Failed++
			continue
		}

		if updated {
			fmt.Fprintf(w, "updated %s\n", record.ID)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s\n", record.ID)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, failed: %d (total: %d)\n",
		summary.Indexed, summary.Updated, summary.Failed, summary.Total())
	return summary, nil
}

// upsert inserts or replaces one record; the updated return reports whether
// a row with the same id already existed.
func (s *Store) upsert(ctx context.Context, record *types.VulnerabilityKnowledge, now string) (updated bool, err error) {
	var existing int
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM records WHERE id = ?`, string(record.ID),
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("checking existing record: %w", err)
	}

	linesJSON, err := json.Marshal(record.ModifiedLines)
	if err != nil {
		return false, fmt.Errorf("marshaling modified lines: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records
			(id, cve_id, purpose, function, analysis, cause, trigger_condition,
			 code_behavior, solution, code_before, code_after, modified_lines, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			cve_id=excluded.cve_id, purpose=excluded.purpose,
			function=excluded.function, analysis=excluded.analysis,
			cause=excluded.cause, trigger_condition=excluded.trigger_condition,
			code_behavior=excluded.code_behavior, solution=excluded.solution,
			code_before=excluded.code_before, code_after=excluded.code_after,
			modified_lines=excluded.modified_lines, ingested_at=excluded.ingested_at`,
		string(record.ID), record.CVEID, record.Purpose, record.Function,
		record.Analysis, record.Behavior.CauseDescription,
		record.Behavior.TriggerCondition, record.Behavior.CodeBehavior,
		record.Solution, record.CodeBefore, record.CodeAfter,
		string(linesJSON), now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting record: %w", err)
	}
	return existing > 0, nil
}

// Count returns the number of records in the index.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}
