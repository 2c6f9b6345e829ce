// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/vulnkb/pkg/types"
)

// ExportYAML writes the whole index to knowledgeDir/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context) error {
	records, err := s.allRecords(ctx)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.knowledgeDir, indexDir, "export.yaml")
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the whole index to knowledgeDir/index/export.json.
func (s *Store) ExportJSON(ctx context.Context) error {
	records, err := s.allRecords(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.knowledgeDir, indexDir, "export.json")
	return os.WriteFile(path, data, 0o644)
}

// allRecords reads every indexed record back into the shared DTO shape.
func (s *Store) allRecords(ctx context.Context) ([]types.VulnerabilityKnowledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cve_id, purpose, function, analysis, cause,
		        trigger_condition, code_behavior, solution,
		        code_before, code_after, modified_lines
		 FROM records ORDER BY cve_id, id`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []types.VulnerabilityKnowledge
	for rows.Next() {
		var r types.VulnerabilityKnowledge
		var id, linesJSON string
		err := rows.Scan(&id, &r.CVEID, &r.Purpose, &r.Function, &r.Analysis,
			&r.Behavior.CauseDescription, &r.Behavior.TriggerCondition,
			&r.Behavior.CodeBehavior, &r.Solution,
			&r.CodeBefore, &r.CodeAfter, &linesJSON)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.ID = types.RecordID(id)
		if linesJSON != "" {
			if err := json.Unmarshal([]byte(linesJSON), &r.ModifiedLines); err != nil {
				return nil, fmt.Errorf("parsing modified lines for %s: %w", id, err)
			}
		}
		r.Flatten()
		records = append(records, r)
	}
	return records, rows.Err()
}
