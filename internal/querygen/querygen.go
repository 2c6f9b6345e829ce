// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package querygen normalizes raw diff records into search-oriented
// structured queries: function names, file metadata, keywords, and
// natural-language query text. Independent of the extraction pipeline.
package querygen

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/pkg/types"
)

// functionPatterns are rough heuristics for function definitions in the
// languages the vulnerability corpus covers: PHP/JS, Python, and C-like.
var functionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`function\s+([a-zA-Z0-9_]+)\s*\(`),
	regexp.MustCompile(`def\s+([a-zA-Z0-9_]+)\s*\(`),
	regexp.MustCompile(`\b([a-zA-Z0-9_]+)\s*\([^()]*\)\s*\{`),
}

// vulnKeywords maps description substrings to canonical keyword labels.
var vulnKeywords = map[string]string{
	"xss":               "xss",
	"cross-site script": "xss",
	"sql injection":     "sql-injection",
	"buffer overflow":   "buffer-overflow",
	"use-after-free":    "use-after-free",
	"use after free":    "use-after-free",
	"race condition":    "race-condition",
	"path traversal":    "path-traversal",
	"integer overflow":  "integer-overflow",
}

// ExtractFunctions returns the function names defined in code, deduplicated
// and sorted. Regex heuristics, not parsing; close enough for search
// filters.
func ExtractFunctions(code string) []string {
	seen := make(map[string]struct{})
	for _, pattern := range functionPatterns {
		for _, m := range pattern.FindAllStringSubmatch(code, -1) {
			seen[m[1]] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generator builds structured queries. With a nil Transport only the
// regex and metadata heuristics run; with one, the model contributes
// keywords and natural-language queries.
type Generator struct {
	Transport llm.Transport
}

// semanticResponse is the JSON shape the semantic query prompt requests.
type semanticResponse struct {
	Keywords []string `json:"keywords"`
	Queries  []string `json:"queries"`
}

// maxCodeExcerpt bounds how much code the semantic prompt carries.
const maxCodeExcerpt = 1000

// Generate normalizes one record. The heuristic fields are always
// populated; when the transport call fails, the heuristic query is returned
// together with the error so callers can keep it and warn.
func (g *Generator) Generate(ctx context.Context, record types.RawDiffRecord) (types.StructuredQuery, error) {
	query := types.StructuredQuery{
		TargetFunctions: ExtractFunctions(record.CodeBefore + "\n" + record.CodeAfter),
		CommitHash:      record.CommitHash,
	}

	if record.FilePath != "" {
		query.RelatedFiles = []string{record.FilePath}
		if ext := filepath.Ext(record.FilePath); ext != "" {
			query.FileExtensions = []string{ext}
		}
	}

	query.Keywords = heuristicKeywords(record)

	if g.Transport == nil {
		return query, nil
	}

	response, err := g.Transport.Generate(ctx, []llm.Message{llm.User(semanticPrompt(record))})
	if err != nil {
		return query, fmt.Errorf("semantic query for %s: %w", record.Label(), err)
	}
	raw, err := llm.ExtractJSON(response)
	if err != nil {
		return query, fmt.Errorf("semantic query for %s: %w", record.Label(), err)
	}
	var semantic semanticResponse
	if err := json.Unmarshal([]byte(raw), &semantic); err != nil {
		return query, fmt.Errorf("semantic query for %s: %w", record.Label(), err)
	}

	query.Keywords = mergeUnique(query.Keywords, semantic.Keywords)
	query.NaturalLanguageQueries = semantic.Queries
	return query, nil
}

// heuristicKeywords derives keywords from the CWE list and known
// vulnerability phrases in the description.
func heuristicKeywords(record types.RawDiffRecord) []string {
	var keywords []string
	description := strings.ToLower(record.CVEDescription)
	for phrase, label := range vulnKeywords {
		if strings.Contains(description, phrase) {
			keywords = append(keywords, label)
		}
	}
	for _, cwe := range record.CWE {
		keywords = append(keywords, strings.ToLower(cwe))
	}
	sort.Strings(keywords)
	return dedupe(keywords)
}

// semanticPrompt asks the model for retrieval keywords and queries, with
// the code truncated to keep the request small.
func semanticPrompt(record types.RawDiffRecord) string {
	return fmt.Sprintf(`Analyze the following code patch/diff to identify the vulnerability it fixes.
CVE ID: %s
Description: %s

Code Before Change:
'''
%s
'''

Code After Change (Patch):
'''
%s
'''

Based on this, please provide:
1. "keywords": A list of technical keywords relevant to this vulnerability (e.g., "buffer overflow", "memcpy", "XSS").
2. "queries": A list of natural language search queries that a security researcher might use to find similar vulnerabilities or this specific fix (e.g., "Fix for SQL injection in login function").

Output JSON format only:
{
  "keywords": ["..."],
  "queries": ["..."]
}`,
		record.CVEID,
		record.CVEDescription,
		truncate(record.CodeBefore, maxCodeExcerpt),
		truncate(record.CodeAfter, maxCodeExcerpt),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func mergeUnique(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
