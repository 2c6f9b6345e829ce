// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// StructuredQuery is the search-oriented normalization of a raw diff record.
// It holds the metadata and query text a hybrid retriever would use; this
// repository only produces it, it does not run searches.
type StructuredQuery struct {
	// Exact-match filters.
	TargetFunctions []string `json:"target_functions" yaml:"target_functions"`
	RelatedFiles    []string `json:"related_files" yaml:"related_files"`
	FileExtensions  []string `json:"file_extensions" yaml:"file_extensions"`

	// Keyword search terms.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Natural-language queries for semantic search.
	NaturalLanguageQueries []string `json:"natural_language_queries" yaml:"natural_language_queries"`

	CommitHash  string `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	ProjectName string `json:"project_name,omitempty" yaml:"project_name,omitempty"`
}
