package types

// LLMConfig holds shared settings for stages that call an LLM transport.
type LLMConfig struct {
	// Model is the model identifier (e.g. "gpt-4o-mini", "gemini-1.5-pro",
	// "ollama/llama3", "dummy"). The transport backend is selected from it.
	Model string `json:"model" yaml:"model"`

	// Settings is a semicolon-delimited key=value list forwarded verbatim
	// to the transport (e.g. "temperature=0.2;max_tokens=4096").
	Settings string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// ExtractionConfig holds settings for the batch knowledge-extraction pipeline.
type ExtractionConfig struct {
	LLMConfig `yaml:",inline"`

	// Workers is the concurrency limit for the task pool (default 3).
	Workers int `json:"workers" yaml:"workers"`

	// Retries is the number of re-attempts after the first try (default 3).
	Retries int `json:"retries" yaml:"retries"`

	// TrainDir is the default directory for raw diff record files.
	TrainDir string `json:"train_dir" yaml:"train_dir"`

	// KnowledgeDir is the default directory for knowledge output files.
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir"`
}

// DiffConfig holds settings for the diff source stage.
type DiffConfig struct {
	// RepoPath is the git repository to extract diffs from.
	RepoPath string `json:"repo_path" yaml:"repo_path"`

	// TrainDir is the directory raw diff record files are written to.
	TrainDir string `json:"train_dir" yaml:"train_dir"`
}

// KnowledgeBaseConfig holds settings for the SQLite knowledge index.
type KnowledgeBaseConfig struct {
	// KnowledgeDir is the base directory for knowledge (contains index/).
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Diff          DiffConfig          `json:"diff" yaml:"diff"`
	Extraction    ExtractionConfig    `json:"extraction" yaml:"extraction"`
	KnowledgeBase KnowledgeBaseConfig `json:"knowledge_base" yaml:"knowledge_base"`
}
