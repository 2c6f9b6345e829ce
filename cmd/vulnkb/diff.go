// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/vulnkb/internal/diffsource"
	"github.com/pdiddy/vulnkb/pkg/types"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Produce raw diff records from a git commit",
	Long: `Diff reads a fix commit from a git repository and writes one raw
diff record per changed file: before/after content, the patch, and the
modified line numbers. The records feed the extract command.`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().String("repo", "", "path to the git repository")
	diffCmd.Flags().String("commit", "", "commit hash of the vulnerability fix")
	diffCmd.Flags().String("output_file_name", "", "destination for the JSON record array")
	diffCmd.Flags().String("cve", "", "CVE identifier to stamp on every record")
	diffCmd.Flags().String("description", "", "vulnerability description to stamp on every record")

	diffCmd.MarkFlagRequired("repo")
	diffCmd.MarkFlagRequired("commit")
	diffCmd.MarkFlagRequired("output_file_name")

	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	commit, _ := cmd.Flags().GetString("commit")
	outputName, _ := cmd.Flags().GetString("output_file_name")
	cve, _ := cmd.Flags().GetString("cve")
	description, _ := cmd.Flags().GetString("description")

	extractor := diffsource.NewExtractor(repo)
	records, errs := extractor.Records(commit)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no extractable files in commit %s", commit)
	}

	for i := range records {
		records[i].ID = types.RecordID(fmt.Sprintf("%s:%s", commit, records[i].FilePath))
		records[i].CVEID = cve
		records[i].CVEDescription = description
	}

	outputPath := resolvePath(outputName, viper.GetString("train_dir"))
	if err := writeJSON(outputPath, records); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "wrote %d records to %s\n", len(records), outputPath)
	return nil
}

// writeJSON writes v as indented JSON, creating parent directories.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
