// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/internal/pipeline"
	"github.com/pdiddy/vulnkb/internal/querygen"
	"github.com/pdiddy/vulnkb/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Normalize raw diff records into structured search queries",
	Long: `Query reads a JSON array of raw diff records and writes one
structured query per record: target functions, file metadata, keywords,
and natural-language queries. Without --model_name only the regex and
metadata heuristics run; with one, the model contributes keywords and
query text.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("input_file_name", "", "JSON array of raw diff records to process")
	queryCmd.Flags().String("output_file_name", "", "destination for the JSON query array")
	queryCmd.Flags().String("model_name", "", "optional LLM model for semantic keywords and queries")
	queryCmd.Flags().String("model_settings", "", "semicolon-delimited model settings")

	queryCmd.MarkFlagRequired("input_file_name")
	queryCmd.MarkFlagRequired("output_file_name")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputName, _ := cmd.Flags().GetString("input_file_name")
	outputName, _ := cmd.Flags().GetString("output_file_name")
	modelName, _ := cmd.Flags().GetString("model_name")
	modelSettings, _ := cmd.Flags().GetString("model_settings")

	generator := &querygen.Generator{}
	if modelName != "" {
		settings, err := llm.ParseSettings(modelSettings)
		if err != nil {
			return err
		}
		transport, err := llm.New(ctx, modelName, settings, loadedSecrets)
		if err != nil {
			return err
		}
		generator.Transport = transport
	}

	records, err := pipeline.LoadRecords(resolvePath(inputName, viper.GetString("train_dir")))
	if err != nil {
		return err
	}

	queries := make([]types.StructuredQuery, 0, len(records))
	for _, record := range records {
		query, err := generator.Generate(ctx, record)
		if err != nil {
			// The heuristic query is still usable; keep it and warn.
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		queries = append(queries, query)
		fmt.Fprintf(os.Stdout, "normalized %s\n", record.Label())
	}

	outputPath := resolvePath(outputName, viper.GetString("knowledge_dir"))
	if err := writeJSON(outputPath, queries); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nwrote %d queries to %s\n", len(queries), outputPath)
	return nil
}
