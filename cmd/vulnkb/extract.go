package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured vulnerability knowledge from raw diff records",
	Long: `Extract reads a JSON array of raw diff records and runs the staged
LLM analysis for each: change purpose, function behavior, security
analysis, and structured knowledge synthesis. Results are appended to the
output file as they complete, so an interrupted run can resume with
--resume and skip already-processed records.

Per-record failures are retried with backoff and never abort the run;
configuration errors abort immediately with a non-zero exit.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("input_file_name", "", "JSON array of raw diff records to process")
	extractCmd.Flags().String("output_file_name", "", "destination for JSON knowledge records")
	extractCmd.Flags().String("model_name", "", "LLM model identifier (gpt*, gemini*, ollama/<name>, dummy)")
	extractCmd.Flags().String("model_settings", "", `semicolon-delimited model settings, e.g. "temperature=0.2;max_tokens=4096"`)
	extractCmd.Flags().Int("thread_pool_size", 3, "concurrency limit for the task pool")
	extractCmd.Flags().Int("retry_time", 3, "retries per record after the first attempt")
	extractCmd.Flags().Bool("resume", false, "skip records already present in the output file")

	extractCmd.MarkFlagRequired("input_file_name")
	extractCmd.MarkFlagRequired("output_file_name")
	extractCmd.MarkFlagRequired("model_name")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputName, _ := cmd.Flags().GetString("input_file_name")
	outputName, _ := cmd.Flags().GetString("output_file_name")
	modelName, _ := cmd.Flags().GetString("model_name")
	modelSettings, _ := cmd.Flags().GetString("model_settings")
	workers, _ := cmd.Flags().GetInt("thread_pool_size")
	retries, _ := cmd.Flags().GetInt("retry_time")
	resume, _ := cmd.Flags().GetBool("resume")

	// Config file values apply when the flags are left at their defaults.
	if !cmd.Flags().Changed("thread_pool_size") {
		workers = viper.GetInt("thread_pool_size")
	}
	if !cmd.Flags().Changed("retry_time") {
		retries = viper.GetInt("retry_time")
	}

	settings, err := llm.ParseSettings(modelSettings)
	if err != nil {
		return err
	}

	transport, err := llm.New(ctx, modelName, settings, loadedSecrets)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Initialized LLM transport: %s\n", transport.Model())

	records, err := pipeline.LoadRecords(resolvePath(inputName, viper.GetString("train_dir")))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Loaded %d records\n", len(records))

	opts := pipeline.Options{
		OutputPath: resolvePath(outputName, viper.GetString("knowledge_dir")),
		Workers:    workers,
		Retries:    retries,
		Resume:     resume,
	}

	// Per-record failures are reported in the summary output and leave the
	// exit status zero; only fatal errors surface here.
	if _, err := pipeline.Run(ctx, transport, records, opts, os.Stdout); err != nil {
		return err
	}
	return nil
}

// resolvePath returns name unchanged when it exists or names a path with a
// directory component; otherwise it is looked up under dir.
func resolvePath(name, dir string) string {
	if name == "" || dir == "" {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(dir, name)
}
