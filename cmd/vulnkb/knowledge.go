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

	"github.com/pdiddy/vulnkb/internal/knowledge"
	"github.com/pdiddy/vulnkb/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the SQLite knowledge index",
}

var knowledgeStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Index an extracted knowledge file into the local database",
	RunE:  runKnowledgeStore,
}

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge index as YAML or JSON",
	RunE:  runKnowledgeExport,
}

func init() {
	knowledgeStoreCmd.Flags().String("input_file_name", "", "knowledge JSON file to index")
	knowledgeStoreCmd.MarkFlagRequired("input_file_name")

	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	knowledgeCmd.AddCommand(knowledgeStoreCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

func openStore() (*knowledge.Store, error) {
	return knowledge.NewStore(types.KnowledgeBaseConfig{
		KnowledgeDir: viper.GetString("knowledge_dir"),
	})
}

func runKnowledgeStore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputName, _ := cmd.Flags().GetString("input_file_name")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(ctx, resolvePath(inputName, viper.GetString("knowledge_dir")), os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d of %d records failed to index", summary.Failed, summary.Total())
	}
	return nil
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, _ := cmd.Flags().GetString("format")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	switch format {
	case "yaml":
		err = store.ExportYAML(ctx)
	case "json":
		err = store.ExportJSON(ctx)
	default:
		return fmt.Errorf("unknown export format %q (want yaml or json)", format)
	}
	if err != nil {
		return err
	}

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "exported %d records as %s\n", n, format)
	return nil
}
