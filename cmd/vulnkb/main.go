// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the vulnkb CLI: diff record
// production, batch knowledge extraction, query normalization, and the
// knowledge index. See docs/ARCHITECTURE § Pipeline Interface.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/vulnkb/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds LLM credentials resolved from .env and the process
// environment at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the vulnkb CLI.
var rootCmd = &cobra.Command{
	Use:   "vulnkb",
	Short: "Vulnerability knowledge extraction from code diffs",
	Long: `vulnkb turns code diffs that fix vulnerabilities into structured,
generalized vulnerability knowledge through staged LLM analysis.

Each stage is a subcommand: diff produces raw diff records from a git
repository, extract runs the batch knowledge-extraction pipeline, query
normalizes records into search metadata, and knowledge indexes extracted
results into a local SQLite store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".env")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded credentials: %v\n", secrets.Keys(s))
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./vulnkb.yaml or ~/.config/vulnkb/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vulnkb")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "vulnkb"))
		}
	}

	viper.SetEnvPrefix("VULNKB")
	viper.AutomaticEnv()

	viper.SetDefault("train_dir", "data/train")
	viper.SetDefault("knowledge_dir", "data/knowledge")
	viper.SetDefault("thread_pool_size", 3)
	viper.SetDefault("retry_time", 3)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
