//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// run executes the built CLI with the given arguments.
func run(args ...string) error {
	bin := filepath.Join(binDir, binName)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", bin, args, err)
	}
	return nil
}

// Extract runs the knowledge-extraction pipeline over the default training
// file with the dummy transport. Useful as a smoke test of the whole stack.
func Extract() error {
	mg.Deps(Build, Init)
	return run("extract",
		"--input_file_name", "train.json",
		"--output_file_name", "knowledge.json",
		"--model_name", "dummy",
		"--resume")
}

// Index ingests the default extraction output into the SQLite knowledge index.
func Index() error {
	mg.Deps(Build, Init)
	return run("knowledge", "store", "--input_file_name", "knowledge.json")
}
