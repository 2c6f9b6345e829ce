// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package diffsource produces raw diff records from a git repository:
// before/after file content, patch text, and the line numbers a commit
// touched. See docs/ARCHITECTURE § Diff Source.
package diffsource

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/pdiddy/vulnkb/pkg/types"
)

// runner abstracts git execution for testing.
type runner interface {
	run(dir string, args ...string) (string, error)
}

// gitRunner is the production runner backed by os/exec.
type gitRunner struct{}

func (gitRunner) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Extractor reads commits from one repository.
type Extractor struct {
	repoPath string
	git      runner
}

// NewExtractor creates an extractor for the repository at repoPath.
func NewExtractor(repoPath string) *Extractor {
	return &Extractor{repoPath: repoPath, git: gitRunner{}}
}

// FileAt returns the full content of path at commit. A file absent at that
// commit (created or deleted by it) yields an empty string, not an error.
func (e *Extractor) FileAt(commit, path string) (string, error) {
	out, err := e.git.run(e.repoPath, "show", commit+":"+path)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") ||
			strings.Contains(err.Error(), "exists on disk, but not in") {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Patch returns the unified diff of path between commit and its parent.
func (e *Extractor) Patch(commit, path string) (string, error) {
	return e.git.run(e.repoPath, "diff", commit+"^", commit, "--", path)
}

// ChangedFiles lists the files a commit modified.
func (e *Extractor) ChangedFiles(commit string) ([]string, error) {
	out, err := e.git.run(e.repoPath, "show", "--name-only", "--pretty=format:", commit)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Record builds one raw diff record for a single file of a commit. Line
// numbers come from the patch hunks; when the patch is empty they are
// derived by diffing the file contents directly.
func (e *Extractor) Record(commit, path string) (types.RawDiffRecord, error) {
	before, err := e.FileAt(commit+"^", path)
	if err != nil {
		return types.RawDiffRecord{}, fmt.Errorf("reading %s before %s: %w", path, commit, err)
	}
	after, err := e.FileAt(commit, path)
	if err != nil {
		return types.RawDiffRecord{}, fmt.Errorf("reading %s at %s: %w", path, commit, err)
	}

	patch, err := e.Patch(commit, path)
	if err != nil {
		return types.RawDiffRecord{}, fmt.Errorf("diffing %s at %s: %w", path, commit, err)
	}

	modified := ParseModifiedLines(patch)
	if modified.IsEmpty() {
		modified = ModifiedLinesFromContents(before, after)
	}

	return types.RawDiffRecord{
		CodeBefore:    before,
		CodeAfter:     after,
		Patch:         patch,
		ModifiedLines: modified,
		FilePath:      path,
		CommitHash:    commit,
	}, nil
}

// Records builds raw diff records for every file a commit changed.
// Individual file failures are skipped so one unreadable path does not lose
// the rest of the commit.
func (e *Extractor) Records(commit string) ([]types.RawDiffRecord, []error) {
	files, err := e.ChangedFiles(commit)
	if err != nil {
		return nil, []error{err}
	}

	var records []types.RawDiffRecord
	var errs []error
	for _, path := range files {
		record, err := e.Record(commit, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	return records, errs
}

// hunkHeaderRe matches unified diff hunk headers like "@@ -10,5 +10,6 @@".
var hunkHeaderRe = regexp.MustCompile(`@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// ParseModifiedLines walks a unified diff and collects the added line
// numbers (in the post-change file) and deleted line numbers (in the
// pre-change file).
func ParseModifiedLines(patch string) types.ModifiedLines {
	var modified types.ModifiedLines
	oldLine, newLine := 0, 0

	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
				oldLine, _ = strconv.Atoi(m[1])
				newLine, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// File headers, not content.
		case strings.HasPrefix(line, "+"):
			modified.Added = append(modified.Added, newLine)
			newLine++
		case strings.HasPrefix(line, "-"):
			modified.Deleted = append(modified.Deleted, oldLine)
			oldLine++
		default:
			oldLine++
			newLine++
		}
	}
	return modified
}

// ModifiedLinesFromContents derives modified line numbers by diffing the
// before and after text line by line. Used when no VCS patch is available
// for a record.
func ModifiedLinesFromContents(before, after string) types.ModifiedLines {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineIndex := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lineIndex)

	var modified types.ModifiedLines
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldLine += n
			newLine += n
		case diffmatchpatch.DiffDelete:
			for i := 1; i <= n; i++ {
				modified.Deleted = append(modified.Deleted, oldLine+i)
			}
			oldLine += n
		case diffmatchpatch.DiffInsert:
			for i := 1; i <= n; i++ {
				modified.Added = append(modified.Added, newLine+i)
			}
			newLine += n
		}
	}
	return modified
}

// countLines counts the lines a diff chunk spans. A chunk without a
// trailing newline still occupies one line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
