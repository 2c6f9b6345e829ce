// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"

	"github.com/pdiddy/vulnkb/internal/llm"
)

// fatalError marks a failure that must abort the whole run: malformed input,
// corrupt existing output, unusable transport configuration. Per-record
// failures are never fatal.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err as run-aborting. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err aborts the run. Permanent transport errors
// count: a bad credential or unknown model fails every record identically,
// so retrying or continuing is pointless.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) || llm.IsPermanent(err)
}
