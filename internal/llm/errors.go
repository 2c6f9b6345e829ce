// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import "errors"

// PermanentError marks a transport failure that no retry can fix: a bad
// credential, an unknown model, malformed configuration. Callers treat it as
// fatal; every other transport error is transient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
