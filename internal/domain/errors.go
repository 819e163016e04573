package domain

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by a trigger when a run for the source is
// still in state running. No new run record is created.
var ErrAlreadyRunning = errors.New("sync already running")

// ErrDuplicateItem is returned by the item store when an insert collides with
// the (source, source_id) unique constraint.
var ErrDuplicateItem = errors.New("item already exists")

// CredentialError aborts a trigger before any run record is created.
type CredentialError struct {
	Source string
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential validation failed for %s: %s", e.Source, e.Reason)
}

// FetchError is a feed-level fatal error: the candidate stream itself became
// unusable. It aborts the in-flight run, which ends failed with whatever was
// ingested so far.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RecordError is a soft per-record failure (unparseable line, rejected
// create). It is appended to the run's error list and never aborts the run.
type RecordError struct {
	ExternalID string
	Err        error
}

func (e *RecordError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("bad record: %v", e.Err)
	}
	return fmt.Sprintf("bad record %s: %v", e.ExternalID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// SoftRecordErr wraps err as a per-record soft error.
func SoftRecordErr(externalID string, err error) *RecordError {
	return &RecordError{ExternalID: externalID, Err: err}
}

// IsRecordError reports whether err is a soft per-record error.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}
