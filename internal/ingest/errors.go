package ingest

import (
	"errors"
	"fmt"
)

// Source-level failure kinds. All three are fatal for a run.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceEmpty       = errors.New("source empty")
	ErrSourceMalformed   = errors.New("source malformed")
)

// SourceError reports a source that could not be used. It matches its Kind
// and the underlying cause with errors.Is.
type SourceError struct {
	Kind   error
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest: %s: %s", e.Kind, e.Source)
	}
	return fmt.Sprintf("ingest: %s: %s: %v", e.Kind, e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(src string, err error) error {
	return &SourceError{Kind: ErrSourceUnavailable, Source: src, Err: err}
}

func empty(src, detail string) error {
	return &SourceError{Kind: ErrSourceEmpty, Source: src, Err: errors.New(detail)}
}

func malformed(src string, err error) error {
	return &SourceError{Kind: ErrSourceMalformed, Source: src, Err: err}
}
