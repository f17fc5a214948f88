package models

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateFetch is returned when a raw document already exists for (source, fetch URL).
	// Collectors treat it as a skip, never as a failure.
	ErrDuplicateFetch = errors.New("duplicate fetch")

	ErrNotFound = errors.New("not found")

	// ErrNotPending means a status transition lost the race: the document was
	// already parsed or errored by another worker.
	ErrNotPending = errors.New("raw document is not pending")

	// ErrExtraction means required fields could not be found in the content.
	ErrExtraction = errors.New("extraction failed")

	// ErrConfiguration aborts the whole operation invocation.
	ErrConfiguration = errors.New("configuration error")

	// ErrStageBusy is returned when another invocation of the same stage holds the run lock.
	ErrStageBusy = errors.New("stage already running")

	// ErrFetchFailure matches every FetchError.
	ErrFetchFailure = errors.New("fetch failure")
)

// FetchKind classifies collector failures.
type FetchKind string

const (
	FetchNetwork   FetchKind = "network"
	FetchAuth      FetchKind = "auth"
	FetchRateLimit FetchKind = "rate_limit"
	FetchTimeout   FetchKind = "timeout"
)

// FetchError is a typed collector failure for a single page or query.
type FetchError struct {
	Source Source
	URL    string
	Kind   FetchKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch %s (%s): %v", e.Source, e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFetchFailure) hold for any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

// ItemError is one itemized failure inside a batch result.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

func NewItemError(item string, err error) ItemError {
	return ItemError{Item: item, Message: err.Error()}
}
