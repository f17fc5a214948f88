package models

import "time"

// ParseStatus is the processing state of a raw document.
type ParseStatus string

const (
	StatusPending ParseStatus = "pending"
	StatusParsed  ParseStatus = "parsed"
	StatusError   ParseStatus = "error"
)

// RawDocument holds one successful fetch, before any normalization.
// At most one exists per (Source, FetchURL).
type RawDocument struct {
	ID          string
	Source      Source
	FetchURL    string
	ContentType ContentType
	Content     string
	Status      ParseStatus
	Error       string
	Processed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fetched is a single document returned by a collector.
type Fetched struct {
	SourceURL   string
	ContentType ContentType
	Content     string
}
