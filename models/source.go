package models

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Source identifies where a posting was captured.
type Source string

const (
	SourceIndeed Source = "indeed"
	SourceNaukri Source = "naukri"
	SourceNCS    Source = "ncs"
	SourceAdzuna Source = "adzuna"
)

// Sources lists every source the pipeline knows how to collect and normalize.
var Sources = []Source{SourceIndeed, SourceNaukri, SourceNCS, SourceAdzuna}

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources {
		if src == known {
			return src, nil
		}
	}
	return "", errors.Wrapf(ErrConfiguration, "unknown source %q", s)
}

// ContentType tells the normalizer how a raw document's content is encoded.
type ContentType string

const (
	ContentHTML ContentType = "html"
	ContentJSON ContentType = "json"
)
