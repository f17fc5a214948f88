// Package scraper defines the collector contract shared by every source.
// Source-specific collectors live in subpackages.
package scraper

import (
	"context"

	"skill-radar/models"
)

// Query describes one collection request against a source.
type Query struct {
	Term     string
	Location string
	MaxPages int

	// Skip reports URLs already captured; collectors avoid fetching them.
	// Nil means fetch everything.
	Skip func(url string) bool
}

func (q Query) ShouldSkip(url string) bool { return q.Skip != nil && q.Skip(url) }

// FetchResult carries what a collection run captured. Failures are per page
// or per item and never include "no results".
type FetchResult struct {
	Items    []models.Fetched
	Failures []models.ItemError
}

// Collector captures documents from one external source.
//
// Fetch returns a *models.FetchError when the query as a whole cannot be
// served (network, auth, rate limit, timeout). An empty result is not an error.
type Collector interface {
	Source() models.Source
	Fetch(ctx context.Context, q Query) (*FetchResult, error)
}
