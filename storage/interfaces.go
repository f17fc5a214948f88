package storage

import (
	"context"
	"time"

	"skill-radar/models"
)

// RawDocumentStore holds one record per fetch with a pending/parsed/error state machine.
type RawDocumentStore interface {
	// Record creates a pending document. It returns models.ErrDuplicateFetch
	// when (source, fetchURL) already exists.
	Record(ctx context.Context, source models.Source, fetchURL string, ct models.ContentType, content string) (*models.RawDocument, error)
	// HasFetched reports whether (source, fetchURL) was already recorded.
	HasFetched(ctx context.Context, source models.Source, fetchURL string) (bool, error)
	// ListPending returns up to limit pending documents, oldest first, without mutating them.
	ListPending(ctx context.Context, limit int) ([]*models.RawDocument, error)
	GetRawDocument(ctx context.Context, id string) (*models.RawDocument, error)
	// MarkParsed and MarkError only transition pending documents. applied is
	// false when the document was already parsed or errored.
	MarkParsed(ctx context.Context, id string) (applied bool, err error)
	MarkError(ctx context.Context, id, message string) (applied bool, err error)
	// ResetStatus puts a document back to pending. Administrative only.
	ResetStatus(ctx context.Context, id string) error
}

// JobStore holds canonical and duplicate postings.
type JobStore interface {
	// FindCanonical returns the non-duplicate job with the given dedupe key or models.ErrNotFound.
	FindCanonical(ctx context.Context, dedupeKey string) (*models.Job, error)
	// CommitJob inserts job and moves its raw document from pending to parsed
	// in one step. It returns models.ErrNotPending and writes nothing when the
	// document is no longer pending. If a canonical job with the same dedupe
	// key already exists, job is stored as its duplicate.
	CommitJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// ListActiveSince returns non-duplicate jobs posted at or after cutoff.
	ListActiveSince(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
	ListJobsBySource(ctx context.Context, source models.Source, limit int) ([]*models.Job, error)
}

// DemandStore holds RadarDemand facts.
type DemandStore interface {
	UpsertDemand(ctx context.Context, rows []*models.RadarDemand) error
	ListDemand(ctx context.Context, window models.Window) ([]*models.RadarDemand, error)
	GetDemand(ctx context.Context, key models.FactKey) (*models.RadarDemand, error)
	DeleteDemand(ctx context.Context, keys []models.FactKey) error
}

// SupplyStore holds exogenous TalentSupply rows.
type SupplyStore interface {
	GetSupply(ctx context.Context, districtCode, skillID string) (*models.TalentSupply, error)
	UpsertSupply(ctx context.Context, rows []*models.TalentSupply) error
	ListSupply(ctx context.Context) ([]*models.TalentSupply, error)
}

// IndexStore holds DemandSupplyIndex facts.
type IndexStore interface {
	UpsertIndex(ctx context.Context, rows []*models.DemandSupplyIndex) error
	// ListIndex returns rows matching q ordered by DSI descending.
	ListIndex(ctx context.Context, q models.IndexQuery) ([]*models.DemandSupplyIndex, error)
	DeleteIndex(ctx context.Context, keys []models.FactKey) error
}

// ReferenceStore holds the skill taxonomy and geo mapping tables.
type ReferenceStore interface {
	LoadSkills(ctx context.Context) ([]models.Skill, error)
	LoadDistricts(ctx context.Context) ([]models.District, error)
	UpsertSkills(ctx context.Context, skills []models.Skill) error
	UpsertDistricts(ctx context.Context, districts []models.District) error
}

// Store is the full persisted state of the pipeline.
type Store interface {
	RawDocumentStore
	JobStore
	DemandStore
	SupplyStore
	IndexStore
	ReferenceStore
	Close() error
}

// IndexWriter is implemented by exporters of DemandSupplyIndex snapshots.
type IndexWriter interface {
	WriteIndex(rows []*models.DemandSupplyIndex) error
	Close() error
}
