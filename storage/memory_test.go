package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-radar/models"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemoryStore_RecordRejectsDuplicateFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc, err := s.Record(ctx, models.SourceIndeed, "https://in.indeed.com/viewjob?jk=1", models.ContentHTML, "<html/>")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.NotEmpty(t, doc.ID)

	_, err = s.Record(ctx, models.SourceIndeed, "https://in.indeed.com/viewjob?jk=1", models.ContentHTML, "<html>changed</html>")
	assert.True(t, errors.Is(err, models.ErrDuplicateFetch))

	// same URL from another source is a different fetch
	_, err = s.Record(ctx, models.SourceNaukri, "https://in.indeed.com/viewjob?jk=1", models.ContentHTML, "<html/>")
	assert.NoError(t, err)

	seen, err := s.HasFetched(ctx, models.SourceIndeed, "https://in.indeed.com/viewjob?jk=1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryStore_ListPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s.SetClock(fixedClock(base.Add(2 * time.Hour)))
	late, _ := s.Record(ctx, models.SourceIndeed, "u-late", models.ContentHTML, "x")
	s.SetClock(fixedClock(base))
	early, _ := s.Record(ctx, models.SourceIndeed, "u-early", models.ContentHTML, "x")
	tie, _ := s.Record(ctx, models.SourceIndeed, "u-tie", models.ContentHTML, "x")

	pending, err := s.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{early.ID, tie.ID, late.ID}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	limited, err := s.ListPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_TransitionsAreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc, _ := s.Record(ctx, models.SourceIndeed, "u", models.ContentHTML, "x")

	ok, err := s.MarkError(ctx, doc.ID, "missing title")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkParsed(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a terminal document must not transition again")

	got, _ := s.GetRawDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "missing title", got.Error)
	assert.True(t, got.Processed)

	require.NoError(t, s.ResetStatus(ctx, doc.ID))
	got, _ = s.GetRawDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.Error)

	_, err = s.MarkParsed(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryStore_ConcurrentMarkParsedSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc, _ := s.Record(ctx, models.SourceIndeed, "u", models.ContentHTML, "x")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkParsed(ctx, doc.ID); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func newJob(rawID, key string, posted time.Time) *models.Job {
	return &models.Job{
		RawDocumentID: rawID,
		Source:        models.SourceIndeed,
		Title:         "Backend Engineer",
		Company:       "Acme",
		PostedAt:      posted,
		DedupeKey:     key,
		Locations:     []models.Location{{City: "Pune", DistrictCode: "MH02"}},
		Skills:        []models.JobSkill{{SkillID: "golang", Name: "Go", Weight: 1, Confidence: 0.5}},
	}
}

func TestMemoryStore_CommitJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	d1, _ := s.Record(ctx, models.SourceIndeed, "u1", models.ContentHTML, "x")
	d2, _ := s.Record(ctx, models.SourceNaukri, "u2", models.ContentHTML, "x")

	first := newJob(d1.ID, "k", now)
	require.NoError(t, s.CommitJob(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.IsDuplicate())

	// arrives without duplicateOf; the store re-checks the key
	second := newJob(d2.ID, "k", now)
	require.NoError(t, s.CommitJob(ctx, second))
	assert.Equal(t, first.ID, second.DuplicateOf)

	canon, err := s.FindCanonical(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, first.ID, canon.ID)

	raw, _ := s.GetRawDocument(ctx, d2.ID)
	assert.Equal(t, models.StatusParsed, raw.Status)

	// committing against a non-pending document writes nothing
	err = s.CommitJob(ctx, newJob(d1.ID, "other", now))
	assert.True(t, errors.Is(err, models.ErrNotPending))
	_, err = s.FindCanonical(ctx, "other")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	active, err := s.ListActiveSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	bySource, err := s.ListJobsBySource(ctx, models.SourceNaukri, 0)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, second.ID, bySource[0].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d, _ := s.Record(ctx, models.SourceIndeed, "u1", models.ContentHTML, "x")
	j := newJob(d.ID, "k", time.Now())
	require.NoError(t, s.CommitJob(ctx, j))

	got, _ := s.GetJob(ctx, j.ID)
	got.Skills[0].SkillID = "mutated"

	again, _ := s.GetJob(ctx, j.ID)
	assert.Equal(t, "golang", again.Skills[0].SkillID)
}

func TestMemoryStore_ListIndexOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rows := []*models.DemandSupplyIndex{
		{Window: models.Window30d, DistrictCode: "MH02", SkillID: "golang", DSI: 1.2, Category: models.Balanced},
		{Window: models.Window30d, DistrictCode: "KA01", SkillID: "react", DSI: 4, Category: models.Undersupplied},
		{Window: models.Window30d, DistrictCode: "KA01", SkillID: "java", DSI: 0.2, Category: models.Oversupplied},
		{Window: models.Window7d, DistrictCode: "KA01", SkillID: "react", DSI: 9, Category: models.Undersupplied},
	}
	require.NoError(t, s.UpsertIndex(ctx, rows))

	all, err := s.ListIndex(ctx, models.IndexQuery{Window: models.Window30d})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "react", all[0].SkillID)
	assert.Equal(t, "java", all[2].SkillID)

	under, _ := s.ListIndex(ctx, models.IndexQuery{Category: models.Undersupplied, Limit: 1})
	require.Len(t, under, 1)
	assert.Equal(t, models.Window7d, under[0].Window)

	require.NoError(t, s.DeleteIndex(ctx, []models.FactKey{rows[0].Key()}))
	left, _ := s.ListIndex(ctx, models.IndexQuery{DistrictCode: "MH02"})
	assert.Empty(t, left)
}

func TestMemoryStore_DemandAndSupply(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := models.FactKey{Window: models.Window30d, DistrictCode: "KA01", SkillID: "react"}

	_, err := s.GetDemand(ctx, key)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, s.UpsertDemand(ctx, []*models.RadarDemand{{Window: key.Window, DistrictCode: "KA01", SkillID: "react", DemandCount: 3}}))
	require.NoError(t, s.UpsertDemand(ctx, []*models.RadarDemand{{Window: key.Window, DistrictCode: "KA01", SkillID: "react", DemandCount: 5}}))
	got, err := s.GetDemand(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, got.DemandCount)

	list, _ := s.ListDemand(ctx, models.Window30d)
	assert.Len(t, list, 1)
	require.NoError(t, s.DeleteDemand(ctx, []models.FactKey{key}))
	list, _ = s.ListDemand(ctx, models.Window30d)
	assert.Empty(t, list)

	_, err = s.GetSupply(ctx, "KA01", "react")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	require.NoError(t, s.UpsertSupply(ctx, []*models.TalentSupply{{DistrictCode: "KA01", SkillID: "react", CandidatesTotal: 10, CandidatesAboveThreshold: 4}}))
	sup, err := s.GetSupply(ctx, "KA01", "react")
	require.NoError(t, err)
	assert.Equal(t, 4, sup.CandidatesAboveThreshold)
}
