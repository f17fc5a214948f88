package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skill-radar/config"
	"skill-radar/models"
	"skill-radar/reference"
	"skill-radar/storage"
	"skill-radar/utils"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *reference.Registry {
	t.Helper()
	r, err := reference.NewRegistry(context.Background(), reference.DefaultLoader())
	require.NoError(t, err)
	return r
}

func indeedPage(title, company, location, description string) string {
	return fmt.Sprintf(`<html><body>
<div id="jobsearch-ViewjobHeaderText-title-container"><h1>%s</h1></div>
<div data-company-name="true">%s</div>
<div data-testid="job-location">%s</div>
<div id="salaryInfoAndJobType"><span>₹8,00,000 - ₹12,00,000 a year</span><span>Full-time</span></div>
<div id="jobDescriptionText">%s</div>
</body></html>`, title, company, location, description)
}

type fixture struct {
	store      *storage.MemoryStore
	normalizer *Normalizer
	aggregator *Aggregator
	dsi        *DSICalculator
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := utils.NewNopLogger()
	store := storage.NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })

	n := NewNormalizer(testRegistry(t), DefaultExtractors(), store, store, log)
	a := NewAggregator(store, store, 14, false, log)
	d := NewDSICalculator(store, store, store, config.DefaultDSIConfig(), false, log)
	p := NewPipeline(store, n, a, d, utils.NewLocalLocker(), models.Windows, log)
	p.SetClock(func() time.Time { return testNow })

	return &fixture{store: store, normalizer: n, aggregator: a, dsi: d, pipeline: p}
}

func (f *fixture) record(t *testing.T, source models.Source, url, content string) *models.RawDocument {
	t.Helper()
	ct := models.ContentHTML
	if source == models.SourceAdzuna {
		ct = models.ContentJSON
	}
	doc, err := f.store.Record(context.Background(), source, url, ct, content)
	require.NoError(t, err)
	return doc
}
