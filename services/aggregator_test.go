package services

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-radar/models"
	"skill-radar/utils"
)

const tau = 14 * 24 * time.Hour

var jobSeq int

func job(company, district string, posted time.Time, skills ...string) *models.Job {
	jobSeq++
	j := &models.Job{
		ID:        fmt.Sprintf("job-%03d", jobSeq),
		Company:   company,
		Title:     "Engineer",
		PostedAt:  posted,
		Locations: []models.Location{{City: district, DistrictCode: district}},
	}
	for _, s := range skills {
		j.Skills = append(j.Skills, models.JobSkill{SkillID: s, Weight: 1})
	}
	return j
}

func daysAgo(d int) time.Time { return testNow.AddDate(0, 0, -d) }

func TestAggregate_WindowScenario(t *testing.T) {
	jobs := []*models.Job{
		job("A", "KA01", testNow, "react"),
		job("B", "KA01", testNow, "react"),
		job("C", "KA01", testNow, "react"),
		job("D", "KA01", daysAgo(30), "react"),
		job("E", "KA01", daysAgo(30), "react"),
	}

	rows := Aggregate(jobs, models.Window30d, testNow, tau)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, 5, r.DemandCount)
	assert.InDelta(t, 3+2*math.Exp(-30.0/14.0), r.DemandTrendScore, 1e-9)
	assert.Equal(t, 5, r.Employers)
	assert.Equal(t, testNow, r.UpdatedAt)
}

func TestAggregate_DecayMonotonicity(t *testing.T) {
	recent := Aggregate([]*models.Job{
		job("A", "KA01", daysAgo(1), "react"),
		job("B", "KA01", daysAgo(2), "react"),
	}, models.Window90d, testNow, tau)
	older := Aggregate([]*models.Job{
		job("A", "KA01", daysAgo(40), "react"),
		job("B", "KA01", daysAgo(60), "react"),
	}, models.Window90d, testNow, tau)

	require.Len(t, recent, 1)
	require.Len(t, older, 1)
	assert.Equal(t, recent[0].DemandCount, older[0].DemandCount)
	assert.GreaterOrEqual(t, recent[0].DemandTrendScore, older[0].DemandTrendScore)

	prev := Decay(0, tau)
	for d := 1; d <= 90; d++ {
		w := Decay(time.Duration(d)*24*time.Hour, tau)
		assert.LessOrEqual(t, w, prev)
		prev = w
	}
	assert.Equal(t, 1.0, Decay(-time.Hour, tau), "future postings count as fresh")
}

func TestAggregate_ExpansionAndExclusions(t *testing.T) {
	multi := job("Acme", "KA01", testNow, "react", "javascript", "react")
	multi.Locations = append(multi.Locations,
		models.Location{City: "Whitefield", DistrictCode: "KA01"},
		models.Location{City: "Pune", DistrictCode: "MH02"})

	dup := job("Acme", "KA01", testNow, "react")
	dup.DuplicateOf = multi.ID

	noSkills := job("Acme", "KA01", testNow)
	noLocation := job("Acme", "", testNow, "react")
	noLocation.Locations = nil
	tooOld := job("Acme", "KA01", daysAgo(20), "react")

	rows := Aggregate([]*models.Job{multi, dup, noSkills, noLocation, tooOld}, models.Window7d, testNow, tau)

	got := make(map[string]int)
	for _, r := range rows {
		got[r.DistrictCode+"/"+r.SkillID] = r.DemandCount
	}
	assert.Equal(t, map[string]int{
		"KA01/javascript": 1,
		"KA01/react":      1,
		"MH02/javascript": 1,
		"MH02/react":      1,
	}, got)

	// sorted by district then skill
	assert.Equal(t, "javascript", rows[0].SkillID)
	assert.Equal(t, "MH02", rows[3].DistrictCode)
}

func TestAggregate_PriorWindowAndSalaries(t *testing.T) {
	withSalary := func(j *models.Job, min, max float64) *models.Job {
		j.Salary = &models.Salary{Min: min, Max: max}
		return j
	}
	jobs := []*models.Job{
		withSalary(job("Acme", "MH02", daysAgo(1), "golang"), 1000000, 1400000),
		withSalary(job("acme ", "MH02", daysAgo(2), "golang"), 800000, 800000),
		withSalary(job("Globex", "MH02", daysAgo(3), "golang"), 2000000, 0),
		job("Initech", "MH02", daysAgo(10), "golang"),
		job("Initech", "MH02", daysAgo(12), "golang"),
		job("Initech", "MH02", daysAgo(20), "golang"),
	}

	rows := Aggregate(jobs, models.Window7d, testNow, tau)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, 3, r.DemandCount)
	assert.Equal(t, 2, r.PriorCount)
	assert.Equal(t, 2, r.Employers, "company names compare case-insensitively")
	assert.Equal(t, models.SalaryStats{Average: 1333333.33, Median: 1200000, Min: 800000, Max: 2000000}, r.Salary)
}

func TestAggregate_SalariesAreYearly(t *testing.T) {
	paid := func(company string, amount float64, period string) *models.Job {
		j := job(company, "KA01", daysAgo(1), "react")
		j.Salary = &models.Salary{Min: amount, Max: amount, Currency: "INR", Period: period}
		return j
	}
	jobs := []*models.Job{
		paid("Acme", 1200000, "yearly"),
		paid("Globex", 25000, "monthly"),
		paid("Initech", 500, "hourly"),
		paid("Hooli", 9000, "weekly"),
	}

	rows := Aggregate(jobs, models.Window7d, testNow, tau)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].DemandCount)
	// 1,200,000 yearly, 300,000 from monthly, 1,040,000 from hourly; weekly is left out
	assert.Equal(t, models.SalaryStats{Average: 846666.67, Median: 1040000, Min: 300000, Max: 1200000}, rows[0].Salary)
}

func TestAggregate_PriorOnlyGroupsAreDropped(t *testing.T) {
	rows := Aggregate([]*models.Job{job("Acme", "KA01", daysAgo(10), "react")}, models.Window7d, testNow, tau)
	assert.Empty(t, rows)
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i, posted := range []time.Time{testNow, daysAgo(3), daysAgo(25)} {
		doc := f.record(t, models.SourceIndeed, fmt.Sprintf("u%d", i),
			indeedPage(fmt.Sprintf("React Developer %d", i), "Acme", "Bengaluru", "reactjs"))
		j, err := f.normalizer.Build(doc)
		require.NoError(t, err)
		j.PostedAt = posted
		require.NoError(t, f.store.CommitJob(ctx, j))
	}

	_, err := f.aggregator.Recompute(ctx, models.Window30d, testNow)
	require.NoError(t, err)
	first, _ := f.store.ListDemand(ctx, models.Window30d)

	_, err = f.aggregator.Recompute(ctx, models.Window30d, testNow)
	require.NoError(t, err)
	second, _ := f.store.ListDemand(ctx, models.Window30d)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, first[0].DemandCount)
}

func TestAggregator_StaleRows(t *testing.T) {
	ctx := context.Background()
	stale := &models.RadarDemand{Window: models.Window7d, DistrictCode: "DL01", SkillID: "java", DemandCount: 4}

	t.Run("retained by default", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.UpsertDemand(ctx, []*models.RadarDemand{stale}))
		_, err := f.aggregator.Recompute(ctx, models.Window7d, testNow)
		require.NoError(t, err)

		rows, _ := f.store.ListDemand(ctx, models.Window7d)
		assert.Len(t, rows, 1)
	})

	t.Run("pruned when enabled", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.UpsertDemand(ctx, []*models.RadarDemand{stale}))
		a := NewAggregator(f.store, f.store, 14, true, utils.NewNopLogger())
		res, err := a.Recompute(ctx, models.Window7d, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Pruned)

		rows, _ := f.store.ListDemand(ctx, models.Window7d)
		assert.Empty(t, rows)
	})
}
