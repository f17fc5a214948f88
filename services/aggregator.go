package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"skill-radar/models"
	"skill-radar/storage"
	"skill-radar/utils"
)

// Aggregator recomputes windowed RadarDemand facts from the job store.
// Every run is a full replace-in-place recompute: the result set is built
// in memory and written as one bulk upsert.
type Aggregator struct {
	jobs       storage.JobStore
	demand     storage.DemandStore
	tau        time.Duration
	pruneStale bool
	logger     *utils.Logger
}

// NewAggregator builds an Aggregator with decay constant tauDays.
func NewAggregator(jobs storage.JobStore, demand storage.DemandStore, tauDays float64, pruneStale bool,
	logger *utils.Logger) *Aggregator {
	return &Aggregator{
		jobs:       jobs,
		demand:     demand,
		tau:        time.Duration(tauDays * float64(24*time.Hour)),
		pruneStale: pruneStale,
		logger:     logger,
	}
}

// Decay is the weight of a posting of the given age: exp(-age/tau).
// Postings dated in the future count as fresh.
func Decay(age, tau time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(tau))
}

// AggregateResult is what one window recompute wrote.
type AggregateResult struct {
	Window models.Window
	Rows   []*models.RadarDemand
	Pruned int
	JobsIn int
}

// Recompute rebuilds every RadarDemand row of the window as of now.
func (a *Aggregator) Recompute(ctx context.Context, window models.Window, now time.Time) (*AggregateResult, error) {
	span := window.Duration()
	if span == 0 {
		return nil, errors.Wrapf(models.ErrConfiguration, "unknown time window %q", window)
	}

	// Twice the span so the preceding window feeds the trend.
	jobs, err := a.jobs.ListActiveSince(ctx, now.Add(-2*span))
	if err != nil {
		return nil, errors.Wrapf(err, "list jobs for %s", window)
	}

	rows := Aggregate(jobs, window, now, a.tau)
	if err := a.demand.UpsertDemand(ctx, rows); err != nil {
		return nil, errors.Wrapf(err, "upsert demand for %s", window)
	}

	res := &AggregateResult{Window: window, Rows: rows, JobsIn: len(jobs)}
	if a.pruneStale {
		pruned, err := a.prune(ctx, window, rows)
		if err != nil {
			return nil, err
		}
		res.Pruned = pruned
	}

	a.logger.Info("[aggregator] %s: %d jobs → %d demand rows (pruned %d)", window, len(jobs), len(rows), res.Pruned)
	return res, nil
}

func (a *Aggregator) prune(ctx context.Context, window models.Window, fresh []*models.RadarDemand) (int, error) {
	existing, err := a.demand.ListDemand(ctx, window)
	if err != nil {
		return 0, errors.Wrapf(err, "list demand for %s", window)
	}
	keep := make(map[models.FactKey]struct{}, len(fresh))
	for _, r := range fresh {
		keep[r.Key()] = struct{}{}
	}
	var stale []models.FactKey
	for _, r := range existing {
		if _, ok := keep[r.Key()]; !ok {
			stale = append(stale, r.Key())
		}
	}
	if err := a.demand.DeleteDemand(ctx, stale); err != nil {
		return 0, errors.Wrapf(err, "prune demand for %s", window)
	}
	return len(stale), nil
}

type demandGroup struct {
	count     int
	prior     int
	score     float64
	employers map[string]struct{}
	salaries  []float64
}

// Aggregate is the pure core of Recompute. Jobs posted in the window count
// as demand; jobs posted in the equal-length window before it only feed
// PriorCount. Duplicates, jobs without locations and jobs without skills
// contribute nothing.
func Aggregate(jobs []*models.Job, window models.Window, now time.Time, tau time.Duration) []*models.RadarDemand {
	span := window.Duration()
	cutoff := now.Add(-span)
	priorCutoff := cutoff.Add(-span)

	// Stable input order keeps float sums bit-identical across runs.
	sorted := append([]*models.Job(nil), jobs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	groups := make(map[[2]string]*demandGroup)
	for _, j := range sorted {
		if j.IsDuplicate() || j.PostedAt.Before(priorCutoff) {
			continue
		}
		current := !j.PostedAt.Before(cutoff)
		weight := Decay(now.Sub(j.PostedAt), tau)
		company := strings.ToLower(normaliseText(j.Company))

		for _, district := range distinctDistricts(j.Locations) {
			for _, skill := range distinctSkills(j.Skills) {
				key := [2]string{district, skill}
				g, ok := groups[key]
				if !ok {
					g = &demandGroup{employers: make(map[string]struct{})}
					groups[key] = g
				}
				if !current {
					g.prior++
					continue
				}
				g.count++
				g.score += weight
				if company != "" {
					g.employers[company] = struct{}{}
				}
				if j.Salary != nil {
					if yearly := j.Salary.Yearly(); yearly > 0 {
						g.salaries = append(g.salaries, yearly)
					}
				}
			}
		}
	}

	rows := make([]*models.RadarDemand, 0, len(groups))
	for key, g := range groups {
		if g.count == 0 {
			continue
		}
		rows = append(rows, &models.RadarDemand{
			Window:           window,
			DistrictCode:     key[0],
			SkillID:          key[1],
			DemandCount:      g.count,
			DemandTrendScore: g.score,
			Employers:        len(g.employers),
			PriorCount:       g.prior,
			Salary:           salaryStats(g.salaries),
			UpdatedAt:        now,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DistrictCode != rows[j].DistrictCode {
			return rows[i].DistrictCode < rows[j].DistrictCode
		}
		return rows[i].SkillID < rows[j].SkillID
	})
	return rows
}

func distinctDistricts(locs []models.Location) []string {
	seen := make(map[string]struct{}, len(locs))
	var out []string
	for _, l := range locs {
		if l.DistrictCode == "" {
			continue
		}
		if _, ok := seen[l.DistrictCode]; !ok {
			seen[l.DistrictCode] = struct{}{}
			out = append(out, l.DistrictCode)
		}
	}
	return out
}

func distinctSkills(skills []models.JobSkill) []string {
	seen := make(map[string]struct{}, len(skills))
	var out []string
	for _, s := range skills {
		if _, ok := seen[s.SkillID]; !ok {
			seen[s.SkillID] = struct{}{}
			out = append(out, s.SkillID)
		}
	}
	return out
}

func salaryStats(values []float64) models.SalaryStats {
	if len(values) == 0 {
		return models.SalaryStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	return models.SalaryStats{
		Average: round2(total / float64(len(sorted))),
		Median:  round2(median),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
