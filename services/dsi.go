package services

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"skill-radar/config"
	"skill-radar/models"
	"skill-radar/storage"
	"skill-radar/utils"
)

const (
	minTimeToFillDays = 7
	maxTimeToFillDays = 90
)

// DSICalculator derives DemandSupplyIndex rows from demand facts and supply.
type DSICalculator struct {
	demand     storage.DemandStore
	supply     storage.SupplyStore
	index      storage.IndexStore
	cfg        config.DSIConfig
	pruneStale bool
	logger     *utils.Logger
}

func NewDSICalculator(demand storage.DemandStore, supply storage.SupplyStore, index storage.IndexStore,
	cfg config.DSIConfig, pruneStale bool, logger *utils.Logger) *DSICalculator {
	return &DSICalculator{demand: demand, supply: supply, index: index, cfg: cfg, pruneStale: pruneStale, logger: logger}
}

// Compute is the Laplace-smoothed ratio (demandScore+1)/(supply+1).
// Zero demand against zero supply is exactly 1.
func Compute(demandScore float64, supply int) float64 {
	return (demandScore + 1) / (float64(supply) + 1)
}

func (c *DSICalculator) Categorize(dsi float64) models.DSICategory {
	switch {
	case dsi < c.cfg.OversuppliedBelow:
		return models.Oversupplied
	case dsi < c.cfg.UndersuppliedAt:
		return models.Balanced
	}
	return models.Undersupplied
}

// Tightness checks very_loose before loose so both bands are reachable.
func (c *DSICalculator) Tightness(dsi float64) models.MarketTightness {
	switch {
	case dsi > c.cfg.VeryTightAbove:
		return models.VeryTight
	case dsi > c.cfg.TightAbove:
		return models.Tight
	case dsi < c.cfg.VeryLooseBelow:
		return models.VeryLoose
	case dsi < c.cfg.LooseBelow:
		return models.Loose
	}
	return models.Moderate
}

// Trend compares the window's count with the preceding equal window.
func (c *DSICalculator) Trend(current, prior int) (models.TrendDirection, float64) {
	var pct float64
	switch {
	case prior > 0:
		pct = round2(float64(current-prior) / float64(prior) * 100)
	case current > 0:
		pct = 100
	}
	switch {
	case math.Abs(pct) < c.cfg.TrendStablePct:
		return models.TrendStable, pct
	case pct > 0:
		return models.TrendUp, pct
	}
	return models.TrendDown, pct
}

// TimeToFill estimates days to fill a role, scaled by scarcity.
func (c *DSICalculator) TimeToFill(dsi float64) int {
	days := int(math.Round(c.cfg.TimeToFillBaseDays * dsi))
	if days < minTimeToFillDays {
		return minTimeToFillDays
	}
	if days > maxTimeToFillDays {
		return maxTimeToFillDays
	}
	return days
}

// Build derives one index row. A nil supply counts as zero.
func (c *DSICalculator) Build(d *models.RadarDemand, s *models.TalentSupply, now time.Time) *models.DemandSupplyIndex {
	var supply, total int
	if s != nil {
		supply, total = s.CandidatesAboveThreshold, s.CandidatesTotal
	}
	dsi := Compute(d.DemandTrendScore, supply)
	trend, pct := c.Trend(d.DemandCount, d.PriorCount)

	return &models.DemandSupplyIndex{
		Window:          d.Window,
		DistrictCode:    d.DistrictCode,
		SkillID:         d.SkillID,
		DemandCount:     d.DemandCount,
		DemandScore:     d.DemandTrendScore,
		SupplyCount:     supply,
		TotalSupply:     total,
		DSI:             dsi,
		Category:        c.Categorize(dsi),
		Trend:           trend,
		TrendPercentage: pct,
		AvgSalary:       d.Salary.Average,
		MedianSalary:    d.Salary.Median,
		SalaryMin:       d.Salary.Min,
		SalaryMax:       d.Salary.Max,
		UniqueEmployers: d.Employers,
		TimeToFillDays:  c.TimeToFill(dsi),
		MarketTightness: c.Tightness(dsi),
		LastUpdated:     now,
	}
}

// Recompute rebuilds every index row of the window from its demand facts.
func (c *DSICalculator) Recompute(ctx context.Context, window models.Window, now time.Time) ([]*models.DemandSupplyIndex, error) {
	demand, err := c.demand.ListDemand(ctx, window)
	if err != nil {
		return nil, errors.Wrapf(err, "list demand for %s", window)
	}
	supplies, err := c.supply.ListSupply(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list supply")
	}
	bySupplyKey := make(map[[2]string]*models.TalentSupply, len(supplies))
	for _, s := range supplies {
		bySupplyKey[[2]string{s.DistrictCode, s.SkillID}] = s
	}

	rows := make([]*models.DemandSupplyIndex, 0, len(demand))
	missing := 0
	for _, d := range demand {
		s := bySupplyKey[[2]string{d.DistrictCode, d.SkillID}]
		if s == nil {
			missing++
		}
		rows = append(rows, c.Build(d, s, now))
	}

	if err := c.index.UpsertIndex(ctx, rows); err != nil {
		return nil, errors.Wrapf(err, "upsert index for %s", window)
	}
	if c.pruneStale {
		if err := c.prune(ctx, window, rows); err != nil {
			return nil, err
		}
	}

	c.logger.Info("[dsi] %s: %d index rows (%d without supply data)", window, len(rows), missing)
	return rows, nil
}

func (c *DSICalculator) prune(ctx context.Context, window models.Window, fresh []*models.DemandSupplyIndex) error {
	existing, err := c.index.ListIndex(ctx, models.IndexQuery{Window: window})
	if err != nil {
		return errors.Wrapf(err, "list index for %s", window)
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
	return errors.Wrapf(c.index.DeleteIndex(ctx, stale), "prune index for %s", window)
}
