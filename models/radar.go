package models

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Window is a rolling lookback period.
type Window string

const (
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window90d Window = "90d"
)

var Windows = []Window{Window7d, Window30d, Window90d}

func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if string(w) == s {
			return w, nil
		}
	}
	return "", errors.Wrapf(ErrConfiguration, "unknown time window %q", s)
}

func (w Window) Duration() time.Duration {
	switch w {
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	case Window90d:
		return 90 * 24 * time.Hour
	}
	return 0
}

// FactKey identifies a RadarDemand or DemandSupplyIndex record.
type FactKey struct {
	Window       Window
	DistrictCode string
	SkillID      string
}

type SalaryStats struct {
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// RadarDemand is the windowed demand fact for one (window, district, skill).
type RadarDemand struct {
	Window           Window
	DistrictCode     string
	SkillID          string
	DemandCount      int
	DemandTrendScore float64
	Employers        int
	PriorCount       int
	Salary           SalaryStats
	UpdatedAt        time.Time
}

func (d *RadarDemand) Key() FactKey {
	return FactKey{Window: d.Window, DistrictCode: d.DistrictCode, SkillID: d.SkillID}
}

// TalentSupply is exogenous supply data, consumed as-is.
type TalentSupply struct {
	DistrictCode             string
	SkillID                  string
	CandidatesTotal          int
	CandidatesAboveThreshold int
}

type DSICategory string

const (
	Oversupplied  DSICategory = "oversupplied"
	Balanced      DSICategory = "balanced"
	Undersupplied DSICategory = "undersupplied"
)

type MarketTightness string

const (
	VeryLoose MarketTightness = "very_loose"
	Loose     MarketTightness = "loose"
	Moderate  MarketTightness = "moderate"
	Tight     MarketTightness = "tight"
	VeryTight MarketTightness = "very_tight"
)

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// DemandSupplyIndex is the derived market signal for one (window, district, skill).
type DemandSupplyIndex struct {
	Window          Window
	DistrictCode    string
	SkillID         string
	DemandCount     int
	DemandScore     float64
	SupplyCount     int
	TotalSupply     int
	DSI             float64
	Category        DSICategory
	Trend           TrendDirection
	TrendPercentage float64
	AvgSalary       float64
	MedianSalary    float64
	SalaryMin       float64
	SalaryMax       float64
	UniqueEmployers int
	TimeToFillDays  int
	MarketTightness MarketTightness
	LastUpdated     time.Time
}

func (d *DemandSupplyIndex) Key() FactKey {
	return FactKey{Window: d.Window, DistrictCode: d.DistrictCode, SkillID: d.SkillID}
}

// IndexQuery filters DemandSupplyIndex reads. Empty fields match everything.
type IndexQuery struct {
	Window       Window
	DistrictCode string
	SkillID      string
	Category     DSICategory
	Limit        int
}
