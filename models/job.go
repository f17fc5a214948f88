package models

import "time"

// UnknownDistrict is attached to locations the geo mapping cannot resolve.
const UnknownDistrict = "UNKNOWN"

// EmploymentType of a posting.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentFreelance  EmploymentType = "freelance"
)

type Location struct {
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	DistrictCode string `json:"districtCode"`
}

type JobSkill struct {
	SkillID    string  `json:"skillId"`
	Name       string  `json:"name"`
	Weight     int     `json:"weight"`
	Confidence float64 `json:"confidence"`
}

type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Period   string  `json:"period"`
}

// Midpoint is the centre of the range, in the salary's own period.
func (s *Salary) Midpoint() float64 {
	switch {
	case s.Min > 0 && s.Max > 0:
		return (s.Min + s.Max) / 2
	case s.Max > 0:
		return s.Max
	default:
		return s.Min
	}
}

// Yearly is the midpoint expressed per year. An empty period counts as
// yearly; unknown periods yield 0 so they stay out of salary statistics.
func (s *Salary) Yearly() float64 {
	mid := s.Midpoint()
	switch s.Period {
	case "", "yearly":
		return mid
	case "monthly":
		return mid * 12
	case "hourly":
		return mid * HoursPerYear
	}
	return 0
}

// HoursPerYear converts hourly pay: 40 hours over 52 weeks.
const HoursPerYear = 2080

// Job is a canonical posting. A Job with DuplicateOf set is kept for audit
// but excluded from every aggregation.
type Job struct {
	ID             string
	RawDocumentID  string
	Source         Source
	SourceJobID    string
	CanonicalURL   string
	Title          string
	Company        string
	Description    string
	PostedAt       time.Time
	Locations      []Location
	Skills         []JobSkill
	Salary         *Salary
	EmploymentType EmploymentType
	DedupeKey      string
	DuplicateOf    string
	CreatedAt      time.Time
}

// IsDuplicate reports whether the job points at a canonical posting.
func (j *Job) IsDuplicate() bool { return j.DuplicateOf != "" }

// Extracted is what a source-specific extractor pulls out of a raw document.
type Extracted struct {
	Title           string
	Company         string
	Description     string
	Location        string
	SourceJobID     string
	CanonicalURL    string
	PostedAt        time.Time
	Salary          *Salary
	EmploymentType  EmploymentType
	SkillConfidence float64
}
