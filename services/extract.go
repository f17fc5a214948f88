package services

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"skill-radar/models"
)

var (
	// amountRegexp captures numeric salary values once separators are removed
	amountRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// indeedJobIDRegexp captures the jk= query parameter of an Indeed job URL
	indeedJobIDRegexp = regexp.MustCompile(`jk=([a-zA-Z0-9]+)`)
)

// Extractor pulls the source-specific fields out of one raw document.
type Extractor interface {
	Extract(doc *models.RawDocument) (*models.Extracted, error)
}

// Extractors maps a source to its extraction strategy.
type Extractors map[models.Source]Extractor

// DefaultExtractors returns the built-in strategy for every known source.
func DefaultExtractors() Extractors {
	return Extractors{
		models.SourceIndeed: NewHTMLExtractor(IndeedSelectors, indeedJobIDRegexp),
		models.SourceNaukri: NewHTMLExtractor(NaukriSelectors, nil),
		models.SourceNCS:    NewHTMLExtractor(NCSSelectors, nil),
		models.SourceAdzuna: &AdzunaExtractor{Currency: "INR"},
	}
}

// HTMLSelectors are the CSS selectors for one job-board detail page.
// Each entry may be a selector group; the first match wins.
type HTMLSelectors struct {
	Title       string
	Company     string
	Description string
	Location    string
	Salary      string
	JobType     string
}

var (
	IndeedSelectors = HTMLSelectors{
		Title:       `#jobsearch-ViewjobHeaderText-title-container h1, h1[data-testid="jobsearch-JobInfoHeader-title"]`,
		Company:     `[data-company-name="true"]`,
		Description: `#jobDescriptionText`,
		Location:    `div[data-testid="job-location"], div[data-testid="inlineHeader-companyLocation"]`,
		Salary:      `#salaryInfoAndJobType span:first-child, [data-testid="salaryInfoAndJobType"]`,
		JobType:     `#salaryInfoAndJobType`,
	}

	NaukriSelectors = HTMLSelectors{
		Title:       `h1[class*="jd-header-title"], h1`,
		Company:     `div[class*="jd-header-comp-name"] a, .jd-header-comp-name`,
		Description: `div[class*="job-desc"], section.job-desc`,
		Location:    `span[class*="location"] a, .location`,
		Salary:      `div[class*="salary"] span, .salary`,
		JobType:     `div[class*="other-details"]`,
	}

	NCSSelectors = HTMLSelectors{
		Title:       `.job-title, h1`,
		Company:     `.company-name, .employer-name`,
		Description: `.job-description, #jobDescription`,
		Location:    `.job-location, .location`,
		Salary:      `.salary, .job-salary`,
		JobType:     `.job-type`,
	}
)

// HTMLExtractor selects fields from scraped markup with goquery.
type HTMLExtractor struct {
	selectors  HTMLSelectors
	jobID      *regexp.Regexp
	confidence float64
}

func NewHTMLExtractor(selectors HTMLSelectors, jobID *regexp.Regexp) *HTMLExtractor {
	return &HTMLExtractor{selectors: selectors, jobID: jobID, confidence: 0.5}
}

func (e *HTMLExtractor) Extract(doc *models.RawDocument) (*models.Extracted, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content))
	if err != nil {
		return nil, errors.Wrapf(models.ErrExtraction, "parse html: %v", err)
	}

	text := func(sel string) string {
		if sel == "" {
			return ""
		}
		return normaliseText(page.Find(sel).First().Text())
	}

	out := &models.Extracted{
		Title:           text(e.selectors.Title),
		Company:         text(e.selectors.Company),
		Description:     text(e.selectors.Description),
		Location:        text(e.selectors.Location),
		SourceJobID:     doc.FetchURL,
		CanonicalURL:    doc.FetchURL,
		PostedAt:        doc.CreatedAt,
		SkillConfidence: e.confidence,
	}
	if err := requireFields(out); err != nil {
		return nil, err
	}

	if e.jobID != nil {
		if m := e.jobID.FindStringSubmatch(doc.FetchURL); len(m) == 2 {
			out.SourceJobID = m[1]
		}
	}
	out.Salary = parseSalary(text(e.selectors.Salary))
	out.EmploymentType = classifyEmployment(out.Title + " " + text(e.selectors.JobType))
	return out, nil
}

// AdzunaExtractor maps one Adzuna search result to the extracted fields.
type AdzunaExtractor struct {
	Currency string
}

type adzunaListing struct {
	ID           json.RawMessage `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Created      string          `json:"created"`
	RedirectURL  string          `json:"redirect_url"`
	SalaryMin    float64         `json:"salary_min"`
	SalaryMax    float64         `json:"salary_max"`
	ContractTime string          `json:"contract_time"`
	ContractType string          `json:"contract_type"`
	Company      adzunaName      `json:"company"`
	Location     adzunaName      `json:"location"`
}

type adzunaName struct {
	DisplayName string `json:"display_name"`
}

func (e *AdzunaExtractor) Extract(doc *models.RawDocument) (*models.Extracted, error) {
	var l adzunaListing
	if err := json.Unmarshal([]byte(doc.Content), &l); err != nil {
		return nil, errors.Wrapf(models.ErrExtraction, "decode listing: %v", err)
	}

	out := &models.Extracted{
		Title:           normaliseText(l.Title),
		Company:         normaliseText(l.Company.DisplayName),
		Description:     normaliseText(l.Description),
		Location:        normaliseText(l.Location.DisplayName),
		SourceJobID:     strings.Trim(string(l.ID), `"`),
		CanonicalURL:    l.RedirectURL,
		PostedAt:        doc.CreatedAt,
		SkillConfidence: 0.8,
	}
	if err := requireFields(out); err != nil {
		return nil, err
	}
	if out.SourceJobID == "" {
		out.SourceJobID = doc.FetchURL
	}
	if out.CanonicalURL == "" {
		out.CanonicalURL = doc.FetchURL
	}
	if t, err := time.Parse(time.RFC3339, l.Created); err == nil {
		out.PostedAt = t.UTC()
	}
	if l.SalaryMin > 0 || l.SalaryMax > 0 {
		out.Salary = &models.Salary{Min: l.SalaryMin, Max: l.SalaryMax, Currency: e.Currency, Period: "yearly"}
	}

	switch {
	case l.ContractType == "contract":
		out.EmploymentType = models.EmploymentContract
	case l.ContractTime == "part_time":
		out.EmploymentType = models.EmploymentPartTime
	case l.ContractTime == "full_time":
		out.EmploymentType = models.EmploymentFullTime
	default:
		out.EmploymentType = classifyEmployment(out.Title)
	}
	return out, nil
}

func requireFields(e *models.Extracted) error {
	switch {
	case e.Title == "":
		return errors.Wrap(models.ErrExtraction, "title not found")
	case e.Company == "":
		return errors.Wrap(models.ErrExtraction, "company not found")
	}
	return nil
}

// parseSalary reads a free-text salary.
// Examples:
//
//	"₹5,00,000 - ₹8,00,000 a year" → 500000..800000 yearly
//	"₹25,000 a month"              → 25000..25000 monthly
//	"6 - 10 LPA"                   → 600000..1000000 yearly
func parseSalary(raw string) *models.Salary {
	raw = strings.ToLower(raw)
	matches := amountRegexp.FindAllString(strings.ReplaceAll(raw, ",", ""), 2)
	if len(matches) == 0 {
		return nil
	}

	multiplier := 1.0
	if strings.Contains(raw, "lakh") || strings.Contains(raw, "lpa") {
		multiplier = 100000
	}

	var amounts []float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || v <= 0 {
			continue
		}
		amounts = append(amounts, v*multiplier)
	}
	if len(amounts) == 0 {
		return nil
	}

	s := &models.Salary{Min: amounts[0], Max: amounts[len(amounts)-1], Currency: "INR", Period: "yearly"}
	if s.Max < s.Min {
		s.Min, s.Max = s.Max, s.Min
	}
	switch {
	case strings.Contains(raw, "month"):
		s.Period = "monthly"
	case strings.Contains(raw, "hour"):
		s.Period = "hourly"
	}
	return s
}

// classifyEmployment guesses the employment type from free text.
func classifyEmployment(text string) models.EmploymentType {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "intern"):
		return models.EmploymentInternship
	case strings.Contains(text, "contract"):
		return models.EmploymentContract
	case strings.Contains(text, "part-time"), strings.Contains(text, "part time"):
		return models.EmploymentPartTime
	case strings.Contains(text, "freelance"):
		return models.EmploymentFreelance
	}
	return models.EmploymentFullTime
}
