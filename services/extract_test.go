package services

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-radar/models"
)

func TestHTMLExtractor_Indeed(t *testing.T) {
	captured := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)
	doc := &models.RawDocument{
		Source:    models.SourceIndeed,
		FetchURL:  "https://in.indeed.com/viewjob?jk=abc123XYZ&from=serp",
		Content:   indeedPage("  Senior   React Developer ", "Acme", "Bengaluru, Karnataka", "Build UIs with reactjs."),
		CreatedAt: captured,
	}

	got, err := DefaultExtractors()[models.SourceIndeed].Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, "Senior React Developer", got.Title)
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, "Bengaluru, Karnataka", got.Location)
	assert.Equal(t, "abc123XYZ", got.SourceJobID)
	assert.Equal(t, doc.FetchURL, got.CanonicalURL)
	assert.Equal(t, captured, got.PostedAt)
	assert.Equal(t, 0.5, got.SkillConfidence)
	assert.Equal(t, models.EmploymentFullTime, got.EmploymentType)
	require.NotNil(t, got.Salary)
	assert.Equal(t, 800000.0, got.Salary.Min)
	assert.Equal(t, 1200000.0, got.Salary.Max)
	assert.Equal(t, "yearly", got.Salary.Period)
}

func TestHTMLExtractor_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no title", indeedPage("", "Acme", "Pune", "x")},
		{"no company", indeedPage("Backend Engineer", "", "Pune", "x")},
		{"not a job page", "<html><body><p>captcha</p></body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &models.RawDocument{Source: models.SourceIndeed, FetchURL: "u", Content: tt.content}
			_, err := DefaultExtractors()[models.SourceIndeed].Extract(doc)
			assert.True(t, errors.Is(err, models.ErrExtraction), "got %v", err)
		})
	}
}

func TestAdzunaExtractor(t *testing.T) {
	doc := &models.RawDocument{
		Source:    models.SourceAdzuna,
		FetchURL:  "https://www.adzuna.in/details/4242",
		CreatedAt: testNow,
		Content: `{"id":"4242","title":"Golang Engineer","description":"Go developer with docker",
			"created":"2024-05-20T10:00:00Z","redirect_url":"https://www.adzuna.in/land/ad/4242",
			"salary_min":900000,"salary_max":1500000,"contract_time":"part_time",
			"company":{"display_name":"Initech"},"location":{"display_name":"Pune, Maharashtra"}}`,
	}

	got, err := (&AdzunaExtractor{Currency: "INR"}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, "4242", got.SourceJobID)
	assert.Equal(t, "Initech", got.Company)
	assert.Equal(t, "Pune, Maharashtra", got.Location)
	assert.Equal(t, "https://www.adzuna.in/land/ad/4242", got.CanonicalURL)
	assert.Equal(t, time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC), got.PostedAt)
	assert.Equal(t, models.EmploymentPartTime, got.EmploymentType)
	assert.Equal(t, 0.8, got.SkillConfidence)
	require.NotNil(t, got.Salary)
	assert.Equal(t, 1200000.0, got.Salary.Midpoint())
}

func TestAdzunaExtractor_NumericIDAndBadCreated(t *testing.T) {
	doc := &models.RawDocument{
		Source:    models.SourceAdzuna,
		FetchURL:  "adzuna://job/7",
		CreatedAt: testNow,
		Content:   `{"id":7,"title":"Accountant","company":{"display_name":"Globex"},"created":"yesterday"}`,
	}
	got, err := (&AdzunaExtractor{Currency: "INR"}).Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, "7", got.SourceJobID)
	assert.Equal(t, "adzuna://job/7", got.CanonicalURL)
	assert.Equal(t, testNow, got.PostedAt)
	assert.Nil(t, got.Salary)
}

func TestAdzunaExtractor_Invalid(t *testing.T) {
	for _, content := range []string{`not json`, `{"title":"Only title"}`} {
		doc := &models.RawDocument{Source: models.SourceAdzuna, Content: content}
		_, err := (&AdzunaExtractor{}).Extract(doc)
		assert.True(t, errors.Is(err, models.ErrExtraction), "content %q: %v", content, err)
	}
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		raw    string
		min    float64
		max    float64
		period string
	}{
		{"₹5,00,000 - ₹8,00,000 a year", 500000, 800000, "yearly"},
		{"₹25,000 a month", 25000, 25000, "monthly"},
		{"6 - 10 LPA", 600000, 1000000, "yearly"},
		{"₹300 an hour", 300, 300, "hourly"},
		{"Up to 4.5 lakh", 450000, 450000, "yearly"},
	}
	for _, tt := range tests {
		s := parseSalary(tt.raw)
		require.NotNil(t, s, tt.raw)
		assert.Equal(t, tt.min, s.Min, tt.raw)
		assert.Equal(t, tt.max, s.Max, tt.raw)
		assert.Equal(t, tt.period, s.Period, tt.raw)
	}

	assert.Nil(t, parseSalary(""))
	assert.Nil(t, parseSalary("Competitive"))
}

func TestClassifyEmployment(t *testing.T) {
	tests := []struct {
		text string
		want models.EmploymentType
	}{
		{"Software Engineering Intern", models.EmploymentInternship},
		{"Java Developer (Contract)", models.EmploymentContract},
		{"Part-time Tutor", models.EmploymentPartTime},
		{"Data entry, part time", models.EmploymentPartTime},
		{"Freelance Designer", models.EmploymentFreelance},
		{"Backend Engineer", models.EmploymentFullTime},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyEmployment(tt.text), tt.text)
	}
}
