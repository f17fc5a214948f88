package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"

	"skill-radar/models"
	"skill-radar/reference"
	"skill-radar/storage"
	"skill-radar/utils"
)

// Normalizer transforms RawDocuments into canonical Jobs.
type Normalizer struct {
	registry   *reference.Registry
	extractors Extractors
	raw        storage.RawDocumentStore
	jobs       storage.JobStore
	logger     *utils.Logger
}

// NewNormalizer wires a Normalizer. The registry is read once per document,
// so a Reload takes effect on the next document.
func NewNormalizer(registry *reference.Registry, extractors Extractors, raw storage.RawDocumentStore,
	jobs storage.JobStore, logger *utils.Logger) *Normalizer {
	return &Normalizer{registry: registry, extractors: extractors, raw: raw, jobs: jobs, logger: logger}
}

// Build derives a Job from a raw document without touching the store.
// It is deterministic for a given document and catalog.
func (n *Normalizer) Build(doc *models.RawDocument) (*models.Job, error) {
	ex, ok := n.extractors[doc.Source]
	if !ok {
		return nil, errors.Wrapf(models.ErrConfiguration, "no extractor for source %q", doc.Source)
	}
	fields, err := ex.Extract(doc)
	if err != nil {
		return nil, err
	}

	catalog := n.registry.Current()
	return &models.Job{
		RawDocumentID:  doc.ID,
		Source:         doc.Source,
		SourceJobID:    fields.SourceJobID,
		CanonicalURL:   fields.CanonicalURL,
		Title:          fields.Title,
		Company:        fields.Company,
		Description:    fields.Description,
		PostedAt:       fields.PostedAt.UTC(),
		Locations:      ResolveLocation(catalog, fields.Location),
		Skills:         TagSkills(catalog, fields.Title, fields.Description, fields.SkillConfidence),
		Salary:         fields.Salary,
		EmploymentType: fields.EmploymentType,
		DedupeKey:      DedupeKey(fields.Company, fields.Title, fields.Location),
	}, nil
}

// Process normalizes one pending document and commits the outcome.
// It returns models.ErrNotPending (wrapped) when another worker already
// decided the document; any other error has been recorded on the document.
func (n *Normalizer) Process(ctx context.Context, doc *models.RawDocument) (*models.Job, error) {
	job, err := n.Build(doc)
	if err != nil {
		if errors.Is(err, models.ErrConfiguration) {
			return nil, err
		}
		return nil, n.fail(ctx, doc, err)
	}

	canonical, err := n.jobs.FindCanonical(ctx, job.DedupeKey)
	switch {
	case err == nil:
		job.DuplicateOf = canonical.ID
	case !errors.Is(err, models.ErrNotFound):
		return nil, n.fail(ctx, doc, errors.Wrap(err, "lookup dedupe key"))
	}

	if err := n.jobs.CommitJob(ctx, job); err != nil {
		if errors.Is(err, models.ErrNotPending) {
			return nil, err
		}
		return nil, n.fail(ctx, doc, errors.Wrap(err, "persist job"))
	}

	if job.IsDuplicate() {
		n.logger.Debug("[normalizer] %s is a duplicate of job %s", doc.ID, job.DuplicateOf)
	}
	return job, nil
}

func (n *Normalizer) fail(ctx context.Context, doc *models.RawDocument, cause error) error {
	applied, err := n.raw.MarkError(ctx, doc.ID, cause.Error())
	if err != nil {
		n.logger.Error("[normalizer] could not mark %s as error: %v", doc.ID, err)
		return errors.CombineErrors(cause, err)
	}
	if !applied {
		return errors.Wrapf(models.ErrNotPending, "raw document %s", doc.ID)
	}
	n.logger.Warn("[normalizer] %s (%s): %v", doc.ID, doc.FetchURL, cause)
	return cause
}

// DedupeKey is the hex SHA-1 of company|title|location. Source and
// description are deliberately left out so mirrored postings collide.
func DedupeKey(company, title, location string) string {
	sum := sha1.Sum([]byte(normaliseText(company) + "|" + normaliseText(title) + "|" + normaliseText(location)))
	return hex.EncodeToString(sum[:])
}

// ResolveLocation maps a raw location string to at most one Location. The
// city is the text before the first comma. Unknown cities keep their text
// with the UNKNOWN district code. An empty string yields no locations.
func ResolveLocation(c *reference.Catalog, raw string) []models.Location {
	raw = normaliseText(raw)
	if raw == "" {
		return nil
	}
	parts := strings.SplitN(raw, ",", 3)
	city := strings.TrimSpace(parts[0])
	if city == "" {
		return nil
	}

	if alias, district, ok := c.MatchCity(city); ok {
		return []models.Location{{City: alias, State: district.StateName, DistrictCode: district.DistrictCode}}
	}

	loc := models.Location{City: city, DistrictCode: models.UnknownDistrict}
	if len(parts) > 1 {
		loc.State = strings.TrimSpace(parts[1])
	}
	return []models.Location{loc}
}

// TagSkills matches active taxonomy entries against title and description.
// Matching is case-insensitive substring search over the canonical name and
// synonyms. Weight is 2 when the canonical name appears in the title.
func TagSkills(c *reference.Catalog, title, description string, confidence float64) []models.JobSkill {
	content := strings.ToLower(title + " " + description)
	lowerTitle := strings.ToLower(title)

	var found []models.JobSkill
	for _, s := range c.Skills() {
		if !s.Active || !containsAny(content, s.Canonical, s.Synonyms) {
			continue
		}
		weight := 1
		if canonical := strings.ToLower(s.Canonical); canonical != "" && strings.Contains(lowerTitle, canonical) {
			weight = 2
		}
		found = append(found, models.JobSkill{
			SkillID:    s.SkillID,
			Name:       s.Canonical,
			Weight:     weight,
			Confidence: confidence,
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].SkillID < found[j].SkillID })
	return found
}

func containsAny(content, canonical string, synonyms []string) bool {
	for _, term := range append([]string{canonical}, synonyms...) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(content, term) {
			return true
		}
	}
	return false
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
