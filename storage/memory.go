package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"skill-radar/models"
)

// MemoryStore is an in-process Store. It backs tests and single-shot local
// runs; every method is safe for concurrent use.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	raw      map[string]*models.RawDocument
	rawSeq   map[string]int64
	rawByURL map[string]string

	jobs      map[string]*models.Job
	jobOrder  []string
	canonical map[string]string

	demand    map[models.FactKey]*models.RadarDemand
	supply    map[[2]string]*models.TalentSupply
	index     map[models.FactKey]*models.DemandSupplyIndex
	skills    map[string]models.Skill
	districts map[string]models.District
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		raw:       make(map[string]*models.RawDocument),
		rawSeq:    make(map[string]int64),
		rawByURL:  make(map[string]string),
		jobs:      make(map[string]*models.Job),
		canonical: make(map[string]string),
		demand:    make(map[models.FactKey]*models.RadarDemand),
		supply:    make(map[[2]string]*models.TalentSupply),
		index:     make(map[models.FactKey]*models.DemandSupplyIndex),
		skills:    make(map[string]models.Skill),
		districts: make(map[string]models.District),
	}
}

// SetClock overrides the timestamp source, for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Close() error { return nil }

func fetchKey(source models.Source, url string) string { return string(source) + "\x00" + url }

// ==================== Raw documents ====================

func (m *MemoryStore) Record(_ context.Context, source models.Source, fetchURL string, ct models.ContentType, content string) (*models.RawDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fetchKey(source, fetchURL)
	if _, exists := m.rawByURL[key]; exists {
		return nil, errors.Wrapf(models.ErrDuplicateFetch, "%s %s", source, fetchURL)
	}

	now := m.now().UTC()
	doc := &models.RawDocument{
		ID:          uuid.NewString(),
		Source:      source,
		FetchURL:    fetchURL,
		ContentType: ct,
		Content:     content,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.seq++
	m.raw[doc.ID] = doc
	m.rawSeq[doc.ID] = m.seq
	m.rawByURL[key] = doc.ID

	cp := *doc
	return &cp, nil
}

func (m *MemoryStore) HasFetched(_ context.Context, source models.Source, fetchURL string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rawByURL[fetchKey(source, fetchURL)]
	return ok, nil
}

func (m *MemoryStore) ListPending(_ context.Context, limit int) ([]*models.RawDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*models.RawDocument
	for _, d := range m.raw {
		if d.Status == models.StatusPending {
			cp := *d
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return m.rawSeq[pending[i].ID] < m.rawSeq[pending[j].ID]
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) GetRawDocument(_ context.Context, id string) (*models.RawDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.raw[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "raw document %s", id)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) MarkParsed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, models.StatusParsed, "")
}

func (m *MemoryStore) MarkError(_ context.Context, id, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, models.StatusError, message)
}

func (m *MemoryStore) transitionLocked(id string, to models.ParseStatus, message string) (bool, error) {
	d, ok := m.raw[id]
	if !ok {
		return false, errors.Wrapf(models.ErrNotFound, "raw document %s", id)
	}
	if d.Status != models.StatusPending {
		return false, nil
	}
	d.Status = to
	d.Error = message
	d.Processed = true
	d.UpdatedAt = m.now().UTC()
	return true, nil
}

func (m *MemoryStore) ResetStatus(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.raw[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "raw document %s", id)
	}
	d.Status = models.StatusPending
	d.Error = ""
	d.Processed = false
	d.UpdatedAt = m.now().UTC()
	return nil
}

// ==================== Jobs ====================

func (m *MemoryStore) FindCanonical(_ context.Context, dedupeKey string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.canonical[dedupeKey]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "dedupe key %s", dedupeKey)
	}
	return cloneJob(m.jobs[id]), nil
}

func (m *MemoryStore) CommitJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.raw[job.RawDocumentID]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "raw document %s", job.RawDocumentID)
	}
	if doc.Status != models.StatusPending {
		return errors.Wrapf(models.ErrNotPending, "raw document %s is %s", doc.ID, doc.Status)
	}

	stored := cloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now().UTC()
	}
	if stored.DedupeKey != "" && stored.DuplicateOf == "" {
		if canon, exists := m.canonical[stored.DedupeKey]; exists {
			stored.DuplicateOf = canon
		} else {
			m.canonical[stored.DedupeKey] = stored.ID
		}
	}

	m.jobs[stored.ID] = stored
	m.jobOrder = append(m.jobOrder, stored.ID)
	_, _ = m.transitionLocked(doc.ID, models.StatusParsed, "")

	job.ID = stored.ID
	job.DuplicateOf = stored.DuplicateOf
	job.CreatedAt = stored.CreatedAt
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	return cloneJob(j), nil
}

func (m *MemoryStore) ListActiveSince(_ context.Context, cutoff time.Time) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Job
	for _, id := range m.jobOrder {
		j := m.jobs[id]
		if j.IsDuplicate() || j.PostedAt.Before(cutoff) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (m *MemoryStore) ListJobsBySource(_ context.Context, source models.Source, limit int) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Job
	for _, id := range m.jobOrder {
		j := m.jobs[id]
		if j.Source != source {
			continue
		}
		out = append(out, cloneJob(j))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneJob(j *models.Job) *models.Job {
	cp := *j
	cp.Locations = append([]models.Location(nil), j.Locations...)
	cp.Skills = append([]models.JobSkill(nil), j.Skills...)
	if j.Salary != nil {
		s := *j.Salary
		cp.Salary = &s
	}
	return &cp
}

// ==================== Demand / supply / index ====================

func (m *MemoryStore) UpsertDemand(_ context.Context, rows []*models.RadarDemand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		cp := *r
		m.demand[r.Key()] = &cp
	}
	return nil
}

func (m *MemoryStore) ListDemand(_ context.Context, window models.Window) ([]*models.RadarDemand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.RadarDemand
	for k, r := range m.demand {
		if k.Window == window {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key(), out[j].Key()) })
	return out, nil
}

func (m *MemoryStore) GetDemand(_ context.Context, key models.FactKey) (*models.RadarDemand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.demand[key]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "demand %v", key)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) DeleteDemand(_ context.Context, keys []models.FactKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.demand, k)
	}
	return nil
}

func (m *MemoryStore) GetSupply(_ context.Context, districtCode, skillID string) (*models.TalentSupply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.supply[[2]string{districtCode, skillID}]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "supply %s/%s", districtCode, skillID)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpsertSupply(_ context.Context, rows []*models.TalentSupply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		cp := *r
		m.supply[[2]string{r.DistrictCode, r.SkillID}] = &cp
	}
	return nil
}

func (m *MemoryStore) ListSupply(_ context.Context) ([]*models.TalentSupply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.TalentSupply, 0, len(m.supply))
	for _, s := range m.supply {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistrictCode != out[j].DistrictCode {
			return out[i].DistrictCode < out[j].DistrictCode
		}
		return out[i].SkillID < out[j].SkillID
	})
	return out, nil
}

func (m *MemoryStore) UpsertIndex(_ context.Context, rows []*models.DemandSupplyIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		cp := *r
		m.index[r.Key()] = &cp
	}
	return nil
}

func (m *MemoryStore) ListIndex(_ context.Context, q models.IndexQuery) ([]*models.DemandSupplyIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.DemandSupplyIndex
	for k, r := range m.index {
		if q.Window != "" && k.Window != q.Window {
			continue
		}
		if q.DistrictCode != "" && k.DistrictCode != q.DistrictCode {
			continue
		}
		if q.SkillID != "" && k.SkillID != q.SkillID {
			continue
		}
		if q.Category != "" && r.Category != q.Category {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DSI != out[j].DSI {
			return out[i].DSI > out[j].DSI
		}
		return lessKey(out[i].Key(), out[j].Key())
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteIndex(_ context.Context, keys []models.FactKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.index, k)
	}
	return nil
}

// ==================== Reference data ====================

func (m *MemoryStore) LoadSkills(_ context.Context) ([]models.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (m *MemoryStore) LoadDistricts(_ context.Context) ([]models.District, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.District, 0, len(m.districts))
	for _, d := range m.districts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistrictCode < out[j].DistrictCode })
	return out, nil
}

func (m *MemoryStore) UpsertSkills(_ context.Context, skills []models.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range skills {
		m.skills[s.SkillID] = s
	}
	return nil
}

func (m *MemoryStore) UpsertDistricts(_ context.Context, districts []models.District) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range districts {
		m.districts[d.DistrictCode] = d
	}
	return nil
}

func lessKey(a, b models.FactKey) bool {
	if a.Window != b.Window {
		return a.Window < b.Window
	}
	if a.DistrictCode != b.DistrictCode {
		return a.DistrictCode < b.DistrictCode
	}
	return a.SkillID < b.SkillID
}
