// Package reference holds the skill taxonomy and geo mapping used by the
// normalizer. A Catalog is immutable once built; Registry swaps catalogs on
// an explicit Reload.
package reference

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"skill-radar/models"
)

// Catalog is an immutable lookup over skills and districts.
type Catalog struct {
	skills    []models.Skill
	skillByID map[string]models.Skill
	districts map[string]models.District
	cityIndex map[string]cityEntry
	loadedAt  time.Time
}

type cityEntry struct {
	alias    string
	district models.District
}

// NewCatalog validates and indexes reference data. Skill ids and district
// codes must be unique; a city alias claimed by two districts is an error.
func NewCatalog(skills []models.Skill, districts []models.District) (*Catalog, error) {
	c := &Catalog{
		skillByID: make(map[string]models.Skill, len(skills)),
		districts: make(map[string]models.District, len(districts)),
		cityIndex: make(map[string]cityEntry),
		loadedAt:  time.Now(),
	}

	for _, s := range skills {
		id := strings.ToLower(strings.TrimSpace(s.SkillID))
		if id == "" || strings.TrimSpace(s.Canonical) == "" {
			return nil, errors.Wrapf(models.ErrConfiguration, "skill %q has no id or canonical name", s.SkillID)
		}
		if _, dup := c.skillByID[id]; dup {
			return nil, errors.Wrapf(models.ErrConfiguration, "duplicate skill id %q", id)
		}
		s.SkillID = id
		s.Synonyms = append([]string(nil), s.Synonyms...)
		c.skillByID[id] = s
		c.skills = append(c.skills, s)
	}
	sort.Slice(c.skills, func(i, j int) bool { return c.skills[i].SkillID < c.skills[j].SkillID })

	for _, d := range districts {
		code := strings.TrimSpace(d.DistrictCode)
		if code == "" {
			return nil, errors.Wrapf(models.ErrConfiguration, "district %q has no code", d.DistrictName)
		}
		if _, dup := c.districts[code]; dup {
			return nil, errors.Wrapf(models.ErrConfiguration, "duplicate district code %q", code)
		}
		d.Cities = append([]string(nil), d.Cities...)
		c.districts[code] = d

		for _, city := range d.Cities {
			key := strings.ToLower(strings.TrimSpace(city))
			if key == "" {
				continue
			}
			if prev, taken := c.cityIndex[key]; taken && prev.district.DistrictCode != code {
				return nil, errors.Wrapf(models.ErrConfiguration,
					"city %q mapped to both %s and %s", city, prev.district.DistrictCode, code)
			}
			c.cityIndex[key] = cityEntry{alias: strings.TrimSpace(city), district: d}
		}
	}

	return c, nil
}

// Skills returns the taxonomy ordered by skill id. Callers must not modify it.
func (c *Catalog) Skills() []models.Skill { return c.skills }

func (c *Catalog) Skill(id string) (models.Skill, bool) {
	s, ok := c.skillByID[id]
	return s, ok
}

func (c *Catalog) District(code string) (models.District, bool) {
	d, ok := c.districts[code]
	return d, ok
}

// MatchCity resolves a city token case-insensitively. The returned alias is
// the spelling stored in the geo mapping.
func (c *Catalog) MatchCity(city string) (alias string, district models.District, ok bool) {
	e, ok := c.cityIndex[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return "", models.District{}, false
	}
	return e.alias, e.district, true
}

func (c *Catalog) Size() (skills, districts int) { return len(c.skills), len(c.districts) }

func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// Loader supplies reference data from some backing source.
type Loader interface {
	LoadSkills(ctx context.Context) ([]models.Skill, error)
	LoadDistricts(ctx context.Context) ([]models.District, error)
}

// Registry holds the current Catalog. Readers take a snapshot with Current;
// Reload builds a new catalog and swaps it in atomically.
type Registry struct {
	loader  Loader
	current atomic.Pointer[Catalog]
}

// NewRegistry loads the first catalog eagerly so a misconfigured taxonomy
// fails at startup rather than on the first document.
func NewRegistry(ctx context.Context, loader Loader) (*Registry, error) {
	r := &Registry{loader: loader}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry wraps an already built catalog. Reload is a no-op.
func NewStaticRegistry(c *Catalog) *Registry {
	r := &Registry{}
	r.current.Store(c)
	return r
}

func (r *Registry) Current() *Catalog { return r.current.Load() }

// Reload replaces the catalog. On failure the previous catalog stays in place.
func (r *Registry) Reload(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}
	skills, err := r.loader.LoadSkills(ctx)
	if err != nil {
		return errors.Wrap(err, "load skills")
	}
	districts, err := r.loader.LoadDistricts(ctx)
	if err != nil {
		return errors.Wrap(err, "load districts")
	}
	c, err := NewCatalog(skills, districts)
	if err != nil {
		return err
	}
	r.current.Store(c)
	return nil
}
