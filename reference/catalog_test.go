package reference

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-radar/models"
)

func TestDefaultLoaderBuildsCatalog(t *testing.T) {
	reg, err := NewRegistry(context.Background(), DefaultLoader())
	require.NoError(t, err)

	c := reg.Current()
	skills, districts := c.Size()
	assert.Greater(t, skills, 20)
	assert.Greater(t, districts, 15)

	react, ok := c.Skill("react")
	require.True(t, ok)
	assert.Equal(t, "React", react.Canonical)
	assert.True(t, react.Active)

	alias, d, ok := c.MatchCity("  BANGALORE ")
	require.True(t, ok)
	assert.Equal(t, "Bangalore", alias)
	assert.Equal(t, "KA01", d.DistrictCode)
	assert.Equal(t, "Karnataka", d.StateName)
}

func TestMatchCityUnknown(t *testing.T) {
	c, err := NewCatalog(nil, []models.District{{DistrictCode: "MH02", Cities: []string{"Pune"}}})
	require.NoError(t, err)

	_, _, ok := c.MatchCity("Atlantis")
	assert.False(t, ok)
	_, d, ok := c.MatchCity("pune")
	require.True(t, ok)
	assert.Equal(t, "MH02", d.DistrictCode)
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name      string
		skills    []models.Skill
		districts []models.District
	}{
		{"duplicate skill", []models.Skill{{SkillID: "go", Canonical: "Go"}, {SkillID: "GO", Canonical: "Golang"}}, nil},
		{"missing canonical", []models.Skill{{SkillID: "go"}}, nil},
		{"duplicate district", nil, []models.District{{DistrictCode: "KA01"}, {DistrictCode: "KA01"}}},
		{"city claimed twice", nil, []models.District{
			{DistrictCode: "KA01", Cities: []string{"Springfield"}},
			{DistrictCode: "MH01", Cities: []string{"springfield"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.skills, tt.districts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrConfiguration))
		})
	}
}

type stubLoader struct {
	skills []models.Skill
	err    error
}

func (s *stubLoader) LoadSkills(context.Context) ([]models.Skill, error) { return s.skills, s.err }
func (s *stubLoader) LoadDistricts(context.Context) ([]models.District, error) {
	return nil, nil
}

func TestRegistryReloadSwapsCatalog(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{skills: []models.Skill{{SkillID: "react", Canonical: "React", Active: true}}}

	reg, err := NewRegistry(ctx, loader)
	require.NoError(t, err)
	before := reg.Current()

	loader.skills = append(loader.skills, models.Skill{SkillID: "vue", Canonical: "Vue", Active: true})
	require.NoError(t, reg.Reload(ctx))

	after := reg.Current()
	assert.NotSame(t, before, after)
	_, ok := before.Skill("vue")
	assert.False(t, ok, "old snapshot must not change")
	_, ok = after.Skill("vue")
	assert.True(t, ok)
}

func TestRegistryReloadKeepsOldCatalogOnFailure(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{skills: []models.Skill{{SkillID: "react", Canonical: "React"}}}
	reg, err := NewRegistry(ctx, loader)
	require.NoError(t, err)
	before := reg.Current()

	loader.err = errors.New("store down")
	require.Error(t, reg.Reload(ctx))
	assert.Same(t, before, reg.Current())
}
