package reference

import (
	"context"
	"embed"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"skill-radar/models"
)

//go:embed data/*.yaml
var defaultData embed.FS

// YAMLLoader reads skills.yaml and districts.yaml from a filesystem.
type YAMLLoader struct {
	FS fs.FS
}

// DefaultLoader reads the taxonomy and geo mapping shipped with the binary.
func DefaultLoader() *YAMLLoader {
	sub, _ := fs.Sub(defaultData, "data")
	return &YAMLLoader{FS: sub}
}

// DirLoader reads reference files from a directory on disk.
func DirLoader(dir string) *YAMLLoader {
	return &YAMLLoader{FS: os.DirFS(dir)}
}

type skillFile struct {
	Skills []models.Skill `yaml:"skills"`
}

type districtFile struct {
	Districts []models.District `yaml:"districts"`
}

func (l *YAMLLoader) LoadSkills(_ context.Context) ([]models.Skill, error) {
	var f skillFile
	if err := l.decode("skills.yaml", &f); err != nil {
		return nil, err
	}
	return f.Skills, nil
}

func (l *YAMLLoader) LoadDistricts(_ context.Context) ([]models.District, error) {
	var f districtFile
	if err := l.decode("districts.yaml", &f); err != nil {
		return nil, err
	}
	return f.Districts, nil
}

func (l *YAMLLoader) decode(name string, out any) error {
	b, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return errors.Wrapf(err, "parse %s", name)
	}
	return nil
}
