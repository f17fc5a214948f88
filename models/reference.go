package models

// Skill is one taxonomy entry. SkillID is a stable lowercase token.
type Skill struct {
	SkillID   string   `yaml:"skillId" json:"skillId"`
	Canonical string   `yaml:"canonical" json:"canonical"`
	Synonyms  []string `yaml:"synonyms" json:"synonyms"`
	Category  string   `yaml:"category" json:"category"`
	Sector    string   `yaml:"sector" json:"sector"`
	Active    bool     `yaml:"active" json:"active"`
}

type Centroid struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// District is one geo mapping entry.
type District struct {
	DistrictCode string   `yaml:"districtCode" json:"districtCode"`
	DistrictName string   `yaml:"districtName" json:"districtName"`
	StateName    string   `yaml:"stateName" json:"stateName"`
	StateCode    string   `yaml:"stateCode" json:"stateCode"`
	Centroid     Centroid `yaml:"centroid" json:"centroid"`
	Cities       []string `yaml:"cities" json:"cities"`
}
