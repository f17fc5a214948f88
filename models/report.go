package models

// RadarReport holds the summary computed over one window of DemandSupplyIndex rows.
type RadarReport struct {
	Window            Window
	TotalPairs        int
	TotalDemand       int
	ByCategory        map[DSICategory]int
	AverageDSI        float64
	MostUndersupplied []*DemandSupplyIndex
	MostOversupplied  []*DemandSupplyIndex
	DemandByDistrict  map[string]int
}
