package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"skill-radar/models"
	"skill-radar/utils"
)

const reportTopN = 5

type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate summarizes the index rows of one window.
func (s *ReportService) Generate(window models.Window, rows []*models.DemandSupplyIndex) *models.RadarReport {
	report := &models.RadarReport{
		Window:           window,
		ByCategory:       make(map[models.DSICategory]int),
		DemandByDistrict: make(map[string]int),
	}

	if len(rows) == 0 {
		return report
	}

	report.TotalPairs = len(rows)

	var under, over []*models.DemandSupplyIndex
	var totalDSI float64
	for _, r := range rows {
		report.TotalDemand += r.DemandCount
		report.ByCategory[r.Category]++
		report.DemandByDistrict[r.DistrictCode] += r.DemandCount
		totalDSI += r.DSI

		switch r.Category {
		case models.Undersupplied:
			under = append(under, r)
		case models.Oversupplied:
			over = append(over, r)
		}
	}
	report.AverageDSI = round2(totalDSI / float64(len(rows)))

	sort.SliceStable(under, func(i, j int) bool { return under[i].DSI > under[j].DSI })
	sort.SliceStable(over, func(i, j int) bool { return over[i].DSI < over[j].DSI })
	report.MostUndersupplied = head(under, reportTopN)
	report.MostOversupplied = head(over, reportTopN)

	s.logger.Debug("[report] %s: %d pairs, %d undersupplied", window, len(rows), len(under))
	return report
}

func head(rows []*models.DemandSupplyIndex, n int) []*models.DemandSupplyIndex {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func (s *ReportService) Print(w io.Writer, r *models.RadarReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 SKILL RADAR (%s window)\033[0m\n", r.Window)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  District/skill pairs : \033[1m%d\033[0m\n", r.TotalPairs)
	fmt.Fprintf(w, "  Postings in window   : \033[1m%d\033[0m\n", r.TotalDemand)
	fmt.Fprintf(w, "  Average DSI          : \033[1m%.2f\033[0m\n", r.AverageDSI)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Market Balance\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, c := range []models.DSICategory{models.Undersupplied, models.Balanced, models.Oversupplied} {
		fmt.Fprintf(w, "  %-14s : \033[1m%d\033[0m\n", c, r.ByCategory[c])
	}
	fmt.Fprintln(w)

	printRanking(w, thin, "Most Undersupplied Skills", "\033[1;31m", r.MostUndersupplied)
	printRanking(w, thin, "Most Oversupplied Skills", "\033[1;32m", r.MostOversupplied)

	// Demand by district
	fmt.Fprintf(w, "\033[1;33m  Demand by District\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.DemandByDistrict) == 0 {
		fmt.Fprintf(w, "  No demand data\n")
	} else {
		type districtCount struct {
			code  string
			count int
		}
		var districts []districtCount
		for code, cnt := range r.DemandByDistrict {
			districts = append(districts, districtCount{code, cnt})
		}
		sort.Slice(districts, func(i, j int) bool {
			if districts[i].count != districts[j].count {
				return districts[i].count > districts[j].count
			}
			return districts[i].code < districts[j].code
		})
		for _, dc := range districts {
			bar := strings.Repeat("█", min(dc.count, 40))
			fmt.Fprintf(w, "  %-10s %s (%d)\n", truncate(dc.code, 10), bar, dc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printRanking(w io.Writer, thin, title, colour string, rows []*models.DemandSupplyIndex) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(rows) == 0 {
		fmt.Fprintf(w, "  None\n")
	}
	for i, r := range rows {
		label := truncate(r.SkillID+" @ "+r.DistrictCode, 30)
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-32s %sDSI %.2f\033[0m  %s, ~%dd to fill\n",
			i+1, label, colour, r.DSI, r.MarketTightness, r.TimeToFillDays)
	}
	fmt.Fprintln(w)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
