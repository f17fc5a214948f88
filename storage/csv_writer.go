package storage

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"skill-radar/models"
)

var indexHeader = []string{
	"window", "district_code", "skill_id", "demand_count", "demand_score", "supply_count",
	"total_supply", "dsi", "category", "trend", "trend_percentage", "avg_salary",
	"median_salary", "salary_min", "salary_max", "unique_employers", "time_to_fill_days",
	"market_tightness", "last_updated",
}

// CSVWriter writes DemandSupplyIndex snapshots to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var _ IndexWriter = (*CSVWriter)(nil)

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "csv: create output dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "csv: create file %q", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(indexHeader); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "csv: write header")
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }

// WriteIndex appends one row per index record.
func (c *CSVWriter) WriteIndex(rows []*models.DemandSupplyIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		row := []string{
			string(r.Window),
			r.DistrictCode,
			r.SkillID,
			strconv.Itoa(r.DemandCount),
			ftoa(r.DemandScore),
			strconv.Itoa(r.SupplyCount),
			strconv.Itoa(r.TotalSupply),
			ftoa(r.DSI),
			string(r.Category),
			string(r.Trend),
			ftoa(r.TrendPercentage),
			ftoa(r.AvgSalary),
			ftoa(r.MedianSalary),
			ftoa(r.SalaryMin),
			ftoa(r.SalaryMax),
			strconv.Itoa(r.UniqueEmployers),
			strconv.Itoa(r.TimeToFillDays),
			string(r.MarketTightness),
			r.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return errors.Wrap(err, "csv: write row")
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// ReadSupplyCSV parses talent supply rows with the header
// district_code,skill_id,candidates_total,candidates_above_threshold.
// Column order is taken from the header; skill ids are lowercased.
func ReadSupplyCSV(r io.Reader) ([]*models.TalentSupply, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "csv: read header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"district_code", "skill_id", "candidates_total", "candidates_above_threshold"} {
		if _, ok := col[name]; !ok {
			return nil, errors.Wrapf(models.ErrConfiguration, "supply csv: missing column %q", name)
		}
	}

	var out []*models.TalentSupply
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "csv: line %d", line)
		}
		total, err := strconv.Atoi(strings.TrimSpace(rec[col["candidates_total"]]))
		if err != nil {
			return nil, errors.Wrapf(models.ErrConfiguration, "supply csv line %d: candidates_total: %v", line, err)
		}
		above, err := strconv.Atoi(strings.TrimSpace(rec[col["candidates_above_threshold"]]))
		if err != nil {
			return nil, errors.Wrapf(models.ErrConfiguration, "supply csv line %d: candidates_above_threshold: %v", line, err)
		}
		if total < 0 || above < 0 {
			return nil, errors.Wrapf(models.ErrConfiguration, "supply csv line %d: negative count", line)
		}
		out = append(out, &models.TalentSupply{
			DistrictCode:             strings.TrimSpace(rec[col["district_code"]]),
			SkillID:                  strings.ToLower(strings.TrimSpace(rec[col["skill_id"]])),
			CandidatesTotal:          total,
			CandidatesAboveThreshold: above,
		})
	}
	return out, nil
}
