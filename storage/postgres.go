package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"skill-radar/models"
	"skill-radar/storage/migrations"
	"skill-radar/utils"
)

const (
	batchSize = 50

	// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
	uniqueViolation = "23505"
)

// PostgresStore persists every record type to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, retry *utils.RetryConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: open")
	}

	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, err
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "postgres: migrate")
	}
	return ps, nil
}

// NewPostgresStoreFromDB wraps an already open handle without migrating.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (ps *PostgresStore) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	var current int
	if err := ps.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return errors.Wrap(err, "read schema version")
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		if _, err := ps.db.ExecContext(ctx, string(content)); err != nil {
			return errors.Wrapf(err, "apply migration %s", name)
		}
		if _, err := ps.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return errors.Wrapf(err, "record migration %s", name)
		}
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// ==================== Raw documents ====================

func (ps *PostgresStore) Record(ctx context.Context, source models.Source, fetchURL string, ct models.ContentType, content string) (*models.RawDocument, error) {
	doc := &models.RawDocument{
		ID:          uuid.NewString(),
		Source:      source,
		FetchURL:    fetchURL,
		ContentType: ct,
		Content:     content,
		Status:      models.StatusPending,
	}
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO raw_documents (id, source, fetch_url, content_type, content, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (source, fetch_url) DO NOTHING
		RETURNING created_at, updated_at
	`, doc.ID, string(source), fetchURL, string(ct), content).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrDuplicateFetch, "%s %s", source, fetchURL)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: record raw document")
	}
	return doc, nil
}

func (ps *PostgresStore) HasFetched(ctx context.Context, source models.Source, fetchURL string) (bool, error) {
	var exists bool
	err := ps.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM raw_documents WHERE source = $1 AND fetch_url = $2)",
		string(source), fetchURL).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "postgres: has fetched")
	}
	return exists, nil
}

const rawColumns = "id, source, fetch_url, content_type, content, status, error, processed, created_at, updated_at"

func scanRaw(row interface{ Scan(...any) error }) (*models.RawDocument, error) {
	d := &models.RawDocument{}
	var source, ct, status string
	if err := row.Scan(&d.ID, &source, &d.FetchURL, &ct, &d.Content, &status,
		&d.Error, &d.Processed, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Source = models.Source(source)
	d.ContentType = models.ContentType(ct)
	d.Status = models.ParseStatus(status)
	return d, nil
}

func (ps *PostgresStore) ListPending(ctx context.Context, limit int) ([]*models.RawDocument, error) {
	query := "SELECT " + rawColumns + " FROM raw_documents WHERE status = 'pending' ORDER BY created_at, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list pending")
	}
	defer rows.Close()

	var docs []*models.RawDocument
	for rows.Next() {
		d, err := scanRaw(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan raw document")
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (ps *PostgresStore) GetRawDocument(ctx context.Context, id string) (*models.RawDocument, error) {
	d, err := scanRaw(ps.db.QueryRowContext(ctx, "SELECT "+rawColumns+" FROM raw_documents WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "raw document %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get raw document")
	}
	return d, nil
}

func (ps *PostgresStore) MarkParsed(ctx context.Context, id string) (bool, error) {
	return ps.transition(ctx, id, models.StatusParsed, "")
}

func (ps *PostgresStore) MarkError(ctx context.Context, id, message string) (bool, error) {
	return ps.transition(ctx, id, models.StatusError, message)
}

func (ps *PostgresStore) transition(ctx context.Context, id string, to models.ParseStatus, message string) (bool, error) {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE raw_documents
		SET status = $2, error = $3, processed = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, string(to), message)
	if err != nil {
		return false, errors.Wrapf(err, "postgres: mark %s", to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "postgres: rows affected")
	}
	if n == 1 {
		return true, nil
	}
	if _, err := ps.GetRawDocument(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (ps *PostgresStore) ResetStatus(ctx context.Context, id string) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE raw_documents
		SET status = 'pending', error = '', processed = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return errors.Wrap(err, "postgres: reset status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "postgres: rows affected")
	}
	if n == 0 {
		return errors.Wrapf(models.ErrNotFound, "raw document %s", id)
	}
	return nil
}

// ==================== Jobs ====================

const jobColumns = `id, raw_document_id, source, source_job_id, canonical_url, title, company,
	description, posted_at, locations, skills, salary, employment_type, dedupe_key,
	COALESCE(duplicate_of::text, ''), created_at`

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	j := &models.Job{}
	var source, employment string
	var locations, skills, salary []byte
	if err := row.Scan(&j.ID, &j.RawDocumentID, &source, &j.SourceJobID, &j.CanonicalURL,
		&j.Title, &j.Company, &j.Description, &j.PostedAt, &locations, &skills, &salary,
		&employment, &j.DedupeKey, &j.DuplicateOf, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Source = models.Source(source)
	j.EmploymentType = models.EmploymentType(employment)
	if err := json.Unmarshal(locations, &j.Locations); err != nil {
		return nil, errors.Wrap(err, "decode locations")
	}
	if err := json.Unmarshal(skills, &j.Skills); err != nil {
		return nil, errors.Wrap(err, "decode skills")
	}
	if len(salary) > 0 && string(salary) != "null" {
		j.Salary = &models.Salary{}
		if err := json.Unmarshal(salary, j.Salary); err != nil {
			return nil, errors.Wrap(err, "decode salary")
		}
	}
	return j, nil
}

func (ps *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: query jobs")
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (ps *PostgresStore) FindCanonical(ctx context.Context, dedupeKey string) (*models.Job, error) {
	j, err := scanJob(ps.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE dedupe_key = $1 AND duplicate_of IS NULL", dedupeKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "dedupe key %s", dedupeKey)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: find canonical")
	}
	return j, nil
}

// CommitJob inserts the job and moves its raw document from pending to
// parsed in one transaction. Losing the canonical slot to a concurrent
// writer is retried once, which turns the job into a duplicate.
func (ps *PostgresStore) CommitJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	err := ps.commitJob(ctx, job)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		job.DuplicateOf = ""
		err = ps.commitJob(ctx, job)
	}
	return err
}

func (ps *PostgresStore) commitJob(ctx context.Context, job *models.Job) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE raw_documents
		SET status = 'parsed', error = '', processed = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, job.RawDocumentID)
	if err != nil {
		return errors.Wrap(err, "postgres: claim raw document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(models.ErrNotPending, "raw document %s", job.RawDocumentID)
	}

	if job.DuplicateOf == "" {
		var canonical string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM jobs WHERE dedupe_key = $1 AND duplicate_of IS NULL",
			job.DedupeKey).Scan(&canonical)
		switch {
		case err == nil:
			job.DuplicateOf = canonical
		case !errors.Is(err, sql.ErrNoRows):
			return errors.Wrap(err, "postgres: recheck dedupe key")
		}
	}

	locations, err := json.Marshal(nonNilLocations(job.Locations))
	if err != nil {
		return errors.Wrap(err, "encode locations")
	}
	skills, err := json.Marshal(nonNilSkills(job.Skills))
	if err != nil {
		return errors.Wrap(err, "encode skills")
	}
	var salary []byte
	if job.Salary != nil {
		if salary, err = json.Marshal(job.Salary); err != nil {
			return errors.Wrap(err, "encode salary")
		}
	}
	var duplicateOf sql.NullString
	if job.DuplicateOf != "" {
		duplicateOf = sql.NullString{String: job.DuplicateOf, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO jobs (id, raw_document_id, source, source_job_id, canonical_url, title, company,
			description, posted_at, locations, skills, salary, employment_type, dedupe_key, duplicate_of)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at
	`, job.ID, job.RawDocumentID, string(job.Source), job.SourceJobID, job.CanonicalURL, job.Title,
		job.Company, job.Description, job.PostedAt, locations, skills, salary,
		string(job.EmploymentType), job.DedupeKey, duplicateOf).Scan(&job.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "postgres: insert job")
	}

	return errors.Wrap(tx.Commit(), "postgres: commit job")
}

func nonNilLocations(l []models.Location) []models.Location {
	if l == nil {
		return []models.Location{}
	}
	return l
}

func nonNilSkills(s []models.JobSkill) []models.JobSkill {
	if s == nil {
		return []models.JobSkill{}
	}
	return s
}

func (ps *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(ps.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get job")
	}
	return j, nil
}

func (ps *PostgresStore) ListActiveSince(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	return ps.queryJobs(ctx, "SELECT "+jobColumns+
		" FROM jobs WHERE duplicate_of IS NULL AND posted_at >= $1 ORDER BY created_at, id", cutoff)
}

func (ps *PostgresStore) ListJobsBySource(ctx context.Context, source models.Source, limit int) ([]*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE source = $1 ORDER BY created_at, id"
	args := []any{string(source)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return ps.queryJobs(ctx, query, args...)
}

// ==================== Batched writes ====================

// upsertBatches writes n rows in multi-row INSERT statements of batchSize,
// all inside one transaction.
func (ps *PostgresStore) upsertBatches(ctx context.Context, head, tail string, cols, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		valueStrings := make([]string, 0, end-start)
		valueArgs := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			base := (i - start) * cols
			ph := make([]string, cols)
			for c := range ph {
				ph[c] = fmt.Sprintf("$%d", base+c+1)
			}
			valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
			valueArgs = append(valueArgs, row(i)...)
		}
		query := head + " VALUES " + strings.Join(valueStrings, ",") + " " + tail
		if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
			return errors.Wrap(err, "postgres: batch upsert")
		}
	}
	return errors.Wrap(tx.Commit(), "postgres: commit")
}

func (ps *PostgresStore) deleteKeys(ctx context.Context, table string, keys []models.FactKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	query := "DELETE FROM " + table + " WHERE window_name = $1 AND district_code = $2 AND skill_id = $3"
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, query, string(k.Window), k.DistrictCode, k.SkillID); err != nil {
			return errors.Wrapf(err, "postgres: delete from %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "postgres: commit")
}

// ==================== Demand ====================

func (ps *PostgresStore) UpsertDemand(ctx context.Context, rows []*models.RadarDemand) error {
	salaries := make([][]byte, len(rows))
	for i, r := range rows {
		b, err := json.Marshal(r.Salary)
		if err != nil {
			return errors.Wrap(err, "encode salary stats")
		}
		salaries[i] = b
	}
	return ps.upsertBatches(ctx, `
		INSERT INTO radar_demand (window_name, district_code, skill_id, demand_count,
			demand_trend_score, employers, prior_count, salary, updated_at)`, `
		ON CONFLICT (window_name, district_code, skill_id) DO UPDATE SET
			demand_count = EXCLUDED.demand_count,
			demand_trend_score = EXCLUDED.demand_trend_score,
			employers = EXCLUDED.employers,
			prior_count = EXCLUDED.prior_count,
			salary = EXCLUDED.salary,
			updated_at = EXCLUDED.updated_at`,
		9, len(rows), func(i int) []any {
			r := rows[i]
			return []any{string(r.Window), r.DistrictCode, r.SkillID, r.DemandCount,
				r.DemandTrendScore, r.Employers, r.PriorCount, salaries[i], r.UpdatedAt}
		})
}

const demandColumns = "window_name, district_code, skill_id, demand_count, demand_trend_score, employers, prior_count, salary, updated_at"

func scanDemand(row interface{ Scan(...any) error }) (*models.RadarDemand, error) {
	d := &models.RadarDemand{}
	var window string
	var salary []byte
	if err := row.Scan(&window, &d.DistrictCode, &d.SkillID, &d.DemandCount, &d.DemandTrendScore,
		&d.Employers, &d.PriorCount, &salary, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Window = models.Window(window)
	if len(salary) > 0 {
		if err := json.Unmarshal(salary, &d.Salary); err != nil {
			return nil, errors.Wrap(err, "decode salary stats")
		}
	}
	return d, nil
}

func (ps *PostgresStore) ListDemand(ctx context.Context, window models.Window) ([]*models.RadarDemand, error) {
	rows, err := ps.db.QueryContext(ctx, "SELECT "+demandColumns+
		" FROM radar_demand WHERE window_name = $1 ORDER BY district_code, skill_id", string(window))
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list demand")
	}
	defer rows.Close()

	var out []*models.RadarDemand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan demand")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) GetDemand(ctx context.Context, key models.FactKey) (*models.RadarDemand, error) {
	d, err := scanDemand(ps.db.QueryRowContext(ctx, "SELECT "+demandColumns+
		" FROM radar_demand WHERE window_name = $1 AND district_code = $2 AND skill_id = $3",
		string(key.Window), key.DistrictCode, key.SkillID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "demand %v", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get demand")
	}
	return d, nil
}

func (ps *PostgresStore) DeleteDemand(ctx context.Context, keys []models.FactKey) error {
	return ps.deleteKeys(ctx, "radar_demand", keys)
}

// ==================== Supply ====================

func (ps *PostgresStore) GetSupply(ctx context.Context, districtCode, skillID string) (*models.TalentSupply, error) {
	s := &models.TalentSupply{}
	err := ps.db.QueryRowContext(ctx, `
		SELECT district_code, skill_id, candidates_total, candidates_above_threshold
		FROM talent_supply WHERE district_code = $1 AND skill_id = $2
	`, districtCode, skillID).Scan(&s.DistrictCode, &s.SkillID, &s.CandidatesTotal, &s.CandidatesAboveThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "supply %s/%s", districtCode, skillID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get supply")
	}
	return s, nil
}

func (ps *PostgresStore) UpsertSupply(ctx context.Context, rows []*models.TalentSupply) error {
	return ps.upsertBatches(ctx, `
		INSERT INTO talent_supply (district_code, skill_id, candidates_total, candidates_above_threshold)`, `
		ON CONFLICT (district_code, skill_id) DO UPDATE SET
			candidates_total = EXCLUDED.candidates_total,
			candidates_above_threshold = EXCLUDED.candidates_above_threshold`,
		4, len(rows), func(i int) []any {
			r := rows[i]
			return []any{r.DistrictCode, r.SkillID, r.CandidatesTotal, r.CandidatesAboveThreshold}
		})
}

func (ps *PostgresStore) ListSupply(ctx context.Context) ([]*models.TalentSupply, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT district_code, skill_id, candidates_total, candidates_above_threshold
		FROM talent_supply ORDER BY district_code, skill_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list supply")
	}
	defer rows.Close()

	var out []*models.TalentSupply
	for rows.Next() {
		s := &models.TalentSupply{}
		if err := rows.Scan(&s.DistrictCode, &s.SkillID, &s.CandidatesTotal, &s.CandidatesAboveThreshold); err != nil {
			return nil, errors.Wrap(err, "postgres: scan supply")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ==================== Index ====================

const indexColumns = `window_name, district_code, skill_id, demand_count, demand_score, supply_count,
	total_supply, dsi, category, trend, trend_percentage, avg_salary, median_salary, salary_min,
	salary_max, unique_employers, time_to_fill_days, market_tightness, last_updated`

func (ps *PostgresStore) UpsertIndex(ctx context.Context, rows []*models.DemandSupplyIndex) error {
	return ps.upsertBatches(ctx, "INSERT INTO demand_supply_index ("+indexColumns+")", `
		ON CONFLICT (window_name, district_code, skill_id) DO UPDATE SET
			demand_count = EXCLUDED.demand_count,
			demand_score = EXCLUDED.demand_score,
			supply_count = EXCLUDED.supply_count,
			total_supply = EXCLUDED.total_supply,
			dsi = EXCLUDED.dsi,
			category = EXCLUDED.category,
			trend = EXCLUDED.trend,
			trend_percentage = EXCLUDED.trend_percentage,
			avg_salary = EXCLUDED.avg_salary,
			median_salary = EXCLUDED.median_salary,
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			unique_employers = EXCLUDED.unique_employers,
			time_to_fill_days = EXCLUDED.time_to_fill_days,
			market_tightness = EXCLUDED.market_tightness,
			last_updated = EXCLUDED.last_updated`,
		19, len(rows), func(i int) []any {
			r := rows[i]
			return []any{string(r.Window), r.DistrictCode, r.SkillID, r.DemandCount, r.DemandScore,
				r.SupplyCount, r.TotalSupply, r.DSI, string(r.Category), string(r.Trend),
				r.TrendPercentage, r.AvgSalary, r.MedianSalary, r.SalaryMin, r.SalaryMax,
				r.UniqueEmployers, r.TimeToFillDays, string(r.MarketTightness), r.LastUpdated}
		})
}

func (ps *PostgresStore) ListIndex(ctx context.Context, q models.IndexQuery) ([]*models.DemandSupplyIndex, error) {
	var where []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("window_name", string(q.Window))
	add("district_code", q.DistrictCode)
	add("skill_id", q.SkillID)
	add("category", string(q.Category))

	query := "SELECT " + indexColumns + " FROM demand_supply_index"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY dsi DESC, window_name, district_code, skill_id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list index")
	}
	defer rows.Close()

	var out []*models.DemandSupplyIndex
	for rows.Next() {
		r := &models.DemandSupplyIndex{}
		var window, category, trend, tightness string
		if err := rows.Scan(&window, &r.DistrictCode, &r.SkillID, &r.DemandCount, &r.DemandScore,
			&r.SupplyCount, &r.TotalSupply, &r.DSI, &category, &trend, &r.TrendPercentage,
			&r.AvgSalary, &r.MedianSalary, &r.SalaryMin, &r.SalaryMax, &r.UniqueEmployers,
			&r.TimeToFillDays, &tightness, &r.LastUpdated); err != nil {
			return nil, errors.Wrap(err, "postgres: scan index")
		}
		r.Window = models.Window(window)
		r.Category = models.DSICategory(category)
		r.Trend = models.TrendDirection(trend)
		r.MarketTightness = models.MarketTightness(tightness)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) DeleteIndex(ctx context.Context, keys []models.FactKey) error {
	return ps.deleteKeys(ctx, "demand_supply_index", keys)
}

// ==================== Reference data ====================

func (ps *PostgresStore) LoadSkills(ctx context.Context) ([]models.Skill, error) {
	rows, err := ps.db.QueryContext(ctx,
		"SELECT skill_id, canonical, synonyms, category, sector, active FROM skill_taxonomy ORDER BY skill_id")
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load skills")
	}
	defer rows.Close()

	var out []models.Skill
	for rows.Next() {
		var s models.Skill
		var synonyms []byte
		if err := rows.Scan(&s.SkillID, &s.Canonical, &synonyms, &s.Category, &s.Sector, &s.Active); err != nil {
			return nil, errors.Wrap(err, "postgres: scan skill")
		}
		if err := json.Unmarshal(synonyms, &s.Synonyms); err != nil {
			return nil, errors.Wrapf(err, "decode synonyms of %s", s.SkillID)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) LoadDistricts(ctx context.Context) ([]models.District, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT district_code, district_name, state_name, state_code, centroid_lat, centroid_lon, cities
		FROM geo_mapping ORDER BY district_code
	`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load districts")
	}
	defer rows.Close()

	var out []models.District
	for rows.Next() {
		var d models.District
		var cities []byte
		if err := rows.Scan(&d.DistrictCode, &d.DistrictName, &d.StateName, &d.StateCode,
			&d.Centroid.Lat, &d.Centroid.Lon, &cities); err != nil {
			return nil, errors.Wrap(err, "postgres: scan district")
		}
		if err := json.Unmarshal(cities, &d.Cities); err != nil {
			return nil, errors.Wrapf(err, "decode cities of %s", d.DistrictCode)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) UpsertSkills(ctx context.Context, skills []models.Skill) error {
	synonyms := make([][]byte, len(skills))
	for i, s := range skills {
		b, err := json.Marshal(append([]string{}, s.Synonyms...))
		if err != nil {
			return errors.Wrap(err, "encode synonyms")
		}
		synonyms[i] = b
	}
	return ps.upsertBatches(ctx, `
		INSERT INTO skill_taxonomy (skill_id, canonical, synonyms, category, sector, active)`, `
		ON CONFLICT (skill_id) DO UPDATE SET
			canonical = EXCLUDED.canonical,
			synonyms = EXCLUDED.synonyms,
			category = EXCLUDED.category,
			sector = EXCLUDED.sector,
			active = EXCLUDED.active`,
		6, len(skills), func(i int) []any {
			s := skills[i]
			return []any{s.SkillID, s.Canonical, synonyms[i], s.Category, s.Sector, s.Active}
		})
}

func (ps *PostgresStore) UpsertDistricts(ctx context.Context, districts []models.District) error {
	cities := make([][]byte, len(districts))
	for i, d := range districts {
		b, err := json.Marshal(append([]string{}, d.Cities...))
		if err != nil {
			return errors.Wrap(err, "encode cities")
		}
		cities[i] = b
	}
	return ps.upsertBatches(ctx, `
		INSERT INTO geo_mapping (district_code, district_name, state_name, state_code,
			centroid_lat, centroid_lon, cities)`, `
		ON CONFLICT (district_code) DO UPDATE SET
			district_name = EXCLUDED.district_name,
			state_name = EXCLUDED.state_name,
			state_code = EXCLUDED.state_code,
			centroid_lat = EXCLUDED.centroid_lat,
			centroid_lon = EXCLUDED.centroid_lon,
			cities = EXCLUDED.cities`,
		7, len(districts), func(i int) []any {
			d := districts[i]
			return []any{d.DistrictCode, d.DistrictName, d.StateName, d.StateCode,
				d.Centroid.Lat, d.Centroid.Lon, cities[i]}
		})
}
