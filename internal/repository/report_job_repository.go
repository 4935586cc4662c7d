package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

var ErrReportJobNotFound = errors.New("report job not found")

// ReportJobRepository persists report jobs. Count and page queries are independent
// statements, so a total may be stale relative to the page it accompanies.
type ReportJobRepository interface {
	// Save inserts the job or updates its mutable columns (progress and file references).
	Save(ctx context.Context, job models.ReportJob) (models.ReportJob, error)
	FindByID(ctx context.Context, id string) (models.ReportJob, error)

	Search(ctx context.Context, ownerID int64, reportType, reportName string, page, pageSize int) ([]models.ReportJob, error)
	SearchByDateRange(ctx context.Context, ownerID int64, reportType, reportName string, start, end time.Time, page, pageSize int) ([]models.ReportJob, error)
	Count(ctx context.Context, ownerID int64, reportType, reportName string) (int64, error)
	CountByDateRange(ctx context.Context, ownerID int64, reportType, reportName string, start, end time.Time) (int64, error)

	ListRecent(ctx context.Context, ownerID int64, limit int) ([]models.ReportJob, error)
	ExistsByName(ctx context.Context, ownerID int64, reportType, reportName string) (bool, error)
}

type reportJobRepository struct {
	db *sql.DB
}

func NewReportJobRepository(db *sql.DB) ReportJobRepository {
	return &reportJobRepository{db: db}
}

const reportJobColumns = `id, report_type, report_name, parameters, submitted_by_user_id, progress,
	data_filename, output_filename, record_date, updated_at`

func (r *reportJobRepository) Save(ctx context.Context, job models.ReportJob) (models.ReportJob, error) {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return models.ReportJob{}, fmt.Errorf("marshal parameters: %w", err)
	}
	if job.RecordDate.IsZero() {
		job.RecordDate = time.Now().UTC()
	}

	// Only progress and file references change after creation.
	query := `
		INSERT INTO adsb.report_jobs (id, report_type, report_name, parameters, submitted_by_user_id,
			progress, data_filename, output_filename, record_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NOW())
		ON CONFLICT (id) DO UPDATE
		   SET progress        = EXCLUDED.progress,
		       data_filename   = EXCLUDED.data_filename,
		       output_filename = EXCLUDED.output_filename,
		       updated_at      = NOW()
		RETURNING ` + reportJobColumns

	row := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.ReportType,
		job.ReportName,
		params,
		job.SubmittedByUserID,
		job.Progress,
		job.DataFilename,
		job.OutputFilename,
		job.RecordDate,
	)
	return scanReportJob(row)
}

func (r *reportJobRepository) FindByID(ctx context.Context, id string) (models.ReportJob, error) {
	query := `SELECT ` + reportJobColumns + ` FROM adsb.report_jobs WHERE id = $1`
	job, err := scanReportJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job, ErrReportJobNotFound
		}
		return job, err
	}
	return job, nil
}

func (r *reportJobRepository) Search(ctx context.Context, ownerID int64, reportType, reportName string, page, pageSize int) ([]models.ReportJob, error) {
	f := jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName}
	return r.list(ctx, f, page, pageSize)
}

func (r *reportJobRepository) SearchByDateRange(ctx context.Context, ownerID int64, reportType, reportName string, start, end time.Time, page, pageSize int) ([]models.ReportJob, error) {
	f := jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName, start: &start, end: &end}
	return r.list(ctx, f, page, pageSize)
}

func (r *reportJobRepository) Count(ctx context.Context, ownerID int64, reportType, reportName string) (int64, error) {
	return r.count(ctx, jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName})
}

func (r *reportJobRepository) CountByDateRange(ctx context.Context, ownerID int64, reportType, reportName string, start, end time.Time) (int64, error) {
	return r.count(ctx, jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName, start: &start, end: &end})
}

func (r *reportJobRepository) ListRecent(ctx context.Context, ownerID int64, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `
		SELECT ` + reportJobColumns + `
		FROM adsb.report_jobs
		WHERE submitted_by_user_id = $1
		ORDER BY record_date DESC, id
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return collectReportJobs(rows, limit)
}

func (r *reportJobRepository) ExistsByName(ctx context.Context, ownerID int64, reportType, reportName string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM adsb.report_jobs
			WHERE submitted_by_user_id = $1 AND report_type = $2 AND lower(report_name) = lower($3)
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ownerID, reportType, strings.TrimSpace(reportName)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *reportJobRepository) list(ctx context.Context, f jobFilter, page, pageSize int) ([]models.ReportJob, error) {
	limit, offset := pageBounds(page, pageSize)
	where, args := f.sql()
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM adsb.report_jobs
		WHERE %s
		ORDER BY record_date DESC, id
		LIMIT $%d OFFSET $%d`, reportJobColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search report jobs: %w", err)
	}
	return collectReportJobs(rows, limit)
}

func (r *reportJobRepository) count(ctx context.Context, f jobFilter) (int64, error) {
	where, args := f.sql()
	query := `SELECT COUNT(*) FROM adsb.report_jobs WHERE ` + where
	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count report jobs: %w", err)
	}
	return total, nil
}

// jobFilter is the shared owner/type/name/date predicate of search and count.
type jobFilter struct {
	ownerID    int64
	reportType string
	reportName string
	start      *time.Time
	end        *time.Time
}

func (f jobFilter) sql() (string, []interface{}) {
	clauses := []string{"submitted_by_user_id = $1", "report_type = $2"}
	args := []interface{}{f.ownerID, f.reportType}
	if name := strings.TrimSpace(f.reportName); name != "" {
		args = append(args, "%"+escapeLike(name)+"%")
		clauses = append(clauses, fmt.Sprintf(`report_name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if f.start != nil && f.end != nil {
		args = append(args, *f.start, *f.end)
		clauses = append(clauses, fmt.Sprintf("record_date BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// MaxPageSize caps the rows returned by one search page.
const MaxPageSize = 100

// pageBounds turns page/pageSize into LIMIT/OFFSET. The size is clamped to MaxPageSize and
// the page is clamped so the offset cannot overflow.
func pageBounds(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = 5
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 0 {
		page = 0
	}
	if page > math.MaxInt/pageSize {
		page = math.MaxInt / pageSize
	}
	return pageSize, page * pageSize
}

func collectReportJobs(rows *sql.Rows, capacity int) ([]models.ReportJob, error) {
	defer rows.Close()

	jobs := make([]models.ReportJob, 0, min(capacity, MaxPageSize))
	for rows.Next() {
		job, err := scanReportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanReportJob(scanner interface {
	Scan(dest ...interface{}) error
}) (models.ReportJob, error) {
	var (
		job            models.ReportJob
		paramsRaw      []byte
		dataFilename   sql.NullString
		outputFilename sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ReportType,
		&job.ReportName,
		&paramsRaw,
		&job.SubmittedByUserID,
		&job.Progress,
		&dataFilename,
		&outputFilename,
		&job.RecordDate,
		&job.UpdatedAt,
	); err != nil {
		return models.ReportJob{}, err
	}

	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &job.Parameters); err != nil {
			return models.ReportJob{}, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if dataFilename.Valid {
		job.DataFilename = dataFilename.String
	}
	if outputFilename.Valid {
		job.OutputFilename = outputFilename.String
	}
	return job, nil
}
