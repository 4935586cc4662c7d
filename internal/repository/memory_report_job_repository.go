package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

// MemoryReportJobRepository keeps report jobs in process memory. It mirrors the
// Postgres repository's semantics and backs the memory storage driver.
type MemoryReportJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.ReportJob
}

func NewMemoryReportJobRepository() *MemoryReportJobRepository {
	return &MemoryReportJobRepository{
		jobs: make(map[string]models.ReportJob),
	}
}

func (r *MemoryReportJobRepository) Save(_ context.Context, job models.ReportJob) (models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored, exists := r.jobs[job.ID]
	if exists {
		stored.Progress = job.Progress
		stored.DataFilename = job.DataFilename
		stored.OutputFilename = job.OutputFilename
	} else {
		stored = job
		stored.Parameters = copyParameters(job.Parameters)
		if stored.RecordDate.IsZero() {
			stored.RecordDate = now
		}
	}
	stored.UpdatedAt = now
	r.jobs[job.ID] = stored
	return stored, nil
}

func (r *MemoryReportJobRepository) FindByID(_ context.Context, id string) (models.ReportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.ReportJob{}, ErrReportJobNotFound
	}
	return job, nil
}

func (r *MemoryReportJobRepository) Search(_ context.Context, ownerID int64, reportType, reportName string, page, pageSize int) ([]models.ReportJob, error) {
	matches := r.filter(jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName})
	return paginate(matches, page, pageSize), nil
}

func (r *MemoryReportJobRepository) SearchByDateRange(_ context.Context, ownerID int64, reportType, reportName string, start, end time.Time, page, pageSize int) ([]models.ReportJob, error) {
	matches := r.filter(jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName, start: &start, end: &end})
	return paginate(matches, page, pageSize), nil
}

func (r *MemoryReportJobRepository) Count(_ context.Context, ownerID int64, reportType, reportName string) (int64, error) {
	return int64(len(r.filter(jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName}))), nil
}

func (r *MemoryReportJobRepository) CountByDateRange(_ context.Context, ownerID int64, reportType, reportName string, start, end time.Time) (int64, error) {
	f := jobFilter{ownerID: ownerID, reportType: reportType, reportName: reportName, start: &start, end: &end}
	return int64(len(r.filter(f))), nil
}

func (r *MemoryReportJobRepository) ListRecent(_ context.Context, ownerID int64, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	r.mu.RLock()
	jobs := make([]models.ReportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if job.SubmittedByUserID == ownerID {
			jobs = append(jobs, job)
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(jobs)
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryReportJobRepository) ExistsByName(_ context.Context, ownerID int64, reportType, reportName string) (bool, error) {
	name := strings.TrimSpace(reportName)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		if job.SubmittedByUserID == ownerID && job.ReportType == reportType && strings.EqualFold(job.ReportName, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryReportJobRepository) filter(f jobFilter) []models.ReportJob {
	name := strings.ToLower(strings.TrimSpace(f.reportName))

	r.mu.RLock()
	matches := make([]models.ReportJob, 0)
	for _, job := range r.jobs {
		if job.SubmittedByUserID != f.ownerID || job.ReportType != f.reportType {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(job.ReportName), name) {
			continue
		}
		if f.start != nil && f.end != nil && (job.RecordDate.Before(*f.start) || job.RecordDate.After(*f.end)) {
			continue
		}
		matches = append(matches, job)
	}
	r.mu.RUnlock()

	sortNewestFirst(matches)
	return matches
}

func paginate(jobs []models.ReportJob, page, pageSize int) []models.ReportJob {
	limit, offset := pageBounds(page, pageSize)
	if offset >= len(jobs) {
		return []models.ReportJob{}
	}
	end := offset + limit
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[offset:end]
}

func sortNewestFirst(jobs []models.ReportJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].RecordDate.Equal(jobs[j].RecordDate) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].RecordDate.After(jobs[j].RecordDate)
	})
}

func copyParameters(params models.ReportParameters) models.ReportParameters {
	if params == nil {
		return nil
	}
	out := make(models.ReportParameters, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
