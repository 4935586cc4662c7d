package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/metrics"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

var ErrOutputNotReady = errors.New("report output not ready")

// ArtifactFiles opens and removes stored report artifacts.
type ArtifactFiles interface {
	Open(name string) (*os.File, error)
	Remove(name string) error
}

// Notifier is told how each executed job ended.
type Notifier interface {
	NotifyReportFinished(ctx context.Context, job models.ReportJob, runErr error) error
}

type ServiceOption func(*Service)

// WithNotifier reports finished and abandoned jobs to their owners.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// Service dispatches report jobs to the process registered for their type.
type Service struct {
	jobs      repository.ReportJobRepository
	registry  *Registry
	scheduler Scheduler
	files     ArtifactFiles
	notifier  Notifier
	logger    zerolog.Logger
}

func NewService(jobs repository.ReportJobRepository, registry *Registry, scheduler Scheduler, files ArtifactFiles, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		jobs:      jobs,
		registry:  registry,
		scheduler: scheduler,
		files:     files,
		logger:    logger.With().Str("component", "report_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit persists a new pending job and schedules it. It returns as soon as the job is queued.
func (s *Service) Submit(ctx context.Context, reportName, reportType string, params models.ReportParameters, userID int64) (models.ReportJob, error) {
	if _, err := s.registry.Resolve(reportType); err != nil {
		return models.ReportJob{}, err
	}

	job, err := s.jobs.Save(ctx, models.ReportJob{
		ID:                uuid.NewString(),
		ReportType:        reportType,
		ReportName:        strings.TrimSpace(reportName),
		Parameters:        params,
		SubmittedByUserID: userID,
		Progress:          models.ProgressPending,
		RecordDate:        time.Now().UTC(),
	})
	if err != nil {
		return models.ReportJob{}, fmt.Errorf("save report job: %w", err)
	}
	metrics.RecordReportSubmitted(reportType)

	if err := s.scheduler.Schedule(ctx, job); err != nil {
		job.MarkFailed()
		if _, saveErr := s.jobs.Save(context.WithoutCancel(ctx), job); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("failed to persist unscheduled job")
		}
		return models.ReportJob{}, fmt.Errorf("schedule report job %s: %w", job.ID, err)
	}

	s.logger.Info().Str("job_id", job.ID).Str("report_type", reportType).Int64("user_id", userID).Msg("report job submitted")
	return job, nil
}

// GetByID returns the job without ownership filtering; callers enforce ownership.
func (s *Service) GetByID(ctx context.Context, id string) (models.ReportJob, error) {
	return s.jobs.FindByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, reportType string, ownerID int64, reportName string, params url.Values, page, pageSize int) ([]models.ReportJob, int64, error) {
	p, err := s.registry.Resolve(reportType)
	if err != nil {
		return nil, 0, err
	}
	return p.Search(ctx, ownerID, reportName, params, page, pageSize)
}

// Execute runs a scheduled job on the calling goroutine. Worker backends call it.
func (s *Service) Execute(ctx context.Context, job models.ReportJob) error {
	p, err := s.registry.Resolve(job.ReportType)
	if err != nil {
		return err
	}

	started := time.Now()
	err = p.Run(ctx, job)
	metrics.RecordReportFinished(job.ReportType, err == nil, time.Since(started))
	s.notifyFinished(ctx, job.ID, err)
	return err
}

// notifyFinished reports the job's stored outcome. Notification failures never fail the job.
func (s *Service) notifyFinished(ctx context.Context, id string, runErr error) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", id).Msg("cannot load job for notification")
		return
	}
	if err := s.notifier.NotifyReportFinished(ctx, job, runErr); err != nil {
		s.logger.Warn().Err(err).Str("job_id", id).Msg("failed to notify report owner")
	}
}

// ExecuteByID loads the job and executes it.
func (s *Service) ExecuteByID(ctx context.Context, id string) error {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.Execute(ctx, job)
}

// Abandon puts an unfinished job into the failed state and removes its artifacts. It is
// used when an executor gave up on a job without the report process recording an outcome.
func (s *Service) Abandon(ctx context.Context, id string) error {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Done() || job.Failed() {
		return nil
	}
	for _, name := range []string{job.DataFilename, job.OutputFilename} {
		if name == "" {
			continue
		}
		if err := s.files.Remove(name); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Str("file", name).Msg("failed to remove artifact")
		}
	}
	job.MarkFailed()
	if _, err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save abandoned job: %w", err)
	}
	s.logger.Warn().Str("job_id", id).Msg("report job abandoned")
	s.notifyFinished(ctx, id, errors.New("report execution was abandoned"))
	return nil
}

func (s *Service) ListRecent(ctx context.Context, ownerID int64, limit int) ([]models.ReportJob, error) {
	return s.jobs.ListRecent(ctx, ownerID, limit)
}

// IsNameAvailable reports whether the owner has no job of reportType with this name.
func (s *Service) IsNameAvailable(ctx context.Context, ownerID int64, reportType, reportName string) (bool, error) {
	if _, err := s.registry.Resolve(reportType); err != nil {
		return false, err
	}
	exists, err := s.jobs.ExistsByName(ctx, ownerID, reportType, reportName)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// OpenOutput opens the rendered output of a finished job.
func (s *Service) OpenOutput(ctx context.Context, id string) (models.ReportJob, *os.File, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return models.ReportJob{}, nil, err
	}
	if !job.Done() || job.OutputFilename == "" {
		return job, nil, ErrOutputNotReady
	}
	f, err := s.files.Open(job.OutputFilename)
	if err != nil {
		return job, nil, err
	}
	return job, f, nil
}
