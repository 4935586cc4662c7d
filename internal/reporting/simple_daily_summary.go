package reporting

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

const (
	SimpleDailySummaryType = "simple_daily_summary"
	// DayParam is the job parameter holding the reported day.
	DayParam = "day"

	dataExtension = "xml"
	xmlHeader     = `<?xml version="1.0" encoding="UTF-8"?>`
)

// SimpleDailySummaryReport writes every tracking record of one day into an XML data file
// and hands it to the renderer.
type SimpleDailySummaryReport struct {
	jobs      repository.ReportJobRepository
	records   repository.TrackingRecordRepository
	artifacts ArtifactStore
	renderer  Renderer
	logger    zerolog.Logger
}

func NewSimpleDailySummaryReport(
	jobs repository.ReportJobRepository,
	records repository.TrackingRecordRepository,
	artifacts ArtifactStore,
	renderer Renderer,
	logger zerolog.Logger,
) *SimpleDailySummaryReport {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &SimpleDailySummaryReport{
		jobs:      jobs,
		records:   records,
		artifacts: artifacts,
		renderer:  renderer,
		logger:    logger.With().Str("report_type", SimpleDailySummaryType).Logger(),
	}
}

func (r *SimpleDailySummaryReport) Name() string { return SimpleDailySummaryType }

func (r *SimpleDailySummaryReport) Run(ctx context.Context, job models.ReportJob) error {
	day, err := job.Parameters.Date(DayParam)
	if err != nil {
		return r.fail(ctx, job, errors.Wrap(err, "read report day"))
	}

	out, err := r.artifacts.CreateDataOutputFile(dataExtension)
	if err != nil {
		return r.fail(ctx, job, errors.Wrap(err, "allocate data file"))
	}
	job.DataFilename = out.Name()
	job.Progress = models.ProgressGenerating
	saved, err := r.jobs.Save(ctx, job)
	if err != nil {
		out.Close()
		return r.fail(ctx, job, errors.Wrap(err, "save generating state"))
	}
	job = saved

	records, err := r.records.FindAllOnDate(ctx, day)
	if err != nil {
		out.Close()
		return r.fail(ctx, job, errors.Wrap(err, "fetch tracking records"))
	}

	if err := r.writeDocument(ctx, out, job, models.FormatReportDate(day), records); err != nil {
		out.Close()
		return r.fail(ctx, job, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return r.fail(ctx, job, errors.Wrap(err, "sync data file"))
	}
	if err := out.Close(); err != nil {
		return r.fail(ctx, job, errors.Wrap(err, "close data file"))
	}

	job.Progress = models.ProgressDataWritten
	if saved, err = r.jobs.Save(ctx, job); err != nil {
		return r.fail(ctx, job, errors.Wrap(err, "save data-written state"))
	}
	job = saved
	r.logger.Info().Str("job_id", job.ID).Int("records", len(records)).Msg("report data written")

	if err := r.renderer.RenderReport(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("report rendering failed")
		return errors.Wrap(err, "render report")
	}
	return nil
}

func (r *SimpleDailySummaryReport) writeDocument(ctx context.Context, dst io.Writer, job models.ReportJob, day string, records []models.TrackingRecord) error {
	w := bufio.NewWriter(dst)
	if _, err := io.WriteString(w, xmlHeader+"\n<"+SimpleDailySummaryType+"><parameters><day>"); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := xml.EscapeText(w, []byte(day)); err != nil {
		return errors.Wrap(err, "write header")
	}
	header := "</day><submitted_by>" + strconv.FormatInt(job.SubmittedByUserID, 10) + "</submitted_by></parameters>\n<records>"
	if _, err := io.WriteString(w, header); err != nil {
		return errors.Wrap(err, "write header")
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "write records")
		}
		body, err := rec.ToXML()
		if err != nil {
			return errors.Wrapf(err, "serialize tracking record %d", rec.ID)
		}
		if _, err := w.Write(body); err != nil {
			return errors.Wrapf(err, "write tracking record %d", rec.ID)
		}
	}

	if _, err := io.WriteString(w, "</records>\n</"+SimpleDailySummaryType+">\n"); err != nil {
		return errors.Wrap(err, "write footer")
	}
	return errors.Wrap(w.Flush(), "flush data file")
}

// fail removes the partial artifact and persists the failed state. The store write uses a
// context detached from cancellation so a timed-out run still records its failure.
func (r *SimpleDailySummaryReport) fail(ctx context.Context, job models.ReportJob, cause error) error {
	if job.DataFilename != "" {
		if err := r.artifacts.Remove(job.DataFilename); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove partial data file")
		}
	}
	job.MarkFailed()
	if _, err := r.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist failed report state")
	}
	r.logger.Error().Err(cause).Str("job_id", job.ID).Msg("report generation failed")
	return cause
}

func (r *SimpleDailySummaryReport) Search(ctx context.Context, ownerID int64, reportName string, params url.Values, page, pageSize int) ([]models.ReportJob, int64, error) {
	start, end, bounded := SearchRange(params)
	if !bounded {
		total, err := r.jobs.Count(ctx, ownerID, SimpleDailySummaryType, reportName)
		if err != nil {
			return nil, 0, err
		}
		jobs, err := r.jobs.Search(ctx, ownerID, SimpleDailySummaryType, reportName, page, pageSize)
		return jobs, total, err
	}

	total, err := r.jobs.CountByDateRange(ctx, ownerID, SimpleDailySummaryType, reportName, start, end)
	if err != nil {
		return nil, 0, err
	}
	jobs, err := r.jobs.SearchByDateRange(ctx, ownerID, SimpleDailySummaryType, reportName, start, end, page, pageSize)
	return jobs, total, err
}
