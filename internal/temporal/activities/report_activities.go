package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/Tubbz-alt/adsbrecorder/internal/temporal"
)

// ReportExecutor runs and abandons report jobs by id.
type ReportExecutor interface {
	ExecuteByID(ctx context.Context, id string) error
	Abandon(ctx context.Context, id string) error
}

type Activities struct {
	Reports ReportExecutor
}

// GenerateReportActivity runs the report process for the job. Generation failures are
// already persisted on the job, so they are logged and not returned.
func (a *Activities) GenerateReportActivity(ctx context.Context, params temporal.ReportParams) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Generating report", "JobID", params.JobID, "ReportType", params.ReportType)

	if err := a.Reports.ExecuteByID(ctx, params.JobID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Report generation finished with error", "JobID", params.JobID, "error", err)
	}
	return nil
}

// AbandonReportActivity fails a job whose generation activity did not complete.
func (a *Activities) AbandonReportActivity(ctx context.Context, jobID string) error {
	activity.GetLogger(ctx).Warn("Abandoning report job", "JobID", jobID)
	return a.Reports.Abandon(ctx, jobID)
}
