package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	adsbtemporal "github.com/Tubbz-alt/adsbrecorder/internal/temporal"
	"github.com/Tubbz-alt/adsbrecorder/internal/temporal/activities"
)

// ReportWorkflow runs a single generation attempt and fails the job if the attempt
// does not complete.
func ReportWorkflow(ctx workflow.Context, params adsbtemporal.ReportParams) error {
	timeout := params.ActivityTimeout
	if timeout <= 0 {
		timeout = adsbtemporal.DefaultActivityTimeout
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		// A retried run would rewrite a job that already recorded its outcome.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting report workflow", "JobID", params.JobID, "ReportType", params.ReportType)

	var a *activities.Activities

	err := workflow.ExecuteActivity(ctx, a.GenerateReportActivity, params).Get(ctx, nil)
	if err == nil {
		logger.Info("Report workflow completed", "JobID", params.JobID)
		return nil
	}

	logger.Error("Report generation did not complete", "JobID", params.JobID, "error", err)
	cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)
	cleanupCtx = workflow.WithActivityOptions(cleanupCtx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	if abandonErr := workflow.ExecuteActivity(cleanupCtx, a.AbandonReportActivity, params.JobID).Get(cleanupCtx, nil); abandonErr != nil {
		logger.Error("Failed to abandon report job", "JobID", params.JobID, "error", abandonErr)
	}
	return err
}
