package temporal

import "time"

// TaskQueueName is the default Temporal task queue for report generation.
const TaskQueueName = "ADSB_REPORTING"

// ReportWorkflowName is the registered name of the report workflow.
const ReportWorkflowName = "ReportWorkflow"

// ReportWorkflowIDPrefix prefixes report workflow IDs; the job id completes them.
const ReportWorkflowIDPrefix = "report-job-"

// DefaultActivityTimeout bounds one report generation attempt when no job timeout is configured.
const DefaultActivityTimeout = 10 * time.Minute

// ReportParams is the input of the report workflow.
type ReportParams struct {
	JobID           string
	ReportType      string
	ActivityTimeout time.Duration
}

func WorkflowID(jobID string) string {
	return ReportWorkflowIDPrefix + jobID
}
