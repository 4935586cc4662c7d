package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

// Scheduler starts one report workflow per job.
type Scheduler struct {
	client     client.Client
	taskQueue  string
	jobTimeout time.Duration
}

func NewScheduler(c client.Client, taskQueue string, jobTimeout time.Duration) *Scheduler {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultActivityTimeout
	}
	return &Scheduler{client: c, taskQueue: taskQueue, jobTimeout: jobTimeout}
}

func (s *Scheduler) Schedule(ctx context.Context, job models.ReportJob) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(job.ID),
		TaskQueue: s.taskQueue,
	}
	params := ReportParams{JobID: job.ID, ReportType: job.ReportType, ActivityTimeout: s.jobTimeout}
	if _, err := s.client.ExecuteWorkflow(ctx, opts, ReportWorkflowName, params); err != nil {
		return fmt.Errorf("start report workflow: %w", err)
	}
	return nil
}
