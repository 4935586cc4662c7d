package reporting

import (
	"context"
	"errors"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

const ReportJobOwnershipValidatorName = "report_job_ownership"

// ReportJobOwnershipValidator allows access to a job only for the user who submitted it.
type ReportJobOwnershipValidator struct {
	jobs repository.ReportJobRepository
}

func NewReportJobOwnershipValidator(jobs repository.ReportJobRepository) *ReportJobOwnershipValidator {
	return &ReportJobOwnershipValidator{jobs: jobs}
}

func (v *ReportJobOwnershipValidator) Check(ctx context.Context, user models.User, resourceID string) (bool, error) {
	job, err := v.jobs.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrReportJobNotFound) {
			return false, nil
		}
		return false, err
	}
	return job.SubmittedByUserID == user.ID, nil
}
