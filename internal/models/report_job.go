package models

import (
	"fmt"
	"time"
)

// Progress checkpoints written by report processes and the renderer.
const (
	ProgressPending     = 0
	ProgressGenerating  = 1
	ProgressDataWritten = 50
	ProgressRendering   = 75
	ProgressDone        = 100
)

const reportDateLayout = "2006-01-02"

// ReportJob is one report generation request and its lifecycle state.
type ReportJob struct {
	ID                string           `json:"id" db:"id"`
	ReportType        string           `json:"report_type" db:"report_type"`
	ReportName        string           `json:"report_name" db:"report_name"`
	Parameters        ReportParameters `json:"parameters" db:"parameters"`
	SubmittedByUserID int64            `json:"submitted_by_user_id" db:"submitted_by_user_id"`
	Progress          int              `json:"progress" db:"progress"`
	DataFilename      string           `json:"data_filename,omitempty" db:"data_filename"`
	OutputFilename    string           `json:"output_filename,omitempty" db:"output_filename"`
	RecordDate        time.Time        `json:"record_date" db:"record_date"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Done reports whether rendering finished.
func (j ReportJob) Done() bool {
	return j.Progress >= ProgressDone
}

// Failed reports whether the job is in the failed state. A freshly submitted job looks
// the same, so callers only rely on this once execution has finished.
func (j ReportJob) Failed() bool {
	return j.Progress == ProgressPending && j.DataFilename == ""
}

// MarkFailed clears every artifact reference and resets progress.
func (j *ReportJob) MarkFailed() {
	j.Progress = ProgressPending
	j.DataFilename = ""
	j.OutputFilename = ""
}

// ReportParameters carries submission parameters; interpretation belongs to the report process.
type ReportParameters map[string]interface{}

// Date reads a date parameter. Values that went through JSON come back as strings, so both
// yyyy-MM-dd and RFC 3339 forms are accepted alongside time.Time.
func (p ReportParameters) Date(key string) (time.Time, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("parameter %q is missing", key)
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("parameter %q is missing", key)
		}
		return *v, nil
	case string:
		if t, err := time.Parse(reportDateLayout, v); err == nil {
			return t, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parameter %q is not a date: %q", key, v)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("parameter %q has unsupported type %T", key, raw)
	}
}

// FormatReportDate renders a date the way report documents and search parameters expect it.
func FormatReportDate(t time.Time) string {
	return t.Format(reportDateLayout)
}

// ParseReportDate parses a yyyy-MM-dd date in UTC.
func ParseReportDate(s string) (time.Time, error) {
	return time.Parse(reportDateLayout, s)
}
