package models

// Authority is a permission granted to a user.
type Authority string

const (
	AuthorityRunSimpleDailySummaryReport Authority = "RUN_SIMPLE_DAILY_SUMMARY_REPORT"
	AuthorityViewReportMetadata          Authority = "VIEW_REPORT_METADATA"
	AuthorityViewReportOutput            Authority = "VIEW_REPORT_OUTPUT"
	AuthorityViewRecentReportJobs        Authority = "VIEW_RECENT_REPORT_JOBS"
)

// DefaultAuthorities are granted to newly signed up users.
var DefaultAuthorities = []Authority{
	AuthorityRunSimpleDailySummaryReport,
	AuthorityViewReportMetadata,
	AuthorityViewReportOutput,
	AuthorityViewRecentReportJobs,
}

type User struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	IsActive     bool        `json:"is_active"`
	Authorities  []Authority `json:"authorities"`
}

func IsValidAuthority(a Authority) bool {
	switch a {
	case AuthorityRunSimpleDailySummaryReport, AuthorityViewReportMetadata,
		AuthorityViewReportOutput, AuthorityViewRecentReportJobs:
		return true
	}
	return false
}

// HasAuthority reports whether the authority list contains the required one.
func HasAuthority(granted []Authority, required Authority) bool {
	for _, a := range granted {
		if a == required {
			return true
		}
	}
	return false
}
