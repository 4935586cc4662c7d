package reporting

import (
	"net/url"
	"time"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

// MaxPageSize is the largest search page a caller can ask for.
const MaxPageSize = repository.MaxPageSize

// Bounds substituted for absent or unparseable search dates.
var (
	EarliestSearchDate = time.Unix(0, 0).UTC()
	LatestSearchDate   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// SearchRange reads the start and end bounds from params. A bound that is missing or not a
// yyyy-MM-dd date falls back to its sentinel. bounded is false when no effective filter remains.
func SearchRange(params url.Values) (start, end time.Time, bounded bool) {
	start = parseBound(params.Get("start"), EarliestSearchDate)
	end = parseBound(params.Get("end"), LatestSearchDate)
	bounded = !start.Equal(EarliestSearchDate) || !end.Equal(LatestSearchDate)
	return start, end, bounded
}

func parseBound(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	t, err := models.ParseReportDate(raw)
	if err != nil {
		return fallback
	}
	return t
}

// NormalizePage converts the user-facing page/size pair into a zero-based page and a
// page size in [1, MaxPageSize].
func NormalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = -page
	} else {
		page--
	}
	if page < 0 {
		// -math.MinInt overflows back to itself.
		page = 0
	}
	if size < 0 {
		size = -size
	} else if size == 0 {
		size = 5
	}
	if size < 0 || size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
