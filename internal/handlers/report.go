package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/reporting"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

const defaultRecentJobs = 10

type ReportHandler struct {
	reports *reporting.Service
	logger  zerolog.Logger
}

type submitDailySummaryRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	Day  string `json:"day" validate:"required,datetime=2006-01-02"`
}

type searchResponse struct {
	Jobs       []models.ReportJob `json:"jobs"`
	TotalCount int64              `json:"totalCount"`
}

func NewReportHandler(reports *reporting.Service, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger.With().Str("handler", "report").Logger(),
	}
}

// reportKey is the envelope key a job is returned under, e.g. SIMPLE_DAILY_SUMMARY_REPORT.
func reportKey(reportType string) string {
	return strings.ToUpper(reportType) + "_REPORT"
}

func (h *ReportHandler) SubmitSimpleDailySummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req submitDailySummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Invalid report request: "+err.Error(), http.StatusBadRequest)
		return
	}

	params := models.ReportParameters{reporting.DayParam: req.Day}
	job, err := h.reports.Submit(r.Context(), req.Name, reporting.SimpleDailySummaryType, params, identity.UserID)
	if err != nil {
		h.writeError(w, err, "Failed to submit report")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]models.ReportJob{reportKey(job.ReportType): job})
}

// GetProgress returns the job state. Ownership is enforced by the route's interceptor.
func (h *ReportHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	job, err := h.reports.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, "Failed to load report job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.ReportJob{reportKey(job.ReportType): job})
}

func (h *ReportHandler) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	job, f, err := h.reports.OpenOutput(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, "Failed to open report output")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.OutputFilename))
	http.ServeContent(w, r, job.OutputFilename, job.UpdatedAt, f)
}

func (h *ReportHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	n, err := queryInt(r, "n", defaultRecentJobs)
	if err != nil {
		http.Error(w, "Invalid n parameter", http.StatusBadRequest)
		return
	}

	jobs, err := h.reports.ListRecent(r.Context(), identity.UserID, n)
	if err != nil {
		h.writeError(w, err, "Failed to list recent report jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// Search returns one page of the caller's jobs of the route's report type.
func (h *ReportHandler) Search(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	page, err := queryInt(r, "p", 0)
	if err != nil {
		http.Error(w, "Invalid p parameter", http.StatusBadRequest)
		return
	}
	size, err := queryInt(r, "n", 0)
	if err != nil {
		http.Error(w, "Invalid n parameter", http.StatusBadRequest)
		return
	}
	page, size = reporting.NormalizePage(page, size)

	query := r.URL.Query()
	jobs, total, err := h.reports.Search(r.Context(), mux.Vars(r)["type"], identity.UserID, query.Get("name"), query, page, size)
	if err != nil {
		h.writeError(w, err, "Failed to search report jobs")
		return
	}
	if jobs == nil {
		jobs = []models.ReportJob{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Jobs: jobs, TotalCount: total})
}

func (h *ReportHandler) CheckName(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	available, err := h.reports.IsNameAvailable(r.Context(), identity.UserID, mux.Vars(r)["type"], name)
	if err != nil {
		h.writeError(w, err, "Failed to check report name")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (h *ReportHandler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, reporting.ErrUnknownReportType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrReportJobNotFound):
		http.Error(w, "Report job not found", http.StatusNotFound)
	case errors.Is(err, reporting.ErrOutputNotReady):
		http.Error(w, "Report output not ready", http.StatusConflict)
	case errors.Is(err, authz.ErrAuthorizationExpired):
		http.Error(w, "Authorization expired", http.StatusUnauthorized)
	case errors.Is(err, authz.ErrOwnershipViolation):
		http.Error(w, "Access denied", http.StatusForbidden)
	default:
		h.logger.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
