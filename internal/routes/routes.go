package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/handlers"
	"github.com/Tubbz-alt/adsbrecorder/internal/middleware"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/reporting"
)

// Ownership-guarded operations.
const (
	OpReportProgress = "report_progress"
	OpReportOutput   = "report_output"
)

// NewRouter sets up the API routes and declares the ownership rules of guarded operations.
func NewRouter(
	auth *handlers.AuthHandler,
	reports *handlers.ReportHandler,
	notifications *handlers.NotificationHandler,
	ownership *authz.Interceptor,
	logger zerolog.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(logger), middleware.Logging(logger))

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	jobRule := authz.OwnershipRule{IDParam: "id", Validator: reporting.ReportJobOwnershipValidatorName}
	ownership.Declare(OpReportProgress, jobRule)
	ownership.Declare(OpReportOutput, jobRule)

	api := router.PathPrefix("/api/reports").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.Handle("/simple-daily-summary",
		authz.RequireAuthorityHandler(models.AuthorityRunSimpleDailySummaryReport, http.HandlerFunc(reports.SubmitSimpleDailySummary)),
	).Methods(http.MethodPost)

	api.Handle("/progress/{id}",
		chain(http.HandlerFunc(reports.GetProgress),
			authz.RequireAuthority(models.AuthorityViewReportMetadata),
			ownership.Middleware(OpReportProgress)),
	).Methods(http.MethodGet)

	api.Handle("/output/{id}",
		chain(http.HandlerFunc(reports.DownloadOutput),
			authz.RequireAuthority(models.AuthorityViewReportOutput),
			ownership.Middleware(OpReportOutput)),
	).Methods(http.MethodGet)

	api.Handle("/recent",
		authz.RequireAuthorityHandler(models.AuthorityViewRecentReportJobs, http.HandlerFunc(reports.ListRecent)),
	).Methods(http.MethodGet)

	// Any signed-in user; results are always scoped to the caller.
	api.HandleFunc("/{type}/search", reports.Search).Methods(http.MethodGet)
	api.HandleFunc("/{type}/check-name", reports.CheckName).Methods(http.MethodGet)

	notif := router.PathPrefix("/api/notifications").Subrouter()
	notif.Use(auth.JWTMiddleware)
	notif.HandleFunc("", notifications.List).Methods(http.MethodGet)
	notif.HandleFunc("/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPost)

	return router
}

// chain applies middlewares so that the first one listed runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
