package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/handlers"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/notification"
	"github.com/Tubbz-alt/adsbrecorder/internal/reporting"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
	"github.com/Tubbz-alt/adsbrecorder/internal/storage"
	"github.com/Tubbz-alt/adsbrecorder/internal/worker"
)

type testServer struct {
	router http.Handler
	jobs   *repository.MemoryReportJobRepository
	users  *repository.MemoryUserRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	users := repository.NewMemoryUserRepository()
	jobs := repository.NewMemoryReportJobRepository()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := repository.NewMemoryTrackingRecordRepository(
		models.TrackingRecord{ID: 1, FlightNumber: "AAL100", RecordDate: day.Add(time.Hour)},
		models.TrackingRecord{ID: 2, FlightNumber: "UAL200", RecordDate: day.Add(2 * time.Hour)},
		models.TrackingRecord{ID: 3, FlightNumber: "DAL300", RecordDate: day.Add(3 * time.Hour)},
	)
	files, err := storage.NewService(t.TempDir())
	require.NoError(t, err)

	registry := reporting.NewRegistry(
		reporting.NewSimpleDailySummaryReport(jobs, records, files, nil, logger),
	)
	registry.Seal()

	notifications := notification.NewService(repository.NewMemoryNotificationRepository(), logger)

	pool := worker.NewPool(worker.Config{Concurrency: 2, QueueSize: 10, JobTimeout: 10 * time.Second}, logger)
	svc := reporting.NewService(jobs, registry, pool, files, logger, reporting.WithNotifier(notifications))
	pool.Start(svc.Execute)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	validators := authz.NewValidatorRegistry()
	validators.Register(reporting.ReportJobOwnershipValidatorName, reporting.NewReportJobOwnershipValidator(jobs))
	validators.Seal()
	interceptor := authz.NewInterceptor(validators, authz.NewUserResolver(users), logger)

	router := NewRouter(
		handlers.NewAuthHandler(users, "test-secret", time.Hour, logger),
		handlers.NewReportHandler(svc, logger),
		handlers.NewNotificationHandler(notifications, logger),
		interceptor,
		logger,
	)
	return &testServer{router: router, jobs: jobs, users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "secret-pw"}
	rec := s.do(t, http.MethodPost, "/api/signup", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func (s *testServer) submit(t *testing.T, token, name string) models.ReportJob {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/reports/simple-daily-summary", token,
		map[string]string{"name": name, "day": "2024-01-01"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]models.ReportJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	job, ok := resp["SIMPLE_DAILY_SUMMARY_REPORT"]
	require.True(t, ok)
	return job
}

func TestReportLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bobby")

	job := s.submit(t, alice, "Morning traffic")
	assert.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		stored, err := s.jobs.FindByID(context.Background(), job.ID)
		return err == nil && stored.Progress == models.ProgressDataWritten
	}, 5*time.Second, 10*time.Millisecond)

	rec := s.do(t, http.MethodGet, "/api/reports/progress/"+job.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress map[string]models.ReportJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&progress))
	assert.Equal(t, models.ProgressDataWritten, progress["SIMPLE_DAILY_SUMMARY_REPORT"].Progress)
	assert.NotEmpty(t, progress["SIMPLE_DAILY_SUMMARY_REPORT"].DataFilename)

	rec = s.do(t, http.MethodGet, "/api/reports/progress/"+job.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reports/progress/"+job.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Rendering is disabled, so the output never becomes available.
	rec = s.do(t, http.MethodGet, "/api/reports/output/"+job.ID, alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/reports/output/"+job.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProgressUnknownJobIsForbidden(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")

	rec := s.do(t, http.MethodGet, "/api/reports/progress/does-not-exist", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivatedUserIsExpired(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	job := s.submit(t, alice, "Soon gone")

	user, err := s.users.AuthenticateUser(context.Background(), "alice", "secret-pw")
	require.NoError(t, err)
	require.NoError(t, s.users.SetActive(user.ID, false))

	rec := s.do(t, http.MethodGet, "/api/reports/progress/"+job.ID, alice, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing name", map[string]string{"day": "2024-01-01"}},
		{"missing day", map[string]string{"name": "x"}},
		{"bad day", map[string]string{"name": "x", "day": "01/01/2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/reports/simple-daily-summary", alice, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchAndCheckName(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bobby")

	for _, name := range []string{"Daily A", "Daily B", "Weekly C"} {
		s.submit(t, alice, name)
	}
	s.submit(t, bob, "Daily bob")

	var resp struct {
		Jobs       []models.ReportJob `json:"jobs"`
		TotalCount int64              `json:"totalCount"`
	}
	rec := s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/search?name=daily&start=not-a-date", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp.TotalCount)
	assert.Len(t, resp.Jobs, 2)
	for _, job := range resp.Jobs {
		assert.NotEqual(t, "Daily bob", job.ReportName)
	}

	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/search?p=1&n=1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.TotalCount)
	assert.Len(t, resp.Jobs, 1)

	rec = s.do(t, http.MethodGet, "/api/reports/quarterly/search", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var available map[string]bool
	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/check-name?name=daily%20a", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&available))
	assert.False(t, available["available"])

	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/check-name?name=daily%20a", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&available))
	assert.True(t, available["available"])

	rec = s.do(t, http.MethodGet, "/api/reports/recent?n=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []models.ReportJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recent))
	assert.Len(t, recent, 2)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adsb_http_requests_total")
}

func TestNotificationsAfterReport(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bobby")
	s.submit(t, alice, "Evening traffic")

	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/notifications", alice, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			return false
		}
		return len(resp.Notifications) == 1
	}, 5*time.Second, 10*time.Millisecond)

	notif := resp.Notifications[0]
	assert.Equal(t, models.NotificationEventReportReady, notif.EventType)
	assert.Equal(t, "Report data ready: Evening traffic", notif.Title)

	rec := s.do(t, http.MethodPost, "/api/notifications/"+notif.ID+"/read", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/notifications/"+notif.ID+"/read", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var read models.Notification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&read))
	assert.NotNil(t, read.ReadAt)
}

func TestSearchAndCheckNameNeedOnlySignIn(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	job := s.submit(t, alice, "Morning traffic")

	_, err := s.users.CreateUser(context.Background(), "carol", "secret-pw",
		[]models.Authority{models.AuthorityRunSimpleDailySummaryReport})
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "carol", "password": "secret-pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	carol := resp["token"]

	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/search", carol, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/check-name?name=x", carol, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/search", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reports/recent", carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/reports/progress/"+job.ID, carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearchClampsPaging(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	for _, name := range []string{"A", "B"} {
		s.submit(t, alice, name)
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"huge size", "n=1099511627776", 2},
		{"min size", "n=-9223372036854775808", 2},
		{"huge page", "p=4611686018427387904&n=3", 0},
		{"min page", "p=-9223372036854775808&n=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/reports/simple_daily_summary/search?"+tt.query, alice, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp struct {
				Jobs       []models.ReportJob `json:"jobs"`
				TotalCount int64              `json:"totalCount"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Len(t, resp.Jobs, tt.want)
			assert.Equal(t, int64(2), resp.TotalCount)
		})
	}
}
