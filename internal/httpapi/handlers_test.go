package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth_tracker/internal/domain"
)

const testSecret = "cron-secret"

type fakeSyncer struct {
	dailyErr   error
	refreshErr error
	userIDs    []string
	calls      []string

	// ctxErrs and deadlines are captured when each batch starts.
	ctxErrs   []error
	deadlines []time.Time
}

func (f *fakeSyncer) observe(ctx context.Context) {
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	deadline, _ := ctx.Deadline()
	f.deadlines = append(f.deadlines, deadline)
}

func (f *fakeSyncer) RunDailyCollection(ctx context.Context) (*domain.CollectionResult, error) {
	f.observe(ctx)
	f.calls = append(f.calls, "daily")
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	return &domain.CollectionResult{Successful: 2, Failed: 1, Errors: []string{"bob: instagram /me: status 400: bad token"}}, nil
}

func (f *fakeSyncer) RunUserDataCollection(ctx context.Context, userID string) (*domain.CollectionResult, error) {
	f.observe(ctx)
	f.userIDs = append(f.userIDs, userID)
	return &domain.CollectionResult{Successful: 1, Errors: []string{}}, nil
}

func (f *fakeSyncer) CheckAndRefreshTokens(ctx context.Context) (*domain.RefreshResult, error) {
	f.observe(ctx)
	f.calls = append(f.calls, "refresh")
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &domain.RefreshResult{Checked: 1, Refreshed: 1, Errors: []string{}}, nil
}

func (f *fakeSyncer) GetSyncStatus(ctx context.Context) (*domain.SyncStatusSummary, error) {
	last := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	return &domain.SyncStatusSummary{Accounts: 3, LastSync: &last, Status: "healthy"}, nil
}

func (f *fakeSyncer) GetSyncStatistics(ctx context.Context) (*domain.SyncStatistics, error) {
	return &domain.SyncStatistics{TotalRuns: 4, Completed: 3, Failed: 1, SuccessRate: 75}, nil
}

type fakeHistory struct {
	days    int
	limit   int
	summary *domain.AccountSummary
	err     error
}

func (f *fakeHistory) GetHistoricalSnapshots(ctx context.Context, userID string, days int) ([]domain.DailySnapshot, error) {
	f.days = days
	return []domain.DailySnapshot{{AccountID: 1, FollowersCount: 1000}}, f.err
}

func (f *fakeHistory) GetGrowthAnalytics(ctx context.Context, userID string) (*domain.GrowthAnalytics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GrowthAnalytics{Weekly: &domain.PeriodGrowth{FollowersGrowthRate: 5}, IsRealData: true}, nil
}

func (f *fakeHistory) GetFollowerGrowthChart(ctx context.Context, userID string, days int) ([]domain.ChartPoint, error) {
	f.days = days
	return []domain.ChartPoint{}, f.err
}

func (f *fakeHistory) GetTopPerformingPosts(ctx context.Context, userID string, limit int) ([]domain.PostSnapshot, error) {
	f.limit = limit
	return []domain.PostSnapshot{}, f.err
}

func (f *fakeHistory) GetAccountSummary(ctx context.Context, userID string) (*domain.AccountSummary, error) {
	return f.summary, f.err
}

func (f *fakeHistory) HasHistoricalData(ctx context.Context, userID string) (bool, error) {
	return true, f.err
}

type fakeGrowth struct {
	userID string
	report *domain.ReportData
	days   int
}

func (f *fakeGrowth) GetComprehensiveGrowthAnalysis(ctx context.Context, userID string, reportData *domain.ReportData) (*domain.GrowthAnalysisResult, error) {
	f.userID, f.report = userID, reportData
	return &domain.GrowthAnalysisResult{WeeklyGrowthRate: 2, Source: domain.AnalysisEstimated}, nil
}

func (f *fakeGrowth) GetGrowthVelocity(ctx context.Context, userID string) (*domain.GrowthVelocity, error) {
	return &domain.GrowthVelocity{Trend: domain.TrendInsufficientData}, nil
}

func (f *fakeGrowth) GetGrowthPredictions(ctx context.Context, userID string, days int) (*domain.GrowthPredictions, error) {
	f.days = days
	return &domain.GrowthPredictions{Predictions: []domain.Prediction{}}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

type fixture struct {
	syncer  *fakeSyncer
	history *fakeHistory
	growth  *fakeGrowth
	router  http.Handler
}

func newFixture(pingErr error) *fixture {
	f := &fixture{syncer: &fakeSyncer{}, history: &fakeHistory{}, growth: &fakeGrowth{}}
	f.router = NewRouter(Deps{
		Syncer:  f.syncer,
		History: f.history,
		Growth:  f.growth,
		DB:      fakePinger{err: pingErr},
		Secret:  testSecret,
		Logger:  slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),

		RunTimeout: time.Hour,
	})
	return f
}

func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func authorized() http.Header {
	return http.Header{"Authorization": {"Bearer " + testSecret}}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSecretAuth(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{name: "missing header", header: nil, status: http.StatusUnauthorized},
		{name: "wrong secret", header: http.Header{"Authorization": {"Bearer nope"}}, status: http.StatusUnauthorized},
		{name: "not bearer", header: http.Header{"Authorization": {testSecret}}, status: http.StatusUnauthorized},
		{name: "valid", header: authorized(), status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)

			rec := f.do(http.MethodPost, "/sync/token-refresh", tt.header)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "unauthorized", decode(t, rec)["error"])
			}
		})
	}
}

func TestSecretAuth_EmptySecretRejects(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()

	SecretAuth("")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunDaily_ReportsPartialFailureAsSuccess(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodPost, "/sync/daily", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	results := body["results"].(map[string]any)
	assert.EqualValues(t, 2, results["successful"])
	assert.EqualValues(t, 1, results["failed"])
	assert.Len(t, results["errors"], 1)
	assert.NotNil(t, body["token_refresh"])
	assert.Equal(t, []string{"daily", "refresh"}, f.syncer.calls)
}

func TestSyncRoutes_OutliveDisconnectedClient(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header http.Header
	}{
		{name: "daily", target: "/sync/daily", header: authorized()},
		{name: "token refresh", target: "/sync/token-refresh", header: authorized()},
		{name: "user", target: "/sync/user", header: http.Header{"Authorization": {"Bearer " + testSecret}, userIDHeader: {"user-9"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			req := httptest.NewRequest(http.MethodPost, tt.target, nil).WithContext(ctx)
			for k, v := range tt.header {
				req.Header.Set(k, v[0])
			}
			rec := httptest.NewRecorder()
			before := time.Now()
			f.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.NotEmpty(t, f.syncer.ctxErrs)
			for i, err := range f.syncer.ctxErrs {
				assert.NoError(t, err)
				assert.WithinDuration(t, before.Add(time.Hour), f.syncer.deadlines[i], time.Minute)
			}
		})
	}
}

func TestRunDaily_CollectionFailure(t *testing.T) {
	f := newFixture(nil)
	f.syncer.dailyErr = errors.New("list accounts: connection refused")

	rec := f.do(http.MethodPost, "/sync/daily", authorized())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "daily collection failed", body["error"])
	assert.Contains(t, body["message"], "connection refused")
	assert.Equal(t, []string{"daily"}, f.syncer.calls)
}

func TestRunDaily_RefreshFailure(t *testing.T) {
	f := newFixture(nil)
	f.syncer.refreshErr = errors.New("list expiring: timeout")

	rec := f.do(http.MethodPost, "/sync/daily", authorized())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "token refresh failed", decode(t, rec)["error"])
}

func TestSyncStatus_NoAuthRequired(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/sync/daily", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["accounts"])
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2026-03-01T02:00:00Z", body["lastSync"])
}

func TestRunUser(t *testing.T) {
	f := newFixture(nil)
	header := authorized()
	header.Set(userIDHeader, "user-42")

	rec := f.do(http.MethodPost, "/sync/user", header)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user-42"}, f.syncer.userIDs)
}

func TestRunUser_MissingHeader(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodPost, "/sync/user", authorized())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.syncer.userIDs)
}

func TestSyncStatistics(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/sync/statistics", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 75.0, decode(t, rec)["success_rate"], 1e-9)
}

func TestAnalytics_RequiresSecret(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/analytics/users/user-1/growth", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalytics_QueryDefaultsAndLimits(t *testing.T) {
	f := newFixture(nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/analytics/users/user-1/history", authorized()).Code)
	assert.Equal(t, defaultHistoryDays, f.history.days)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/analytics/users/user-1/chart?days=90", authorized()).Code)
	assert.Equal(t, 90, f.history.days)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/analytics/users/user-1/top-posts", authorized()).Code)
	assert.Equal(t, defaultTopPosts, f.history.limit)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/analytics/users/user-1/predictions?days=14", authorized()).Code)
	assert.Equal(t, 14, f.growth.days)
}

func TestAnalytics_InvalidQuery(t *testing.T) {
	targets := []string{
		"/analytics/users/user-1/history?days=0",
		"/analytics/users/user-1/chart?days=abc",
		"/analytics/users/user-1/top-posts?limit=1000",
		"/analytics/users/user-1/predictions?days=-3",
		"/analytics/users/user-1/analysis?followers=many",
	}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			rec := newFixture(nil).do(http.MethodGet, target, authorized())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnalysis_PassesReportData(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/analytics/users/user-7/analysis?followers=20000&posts=20", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", f.growth.userID)
	require.NotNil(t, f.growth.report)
	assert.Equal(t, domain.ReportData{FollowersCount: 20_000, PostsCount: 20}, *f.growth.report)
	assert.Equal(t, "estimated", decode(t, rec)["source"])
}

func TestAnalysis_WithoutReportData(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/analytics/users/user-7/analysis", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.growth.report)
}

func TestGrowthAnalytics_ServiceFailure(t *testing.T) {
	f := newFixture(nil)
	f.history.err = errors.New("snapshot store down")

	rec := f.do(http.MethodGet, "/analytics/users/user-1/growth", authorized())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "snapshot store down", decode(t, rec)["message"])
}

func TestSummary_NullWithoutSnapshots(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/analytics/users/user-1/summary", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "null", rec.Body.String())
}

func TestHasHistory(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/analytics/users/user-1/has-history", authorized())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["hasHistoricalData"])
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, newFixture(nil).do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, newFixture(errors.New("down")).do(http.MethodGet, "/healthz", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(nil).do(http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
