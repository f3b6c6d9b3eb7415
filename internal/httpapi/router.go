package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"growth_tracker/internal/domain"
)

// Syncer triggers and reports collection runs.
type Syncer interface {
	RunDailyCollection(ctx context.Context) (*domain.CollectionResult, error)
	RunUserDataCollection(ctx context.Context, userID string) (*domain.CollectionResult, error)
	CheckAndRefreshTokens(ctx context.Context) (*domain.RefreshResult, error)
	GetSyncStatus(ctx context.Context) (*domain.SyncStatusSummary, error)
	GetSyncStatistics(ctx context.Context) (*domain.SyncStatistics, error)
}

// History serves stored snapshots and derived growth.
type History interface {
	GetHistoricalSnapshots(ctx context.Context, userID string, days int) ([]domain.DailySnapshot, error)
	GetGrowthAnalytics(ctx context.Context, userID string) (*domain.GrowthAnalytics, error)
	GetFollowerGrowthChart(ctx context.Context, userID string, days int) ([]domain.ChartPoint, error)
	GetTopPerformingPosts(ctx context.Context, userID string, limit int) ([]domain.PostSnapshot, error)
	GetAccountSummary(ctx context.Context, userID string) (*domain.AccountSummary, error)
	HasHistoricalData(ctx context.Context, userID string) (bool, error)
}

// Growth serves the presentation-level growth analysis.
type Growth interface {
	GetComprehensiveGrowthAnalysis(ctx context.Context, userID string, reportData *domain.ReportData) (*domain.GrowthAnalysisResult, error)
	GetGrowthVelocity(ctx context.Context, userID string) (*domain.GrowthVelocity, error)
	GetGrowthPredictions(ctx context.Context, userID string, days int) (*domain.GrowthPredictions, error)
}

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Syncer  Syncer
	History History
	Growth  Growth
	DB      Pinger
	Secret  string
	Logger  *slog.Logger

	// RunTimeout bounds batches triggered over HTTP. They outlive the
	// request that started them.
	RunTimeout time.Duration
}

type handler struct {
	syncer     Syncer
	history    History
	growth     Growth
	db         Pinger
	logger     *slog.Logger
	runTimeout time.Duration
}

func NewRouter(deps Deps) http.Handler {
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = 30 * time.Minute
	}
	h := &handler{
		syncer:     deps.Syncer,
		history:    deps.History,
		growth:     deps.Growth,
		db:         deps.DB,
		logger:     deps.Logger.With("component", "httpapi"),
		runTimeout: deps.RunTimeout,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Get("/daily", h.syncStatus)

		r.Group(func(r chi.Router) {
			r.Use(SecretAuth(deps.Secret))
			r.Post("/daily", h.runDaily)
			r.Post("/token-refresh", h.refreshTokens)
			r.Post("/user", h.runUser)
			r.Get("/statistics", h.syncStatistics)
		})
	})

	r.Route("/analytics/users/{userID}", func(r chi.Router) {
		r.Use(SecretAuth(deps.Secret))
		r.Get("/history", h.snapshots)
		r.Get("/growth", h.growthAnalytics)
		r.Get("/chart", h.chart)
		r.Get("/top-posts", h.topPosts)
		r.Get("/summary", h.summary)
		r.Get("/analysis", h.analysis)
		r.Get("/velocity", h.velocity)
		r.Get("/predictions", h.predictions)
		r.Get("/has-history", h.hasHistory)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.serverError(w, r, "database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
