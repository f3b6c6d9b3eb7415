package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"growth_tracker/internal/domain"
)

const (
	defaultHistoryDays  = 30
	maxHistoryDays      = 730
	defaultTopPosts     = 10
	maxTopPosts         = 100
	defaultForecastDays = 30
	maxForecastDays     = 365
)

func (h *handler) snapshots(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", defaultHistoryDays, maxHistoryDays)
	if !ok {
		badRequest(w, "days must be between 1 and "+strconv.Itoa(maxHistoryDays))
		return
	}

	snaps, err := h.history.GetHistoricalSnapshots(r.Context(), chi.URLParam(r, "userID"), days)
	if err != nil {
		h.serverError(w, r, "load snapshots failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *handler) growthAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.history.GetGrowthAnalytics(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serverError(w, r, "growth analytics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *handler) chart(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", defaultHistoryDays, maxHistoryDays)
	if !ok {
		badRequest(w, "days must be between 1 and "+strconv.Itoa(maxHistoryDays))
		return
	}

	points, err := h.history.GetFollowerGrowthChart(r.Context(), chi.URLParam(r, "userID"), days)
	if err != nil {
		h.serverError(w, r, "growth chart failed", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *handler) topPosts(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", defaultTopPosts, maxTopPosts)
	if !ok {
		badRequest(w, "limit must be between 1 and "+strconv.Itoa(maxTopPosts))
		return
	}

	posts, err := h.history.GetTopPerformingPosts(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.serverError(w, r, "top posts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// summary answers 200 with a null body when the user has no snapshots.
func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.history.GetAccountSummary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serverError(w, r, "account summary failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// analysis accepts the caller's current numbers as ?followers=&posts= and
// uses them when history is insufficient.
func (h *handler) analysis(w http.ResponseWriter, r *http.Request) {
	report, err := reportData(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.growth.GetComprehensiveGrowthAnalysis(r.Context(), chi.URLParam(r, "userID"), report)
	if err != nil {
		h.serverError(w, r, "growth analysis failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) velocity(w http.ResponseWriter, r *http.Request) {
	velocity, err := h.growth.GetGrowthVelocity(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serverError(w, r, "growth velocity failed", err)
		return
	}
	writeJSON(w, http.StatusOK, velocity)
}

func (h *handler) predictions(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", defaultForecastDays, maxForecastDays)
	if !ok {
		badRequest(w, "days must be between 1 and "+strconv.Itoa(maxForecastDays))
		return
	}

	predictions, err := h.growth.GetGrowthPredictions(r.Context(), chi.URLParam(r, "userID"), days)
	if err != nil {
		h.serverError(w, r, "growth predictions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (h *handler) hasHistory(w http.ResponseWriter, r *http.Request) {
	has, err := h.history.HasHistoricalData(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serverError(w, r, "history check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasHistoricalData": has})
}

func reportData(r *http.Request) (*domain.ReportData, error) {
	q := r.URL.Query()
	rawFollowers, rawPosts := q.Get("followers"), q.Get("posts")
	if rawFollowers == "" && rawPosts == "" {
		return nil, nil
	}

	var data domain.ReportData
	var err error
	if rawFollowers != "" {
		if data.FollowersCount, err = strconv.ParseInt(rawFollowers, 10, 64); err != nil || data.FollowersCount < 0 {
			return nil, errors.New("followers must be a non-negative integer")
		}
	}
	if rawPosts != "" {
		if data.PostsCount, err = strconv.ParseInt(rawPosts, 10, 64); err != nil || data.PostsCount < 0 {
			return nil, errors.New("posts must be a non-negative integer")
		}
	}
	return &data, nil
}
