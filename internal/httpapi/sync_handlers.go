package httpapi

import (
	"context"
	"net/http"

	"growth_tracker/internal/domain"
)

const userIDHeader = "X-User-ID"

type dailyResponse struct {
	Success      bool                     `json:"success"`
	Results      *domain.CollectionResult `json:"results"`
	TokenRefresh *domain.RefreshResult    `json:"token_refresh"`
}

type collectionResponse struct {
	Success bool                     `json:"success"`
	Results *domain.CollectionResult `json:"results"`
}

type refreshResponse struct {
	Success bool                  `json:"success"`
	Results *domain.RefreshResult `json:"results"`
}

// batchContext lets a batch finish after the client disconnects or the
// write timeout fires.
func (h *handler) batchContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
}

// runDaily reports 200 even when some accounts failed; only a failure to
// run the batch at all is a 500.
func (h *handler) runDaily(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.batchContext(r)
	defer cancel()

	results, err := h.syncer.RunDailyCollection(ctx)
	if err != nil {
		h.serverError(w, r, "daily collection failed", err)
		return
	}

	refresh, err := h.syncer.CheckAndRefreshTokens(ctx)
	if err != nil {
		h.serverError(w, r, "token refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dailyResponse{Success: true, Results: results, TokenRefresh: refresh})
}

func (h *handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.GetSyncStatus(r.Context())
	if err != nil {
		h.serverError(w, r, "sync status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) refreshTokens(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.batchContext(r)
	defer cancel()

	refresh, err := h.syncer.CheckAndRefreshTokens(ctx)
	if err != nil {
		h.serverError(w, r, "token refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Results: refresh})
}

func (h *handler) runUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		badRequest(w, "missing "+userIDHeader+" header")
		return
	}

	ctx, cancel := h.batchContext(r)
	defer cancel()

	results, err := h.syncer.RunUserDataCollection(ctx, userID)
	if err != nil {
		h.serverError(w, r, "user collection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, collectionResponse{Success: true, Results: results})
}

func (h *handler) syncStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.syncer.GetSyncStatistics(r.Context())
	if err != nil {
		h.serverError(w, r, "sync statistics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
