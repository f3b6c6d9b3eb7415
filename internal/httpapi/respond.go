package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", "error", err)
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request", Message: message})
}

func (h *handler) serverError(w http.ResponseWriter, r *http.Request, what string, err error) {
	h.logger.Error(what,
		"error", err,
		"path", r.URL.Path,
		"request_id", chimiddleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: what, Message: err.Error()})
}

// intParam reads a positive integer query parameter. Absent means def.
func intParam(r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return 0, false
	}
	return v, true
}
