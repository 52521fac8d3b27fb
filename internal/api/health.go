package api

import (
	"net/http"

	"assistant/internal/db"
)

type HealthHandler struct {
	database *db.DB
	sessions interface{ Len() int }
}

func NewHealthHandler(database *db.DB, sessions interface{ Len() int }) *HealthHandler {
	return &HealthHandler{database: database, sessions: sessions}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	if err := h.database.PingContext(r.Context()); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	body := map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions.Len()
	}

	writeJSON(w, status, body)
}
