package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

// HealthCheck answers 200 when the database and the bucket respond, 503 when
// either does not. The body names the failing dependency.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.Health.Check(r.Context())
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Server.Info(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Server.Settings(r.Context(), requestingUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if err := decodeBody(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Server.UpdateSettings(r.Context(), requestingUser(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
