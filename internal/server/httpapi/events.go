package httpapi

import "net/http"

type pendingResponse struct {
	Vaults []string `json:"vaults"`
}

// PendingEvents drains the vault ids other sessions changed since the
// caller's last poll.
func (h *Handler) PendingEvents(w http.ResponseWriter, r *http.Request) {
	u := requestingUser(r)
	writeJSON(w, http.StatusOK, pendingResponse{Vaults: h.Pending.Pending(u.ID, u.SessionID)})
}
