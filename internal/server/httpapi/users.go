package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// userResponse is the public view of an account; the password hash never
// leaves the server.
type userResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Role        access.Role `json:"role"`
	VerifiedAt  *time.Time  `json:"verifiedAt"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		VerifiedAt:  u.VerifiedAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch models.UserPatch
	if err := decodeBody(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.Update(r.Context(), requestingUser(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), requestingUser(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
