package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var dto services.VaultCreate
	if err := decodeBody(r, &dto, false); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Vaults.Create(r.Context(), requestingUser(r), dto)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) QueryVaults(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.Vaults.Query(r.Context(), requestingUser(r), services.VaultQuery{
		OwnerID: r.URL.Query().Get("ownerId"),
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.Vaults.Get(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) UpdateVault(w http.ResponseWriter, r *http.Request) {
	var patch models.VaultPatch
	if err := decodeBody(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Vaults.Update(r.Context(), requestingUser(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) DeleteVault(w http.ResponseWriter, r *http.Request) {
	if err := h.Vaults.Delete(r.Context(), requestingUser(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.Snapshots.Get(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
