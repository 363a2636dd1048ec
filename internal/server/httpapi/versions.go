package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type chunkList struct {
	Chunks []models.FileChunk `json:"chunks"`
}

func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var dto services.VersionCreate
	if err := decodeBody(r, &dto, false); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Versions.Create(r.Context(), requestingUser(r), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) QueryVersions(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.Versions.Query(r.Context(), requestingUser(r), chi.URLParam(r, "id"), services.VersionQuery{
		Type:   models.VersionType(r.URL.Query().Get("type")),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.Versions.GetVersion(r.Context(), requestingUser(r), chi.URLParam(r, "versionId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CommitFile(w http.ResponseWriter, r *http.Request) {
	v, err := h.Versions.CommitFile(r.Context(), requestingUser(r), chi.URLParam(r, "versionId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) ListVersionChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.Versions.ListChunks(r.Context(), requestingUser(r), chi.URLParam(r, "versionId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []models.FileChunk{}
	}
	writeJSON(w, http.StatusOK, chunkList{Chunks: chunks})
}

// GetItem returns the current version of an entity group.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.Versions.Get(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteItem appends a tombstone and returns it.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.Versions.Delete(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
