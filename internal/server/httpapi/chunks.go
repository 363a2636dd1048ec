package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type signedURL struct {
	URL string `json:"url"`
}

type storedChunks struct {
	Hashes []string `json:"hashes"`
}

// RequestUpload returns a presigned PUT. The optional body {"size": n}
// records the expected chunk size.
func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size int64 `json:"size"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	url, err := h.Chunks.RequestUpload(r.Context(), requestingUser(r),
		chi.URLParam(r, "vaultId"), chi.URLParam(r, "hash"), req.Size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signedURL{URL: url})
}

func (h *Handler) RequestDownload(w http.ResponseWriter, r *http.Request) {
	url, err := h.Chunks.RequestDownload(r.Context(), requestingUser(r),
		chi.URLParam(r, "vaultId"), chi.URLParam(r, "hash"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signedURL{URL: url})
}

func (h *Handler) ListStoredChunks(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.Chunks.ListStored(r.Context(), requestingUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	writeJSON(w, http.StatusOK, storedChunks{Hashes: hashes})
}
