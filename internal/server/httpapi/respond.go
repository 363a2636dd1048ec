package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the {identifier, statusCode, message} envelope.
// System errors are logged and their details never leave the server.
func writeError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	e := common.AsError(err)
	if e.StatusCode >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		e = common.ErrSystem
	}
	writeJSON(w, e.StatusCode, e)
}

// decodeBody reads a JSON body into v. An empty body is accepted when
// optional is set and leaves v untouched.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return common.ErrRequestInvalid.WithMessage("malformed request body")
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.ErrRequestInvalid.WithMessage("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}
