package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hpungsan/aura/internal/errors"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes a coded error as {"error": {...}}. Internal causes are
// logged, never sent to the client.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	aErr, _ := errors.As(errors.Wrap(err))

	body := map[string]any{
		"code":    string(aErr.Code),
		"message": aErr.Message,
		"status":  aErr.Status,
	}
	if aErr.Code == errors.ErrInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else if len(aErr.Details) > 0 {
		body["details"] = aErr.Details
	}
	renderJSON(w, aErr.Status, map[string]any{"error": body})
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case stderrors.Is(err, io.EOF):
			return errors.NewInvalidRequest("request body is required")
		case stderrors.As(err, &maxErr):
			return errors.NewInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
		default:
			return errors.NewInvalidRequest("invalid JSON: " + err.Error())
		}
	}
	if dec.More() {
		return errors.NewInvalidRequest("request body must contain a single JSON object")
	}
	return nil
}
