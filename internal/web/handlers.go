package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/ops"
)

// Handlers contains HTTP route handlers for the episode API.
type Handlers struct {
	svc *ops.Service
}

type createRequest struct {
	Severity  *float64 `json:"severity"`
	StartTime *int64   `json:"start_time"`
	EndTime   *int64   `json:"end_time"`
	Notes     *string  `json:"notes"`
	Triggers  []string `json:"triggers"`
}

type updateRequest struct {
	StartTime *int64    `json:"start_time"`
	Severity  *float64  `json:"severity"`
	Notes     *string   `json:"notes"`
	Triggers  *[]string `json:"triggers"`
	// EndTime is absent (unchanged), null (re-open) or a timestamp.
	EndTime json.RawMessage `json:"end_time"`
}

type severityRequest struct {
	Severity  *float64 `json:"severity"`
	Timestamp *int64   `json:"timestamp"`
}

// owner returns the authenticated owner; RequireAuth guarantees it.
func owner(r *http.Request) string {
	o, _ := OwnerFromContext(r.Context())
	return o
}

// parseSeverity converts a JSON number to a severity.
func parseSeverity(v *float64) (int, error) {
	if v == nil {
		return 0, errors.NewInvalidRequest("severity is required")
	}
	n, ok := episode.SeverityFromFloat(*v)
	if !ok {
		return 0, errors.NewInvalidSeverity(*v)
	}
	return n, nil
}

// HandleCreate handles POST /episodes.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	sev, err := parseSeverity(req.Severity)
	if err != nil {
		renderError(w, r, err)
		return
	}

	e, err := h.svc.Create(r.Context(), ops.CreateInput{
		OwnerID:   owner(r),
		Severity:  sev,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
		Triggers:  req.Triggers,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, e)
}

// HandleList handles GET /episodes.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.List(r.Context(), ops.ListInput{
		OwnerID:    owner(r),
		Level:      q.Get("level"),
		ActiveOnly: parseBoolParam(r, "active"),
		Trigger:    q.Get("trigger"),
		Limit:      parseIntParam(r, "limit", 0),
		Offset:     parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleActive handles GET /episodes/active. The episode is null when none is active.
func (h *Handlers) HandleActive(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetActive(r.Context(), owner(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"episode": e})
}

// HandleFetch handles GET /episodes/{id}.
func (h *Handlers) HandleFetch(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Fetch(r.Context(), r.PathValue("id"), owner(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, e)
}

// HandleUpdate handles PATCH /episodes/{id}.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	input := ops.UpdateInput{
		ID:        r.PathValue("id"),
		OwnerID:   owner(r),
		StartTime: req.StartTime,
		Notes:     req.Notes,
		Triggers:  req.Triggers,
	}
	if req.Severity != nil {
		sev, err := parseSeverity(req.Severity)
		if err != nil {
			renderError(w, r, err)
			return
		}
		input.Severity = &sev
	}
	if len(req.EndTime) > 0 {
		var end episode.EndTime
		if err := json.Unmarshal(req.EndTime, &end); err != nil {
			renderError(w, r, errors.NewInvalidRequest("end_time must be null or a timestamp in milliseconds"))
			return
		}
		input.EndTime = &end
	}

	e, err := h.svc.Update(r.Context(), input)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, e)
}

// HandleSeverity handles POST /episodes/{id}/severity.
func (h *Handlers) HandleSeverity(w http.ResponseWriter, r *http.Request) {
	var req severityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	sev, err := parseSeverity(req.Severity)
	if err != nil {
		renderError(w, r, err)
		return
	}

	e, err := h.svc.RecordSeverityChange(r.Context(), ops.SeverityInput{
		ID:        r.PathValue("id"),
		OwnerID:   owner(r),
		Severity:  sev,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, e)
}

// HandleDone handles POST /episodes/{id}/done.
func (h *Handlers) HandleDone(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MarkDone(r.Context(), r.PathValue("id"), owner(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /episodes/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Delete(r.Context(), r.PathValue("id"), owner(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
