package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc   *ops.Service
	owner string
}

// NewHandlers creates a new Handlers instance acting for owner.
func NewHandlers(svc *ops.Service, owner string) *Handlers {
	return &Handlers{svc: svc, owner: owner}
}

// Request types for each tool

// CreateRequest represents the arguments for episode_create.
type CreateRequest struct {
	Severity  *float64 `json:"severity"`
	StartTime *int64   `json:"start_time,omitempty"`
	EndTime   *int64   `json:"end_time,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Triggers  []string `json:"triggers,omitempty"`
}

// UpdateRequest represents the arguments for episode_update.
type UpdateRequest struct {
	ID        string          `json:"id"`
	StartTime *int64          `json:"start_time,omitempty"`
	EndTime   json.RawMessage `json:"end_time,omitempty"`
	Severity  *float64        `json:"severity,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
	Triggers  *[]string       `json:"triggers,omitempty"`
}

// SeverityRequest represents the arguments for episode_record_severity.
type SeverityRequest struct {
	ID        string   `json:"id"`
	Severity  *float64 `json:"severity"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// IDRequest represents the arguments for tools addressing one episode.
type IDRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for episode_list.
type ListRequest struct {
	Level   string `json:"level,omitempty"`
	Active  bool   `json:"active,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ActiveResult wraps episode_get_active so "none" is an explicit null.
type ActiveResult struct {
	Episode *episode.Episode `json:"episode"`
}

func severity(v *float64) (int, error) {
	if v == nil {
		return 0, errors.NewInvalidRequest("severity is required")
	}
	n, ok := episode.SeverityFromFloat(*v)
	if !ok {
		return 0, errors.NewInvalidSeverity(*v)
	}
	return n, nil
}

// Handler implementations

// HandleCreate handles the episode_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	sev, err := severity(input.Severity)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Create(ctx, ops.CreateInput{
		OwnerID:   h.owner,
		Severity:  sev,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		Notes:     input.Notes,
		Triggers:  input.Triggers,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUpdate handles the episode_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	upd := ops.UpdateInput{
		ID:        input.ID,
		OwnerID:   h.owner,
		StartTime: input.StartTime,
		Notes:     input.Notes,
		Triggers:  input.Triggers,
	}
	if input.Severity != nil {
		sev, err := severity(input.Severity)
		if err != nil {
			return errorResult(err), nil
		}
		upd.Severity = &sev
	}
	// Absent leaves the end time alone; null re-opens.
	if len(input.EndTime) > 0 {
		var end episode.EndTime
		if err := json.Unmarshal(input.EndTime, &end); err != nil {
			return errorResult(errors.NewInvalidRequest("end_time must be null or a timestamp in milliseconds")), nil
		}
		upd.EndTime = &end
	}

	result, err := h.svc.Update(ctx, upd)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRecordSeverity handles the episode_record_severity tool call.
func (h *Handlers) HandleRecordSeverity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SeverityRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	sev, err := severity(input.Severity)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.RecordSeverityChange(ctx, ops.SeverityInput{
		ID:        input.ID,
		OwnerID:   h.owner,
		Severity:  sev,
		Timestamp: input.Timestamp,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMarkDone handles the episode_mark_done tool call.
func (h *Handlers) HandleMarkDone(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.MarkDone(ctx, input.ID, h.owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the episode_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Delete(ctx, input.ID, h.owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetActive handles the episode_get_active tool call.
func (h *Handlers) HandleGetActive(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.GetActive(ctx, h.owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(ActiveResult{Episode: result})
}

// HandleFetch handles the episode_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Fetch(ctx, input.ID, h.owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the episode_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.List(ctx, ops.ListInput{
		OwnerID:    h.owner,
		Level:      input.Level,
		ActiveOnly: input.Active,
		Trigger:    input.Trigger,
		Limit:      input.Limit,
		Offset:     input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	auraErr, _ := errors.As(errors.Wrap(err))
	errorObj := map[string]any{
		"code":    auraErr.Code,
		"message": auraErr.Message,
		"status":  auraErr.Status,
	}
	if auraErr.Code != errors.ErrInternal && auraErr.Details != nil {
		errorObj["details"] = auraErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
