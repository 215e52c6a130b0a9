package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/aura/internal/episode"
)

// knownTriggers is appended to trigger descriptions so clients offer the usual labels.
var knownTriggers = "common labels: " + strings.Join(episode.KnownTriggers, ", ")

var createToolDef = mcp.NewTool("episode_create",
	mcp.WithDescription("Start a migraine episode. Fails with CONFLICT_ACTIVE_EPISODE while another episode is active."),
	mcp.WithNumber("severity", mcp.Required(), mcp.Min(1), mcp.Max(10),
		mcp.Description("Initial severity, an integer from 1 to 10")),
	mcp.WithNumber("start_time", mcp.Description("Start time in ms since epoch (default: now)")),
	mcp.WithNumber("end_time", mcp.Description("End time in ms since epoch; omit for an active episode. A past episode also needs start_time")),
	mcp.WithString("notes", mcp.Description("Free-text notes (markdown allowed)")),
	mcp.WithArray("triggers", mcp.WithStringItems(), mcp.Description("Suspected trigger labels; "+knownTriggers)),
)

var updateToolDef = mcp.NewTool("episode_update",
	mcp.WithDescription("Patch an episode. Pass end_time null to re-open an ended episode."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Episode ID")),
	mcp.WithNumber("start_time", mcp.Description("New start time in ms since epoch")),
	mcp.WithNumber("end_time", mcp.Description("New end time in ms since epoch, or null to re-open")),
	mcp.WithNumber("severity", mcp.Min(1), mcp.Max(10), mcp.Description("Record a new current severity")),
	mcp.WithString("notes", mcp.Description("Replace notes; empty string clears them")),
	mcp.WithArray("triggers", mcp.WithStringItems(), mcp.Description("Replace the trigger set; "+knownTriggers)),
)

var severityToolDef = mcp.NewTool("episode_record_severity",
	mcp.WithDescription("Record a severity sample. Backdated samples are merged in timestamp order."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Episode ID")),
	mcp.WithNumber("severity", mcp.Required(), mcp.Min(1), mcp.Max(10), mcp.Description("Severity from 1 to 10")),
	mcp.WithNumber("timestamp", mcp.Description("Sample time in ms since epoch (default: now)")),
)

var markDoneToolDef = mcp.NewTool("episode_mark_done",
	mcp.WithDescription("End an episode now. Ending an already ended episode is a no-op."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Episode ID")),
)

var deleteToolDef = mcp.NewTool("episode_delete",
	mcp.WithDescription("Permanently delete an episode."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Episode ID")),
)

var getActiveToolDef = mcp.NewTool("episode_get_active",
	mcp.WithDescription("Return the active episode, or null when none is active."),
)

var fetchToolDef = mcp.NewTool("episode_fetch",
	mcp.WithDescription("Fetch one episode with its full severity history."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Episode ID")),
)

var listToolDef = mcp.NewTool("episode_list",
	mcp.WithDescription("List episode summaries, newest start first."),
	mcp.WithString("level", mcp.Description("Filter by level: low, mild, moderate, high")),
	mcp.WithBoolean("active", mcp.Description("Only the active episode")),
	mcp.WithString("trigger", mcp.Description("Only episodes with this trigger label; "+knownTriggers)),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Results to skip")),
)
