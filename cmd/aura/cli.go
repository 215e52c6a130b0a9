package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/mcp"
	"github.com/hpungsan/aura/internal/ops"
	"github.com/hpungsan/aura/internal/push"
	"github.com/hpungsan/aura/internal/web"
)

// defaultTokenTTL is the lifetime of tokens minted by `aura token`.
const defaultTokenTTL = 24 * time.Hour

// newCLIApp creates the CLI application with all commands. The injector is
// only touched by command actions, so help and version work without it.
func newCLIApp(inj do.Injector) *cli.App {
	app := &cli.App{
		Name:    "aura",
		Usage:   "Migraine episode tracker",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(inj),
			mcpCmd(inj),
			createCmd(inj),
			updateCmd(inj),
			severityCmd(inj),
			doneCmd(inj),
			deleteCmd(inj),
			activeCmd(inj),
			fetchCmd(inj),
			listCmd(inj),
			endpointCmd(inj),
			tokenCmd(inj),
			versionCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// ownerFlag overrides the configured default owner.
func ownerFlag() cli.Flag {
	return &cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner id (defaults to config default_owner)"}
}

// owner returns --owner or the configured default.
func owner(c *cli.Context, inj do.Injector) string {
	if o := c.String("owner"); o != "" {
		return o
	}
	return do.MustInvoke[*config.Config](inj).DefaultOwner
}

// serveCmd creates the serve command.
func serveCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the check-in scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (defaults to config http_addr)"},
		},
		Action: func(c *cli.Context) error {
			cfg := do.MustInvoke[*config.Config](inj)
			if addr := c.String("addr"); addr != "" {
				cfg.HTTPAddr = addr
			}
			if err := cfg.ValidateServe(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			sched := do.MustInvoke[*schedulerService](inj)
			logger := do.MustInvoke[*slog.Logger](inj)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			sched.Start(ctx)

			srv := web.NewServer(svc, web.NewAuthenticator(cfg.JWTSecret), cfg.HTTPAddr, logger)
			if err := web.Run(ctx, srv, logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP tool server on stdio",
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			cfg := do.MustInvoke[*config.Config](inj)
			logger := do.MustInvoke[*slog.Logger](inj)
			do.MustInvoke[*schedulerService](inj).Start(c.Context)

			if err := mcp.Run(svc, cfg, Version, logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// createCmd creates the create command.
func createCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Start a new episode",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.IntFlag{Name: "severity", Aliases: []string{"s"}, Required: true, Usage: "Severity 1-10"},
			&cli.Int64Flag{Name: "start", Usage: "Start time in ms since epoch (default: now)"},
			&cli.Int64Flag{Name: "end", Usage: "End time in ms since epoch (default: active)"},
			&cli.StringFlag{Name: "notes", Aliases: []string{"n"}, Usage: "Notes"},
			&cli.StringFlag{Name: "triggers", Aliases: []string{"t"}, Usage: "Comma-separated triggers (common: " + strings.Join(episode.KnownTriggers, ", ") + ")"},
		},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}

			input := ops.CreateInput{
				OwnerID:  owner(c, inj),
				Severity: c.Int("severity"),
				Triggers: parseTriggers(c.String("triggers")),
			}
			if c.IsSet("start") {
				v := c.Int64("start")
				input.StartTime = &v
			}
			if c.IsSet("end") {
				v := c.Int64("end")
				input.EndTime = &v
			}
			if c.IsSet("notes") {
				v := c.String("notes")
				input.Notes = &v
			}

			output, err := svc.Create(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Edit an episode",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.IntFlag{Name: "severity", Aliases: []string{"s"}, Usage: "Record a new current severity"},
			&cli.Int64Flag{Name: "start", Usage: "New start time in ms since epoch"},
			&cli.Int64Flag{Name: "end", Usage: "New end time in ms since epoch"},
			&cli.BoolFlag{Name: "reopen", Usage: "Clear the end time"},
			&cli.StringFlag{Name: "notes", Aliases: []string{"n"}, Usage: "Replace notes (empty clears)"},
			&cli.StringFlag{Name: "triggers", Aliases: []string{"t"}, Usage: "Replace triggers (comma-separated)"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("end") && c.Bool("reopen") {
				return outputError(errors.NewInvalidRequest("--end and --reopen are mutually exclusive"))
			}
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}

			input := ops.UpdateInput{ID: c.Args().First(), OwnerID: owner(c, inj)}
			if c.IsSet("severity") {
				v := c.Int("severity")
				input.Severity = &v
			}
			if c.IsSet("start") {
				v := c.Int64("start")
				input.StartTime = &v
			}
			if c.IsSet("end") {
				end := episode.EndedAt(c.Int64("end"))
				input.EndTime = &end
			}
			if c.Bool("reopen") {
				end := episode.Active()
				input.EndTime = &end
			}
			if c.IsSet("notes") {
				v := c.String("notes")
				input.Notes = &v
			}
			if c.IsSet("triggers") {
				v := parseTriggers(c.String("triggers"))
				input.Triggers = &v
			}

			output, err := svc.Update(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// severityCmd creates the severity command.
func severityCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:      "severity",
		Usage:     "Record a severity change",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.IntFlag{Name: "severity", Aliases: []string{"s"}, Required: true, Usage: "Severity 1-10"},
			&cli.Int64Flag{Name: "at", Usage: "Sample time in ms since epoch (default: now)"},
		},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}

			input := ops.SeverityInput{
				ID:       c.Args().First(),
				OwnerID:  owner(c, inj),
				Severity: c.Int("severity"),
			}
			if c.IsSet("at") {
				v := c.Int64("at")
				input.Timestamp = &v
			}

			output, err := svc.RecordSeverityChange(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// doneCmd creates the done command.
func doneCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:      "done",
		Usage:     "End an episode now",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{ownerFlag()},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			output, err := svc.MarkDone(c.Context, c.Args().First(), owner(c, inj))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete an episode",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{ownerFlag()},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			output, err := svc.Delete(c.Context, c.Args().First(), owner(c, inj))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// activeCmd creates the active command.
func activeCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "active",
		Usage: "Show the active episode, if any",
		Flags: []cli.Flag{ownerFlag()},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			output, err := svc.GetActive(c.Context, owner(c, inj))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"episode": output})
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Show one episode with its severity history",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{ownerFlag()},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			output, err := svc.Fetch(c.Context, c.Args().First(), owner(c, inj))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List episodes, newest first",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.StringFlag{Name: "level", Aliases: []string{"l"}, Usage: "Filter by level: low|mild|moderate|high"},
			&cli.BoolFlag{Name: "active", Usage: "Only the active episode"},
			&cli.StringFlag{Name: "trigger", Usage: "Only episodes with this trigger label"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip results"},
		},
		Action: func(c *cli.Context) error {
			svc, err := do.Invoke[*ops.Service](inj)
			if err != nil {
				return outputError(err)
			}
			output, err := svc.List(c.Context, ops.ListInput{
				OwnerID:    owner(c, inj),
				Level:      c.String("level"),
				ActiveOnly: c.Bool("active"),
				Trigger:    c.String("trigger"),
				Limit:      c.Int("limit"),
				Offset:     c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// endpointCmd groups the endpoint registry subcommands.
func endpointCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "endpoint",
		Usage: "Manage notification endpoints",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register an endpoint",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: string(push.KindWebhook), Usage: "webhook|discord"},
					&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Required: true, Usage: "Webhook URL or discord channel id"},
					&cli.StringFlag{Name: "secret", Usage: "Webhook signing secret"},
				},
				Action: func(c *cli.Context) error {
					svc, err := do.Invoke[*ops.Service](inj)
					if err != nil {
						return outputError(err)
					}
					output, err := svc.AddEndpoint(c.Context, push.Endpoint{
						OwnerID: owner(c, inj),
						Kind:    push.Kind(c.String("kind")),
						Address: c.String("address"),
						Secret:  c.String("secret"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "remove",
				Usage:     "Unregister an endpoint",
				ArgsUsage: "<address>",
				Flags:     []cli.Flag{ownerFlag()},
				Action: func(c *cli.Context) error {
					svc, err := do.Invoke[*ops.Service](inj)
					if err != nil {
						return outputError(err)
					}
					address := c.Args().First()
					if err := svc.RemoveEndpoint(c.Context, owner(c, inj), address); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"address": address, "removed": true})
				},
			},
			{
				Name:  "list",
				Usage: "List endpoints",
				Flags: []cli.Flag{ownerFlag()},
				Action: func(c *cli.Context) error {
					svc, err := do.Invoke[*ops.Service](inj)
					if err != nil {
						return outputError(err)
					}
					output, err := svc.ListEndpoints(c.Context, owner(c, inj))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"items": output})
				},
			},
		},
	}
}

// tokenCmd creates the token command.
func tokenCmd(inj do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a bearer token for the HTTP API",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.DurationFlag{Name: "ttl", Value: defaultTokenTTL, Usage: "Token lifetime"},
		},
		Action: func(c *cli.Context) error {
			cfg := do.MustInvoke[*config.Config](inj)
			if cfg.JWTSecret == "" {
				return outputError(errors.NewInvalidRequest("jwt_secret is not configured"))
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				return outputError(errors.NewInvalidRequest("--ttl must be positive"))
			}
			ownerID := strings.TrimSpace(owner(c, inj))
			if ownerID == "" {
				return outputError(errors.NewInvalidRequest("owner is required"))
			}

			tok, err := web.NewAuthenticator(cfg.JWTSecret).SignToken(ownerID, ttl)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"token":      tok,
				"owner_id":   ownerID,
				"expires_in": int64(ttl.Seconds()),
			})
		},
	}
}

// versionCmd creates the version command.
func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(_ *cli.Context) error {
			return outputJSON(map[string]string{"version": Version})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if auraErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", auraErr.Code, auraErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseTriggers splits a comma-separated string into trigger labels.
func parseTriggers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	triggers := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			triggers = append(triggers, t)
		}
	}
	return triggers
}
