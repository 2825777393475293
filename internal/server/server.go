// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/HendryAvila/substrate/internal/config"
	"github.com/HendryAvila/substrate/internal/execution"
	"github.com/HendryAvila/substrate/internal/logging"
	"github.com/HendryAvila/substrate/internal/navigation"
	"github.com/HendryAvila/substrate/internal/prompts"
	"github.com/HendryAvila/substrate/internal/refs"
	"github.com/HendryAvila/substrate/internal/resources"
	"github.com/HendryAvila/substrate/internal/sessions"
	"github.com/HendryAvila/substrate/internal/tools"
	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// tool is what every handler struct in internal/tools provides.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// ctx bounds the workflow directory watcher when cfg.WatchWorkflows is set.
// The returned cleanup function closes the session store and must be
// called on shutdown. It is always non-nil.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	store := refs.NewFileStore(cfg.RefsDir)

	reg, rejected, err := workflow.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		return nil, noop, fmt.Errorf("loading workflows: %w", err)
	}
	for _, e := range rejected {
		log.Warn("rejected workflow definition: %v", e)
	}
	log.Info("loaded %d workflows", reg.Len())

	catalog := workflow.NewHolder(reg)
	if cfg.WatchWorkflows {
		if err := workflow.Watch(ctx, cfg.WorkflowsDir, catalog, log); err != nil {
			log.Warn("workflow hot reload disabled: %v", err)
		}
	}

	matcher := workflow.NewConditionMatcher()
	engine := navigation.NewEngine(catalog, matcher)
	if err := tools.RegisterFollowUps(engine); err != nil {
		return nil, noop, fmt.Errorf("registering follow-ups: %w", err)
	}
	tracker := execution.NewTracker(catalog, matcher)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		cfg.ServerName,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register reference tools ---
	//
	// Responses end with next-step suggestions from the engine.

	for _, t := range []tool{
		tools.NewCreateRefTool(store),
		tools.NewReadRefTool(store),
		tools.NewUpdateRefTool(store),
		tools.NewDeleteRefTool(store),
		tools.NewListRefsTool(store),
		tools.NewExecuteTool(store),
		tools.NewShowWorkflowsTool(catalog),
		tools.NewWorkflowGuideTool(catalog),
	} {
		def := t.Definition()
		s.AddTool(def, server.ToolHandlerFunc(tools.Annotated(engine, def.Name, t.Handle)))
	}

	suggestTool := tools.NewSuggestNextTool(engine)

	// --- Register run tools ---
	//
	// Runs need the session store. If it fails to open, the rest of the
	// server still works; run tools are skipped.

	cleanup := noop
	sessCfg := sessions.DefaultConfig()
	if cfg.SessionDB != "" {
		sessCfg.Path = cfg.SessionDB
	}
	runs, runErr := sessions.New(sessCfg)
	if runErr != nil {
		log.Warn("workflow runs disabled: %v", runErr)
	} else {
		cleanup = func() {
			if err := runs.Close(); err != nil {
				log.Warn("session store close: %v", err)
			}
		}

		beginTool := tools.NewBeginTool(tracker, engine, runs)
		s.AddTool(beginTool.Definition(), beginTool.Handle)

		completeTool := tools.NewCompleteStepTool(tracker, engine, runs)
		s.AddTool(completeTool.Definition(), completeTool.Handle)

		statusTool := tools.NewStatusTool(engine, runs)
		s.AddTool(statusTool.Definition(), statusTool.Handle)

		suggestTool.WithRunHints()
	}
	s.AddTool(suggestTool.Definition(), suggestTool.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(catalog, store)
	s.AddResource(resourceHandler.WorkflowsResource(), resourceHandler.HandleWorkflows)
	s.AddResource(resourceHandler.RefsResource(), resourceHandler.HandleRefs)

	return s, cleanup, nil
}

// noop is the default cleanup when the session store is unavailable.
func noop() {}

// serverInstructions tells the AI how to use the server.
func serverInstructions() string {
	return `You have access to Substrate, a reference store and workflow navigator.

## References

References are named pieces of reusable text ("personas/hemingway",
"templates/blog_post"). Content may contain {{placeholders}}.
- create_ref / update_ref / delete_ref / list_refs manage them
- read_ref fills placeholders from 'variables' and lists the ones left open
- execute composes input (ref > refs > prompt_ref > prompt), applies a
  template and can save the result with 'save_as'

## Workflows

Workflows are graphs of tool calls. Discover them with show_workflows and
inspect one with workflow_guide.

To follow a workflow explicitly:
1. workflow_begin returns a context_id and the first tool to call
2. call that tool
3. report it with workflow_complete_step (outputs, and a signal for branches)
4. repeat until the run is completed

Without a run, call suggest_next after any tool to see where workflows go
from there. Most responses already end with "Suggested next steps".
Suggested params are pre-filled from what is known; "still needed" lists
the ones you must supply.`
}
