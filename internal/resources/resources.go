// Package resources implements read-only MCP resources: the workflow
// catalog and the reference index.
//
// Resources use URI-based addressing (substrate://...) following MCP
// conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/substrate/internal/refs"
	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// WorkflowsURI addresses the workflow catalog.
	WorkflowsURI = "substrate://workflows"
	// RefsURI addresses the reference index.
	RefsURI = "substrate://refs"
)

// Handler serves resource reads.
type Handler struct {
	catalog workflow.Catalog
	store   refs.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(catalog workflow.Catalog, store refs.Store) *Handler {
	return &Handler{catalog: catalog, store: store}
}

// WorkflowsResource returns the MCP resource definition for the catalog.
func (h *Handler) WorkflowsResource() mcp.Resource {
	return mcp.NewResource(
		WorkflowsURI,
		"Workflow Catalog",
		mcp.WithResourceDescription("Loaded workflows with their categories, step counts and tools"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleWorkflows returns the workflow catalog as JSON.
func (h *Handler) HandleWorkflows(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, map[string]any{
		"workflows": h.catalog.List(""),
	})
}

// RefsResource returns the MCP resource definition for the reference index.
func (h *Handler) RefsResource() mcp.Resource {
	return mcp.NewResource(
		RefsURI,
		"Reference Index",
		mcp.WithResourceDescription("Names, sizes and formats of all stored references"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRefs returns the reference index as JSON.
func (h *Handler) HandleRefs(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.store.List("")
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, map[string]any{
		"references": list,
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
