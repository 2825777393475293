package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/substrate/internal/refs"
	"github.com/HendryAvila/substrate/internal/templates"
	"github.com/HendryAvila/substrate/internal/value"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- create_ref ---

// CreateRefTool handles the create_ref MCP tool.
type CreateRefTool struct {
	store refs.Store
}

// NewCreateRefTool creates a CreateRefTool with the given reference store.
func NewCreateRefTool(store refs.Store) *CreateRefTool {
	return &CreateRefTool{store: store}
}

// Definition returns the MCP tool definition for create_ref.
func (t *CreateRefTool) Definition() mcp.Tool {
	return mcp.NewTool("create_ref",
		mcp.WithDescription(
			"Save reusable text as a named reference. Content may contain {{placeholders}} "+
				"that are filled in when the reference is read or executed. "+
				"An existing reference with the same name is replaced.",
		),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Hierarchical reference name, e.g. 'personas/hemingway' or 'templates/blog_post'"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Reference text. Use {{name}} for placeholders."),
		),
		mcp.WithObject("metadata",
			mcp.Description("Optional free-form metadata (JSON object)"),
		),
	)
}

// Handle processes the create_ref tool call.
func (t *CreateRefTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return putRef(t.store, req, false)
}

// --- update_ref ---

// UpdateRefTool handles the update_ref MCP tool. Unlike create_ref it
// refuses to create a reference that does not exist yet.
type UpdateRefTool struct {
	store refs.Store
}

// NewUpdateRefTool creates an UpdateRefTool with the given reference store.
func NewUpdateRefTool(store refs.Store) *UpdateRefTool {
	return &UpdateRefTool{store: store}
}

// Definition returns the MCP tool definition for update_ref.
func (t *UpdateRefTool) Definition() mcp.Tool {
	return mcp.NewTool("update_ref",
		mcp.WithDescription("Replace the content and metadata of an existing reference."),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Name of the reference to update"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New reference text"),
		),
		mcp.WithObject("metadata",
			mcp.Description("New metadata (JSON object). Omit to clear."),
		),
	)
}

// Handle processes the update_ref tool call.
func (t *UpdateRefTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return putRef(t.store, req, true)
}

func putRef(store refs.Store, req mcp.CallToolRequest, mustExist bool) (*mcp.CallToolResult, error) {
	name := req.GetString("ref", "")
	content := req.GetString("content", "")
	if name == "" {
		return mcp.NewToolResultError("'ref' is required"), nil
	}
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	if err := refs.ValidateName(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := objectArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta, err := value.MapFromAny(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", err)), nil
	}

	if mustExist {
		if _, err := store.Get(name); err != nil {
			if errors.Is(err, refs.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("reference %q does not exist; use create_ref", name)), nil
			}
			return nil, fmt.Errorf("checking reference %q: %w", name, err)
		}
	}

	ref, err := store.Put(name, content, meta)
	if err != nil {
		return nil, fmt.Errorf("saving reference %q: %w", name, err)
	}

	verb := "Created"
	if mustExist {
		verb = "Updated"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s reference **%s** (%d chars).\n", verb, ref.Name, len(ref.Content))
	if ph := templates.Placeholders(ref.Content); len(ph) > 0 {
		fmt.Fprintf(&sb, "\nPlaceholders: %s\n", strings.Join(ph, ", "))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- read_ref ---

// ReadRefTool handles the read_ref MCP tool.
type ReadRefTool struct {
	store refs.Store
}

// NewReadRefTool creates a ReadRefTool with the given reference store.
func NewReadRefTool(store refs.Store) *ReadRefTool {
	return &ReadRefTool{store: store}
}

// Definition returns the MCP tool definition for read_ref.
func (t *ReadRefTool) Definition() mcp.Tool {
	return mcp.NewTool("read_ref",
		mcp.WithDescription(
			"Read a reference. When variables are given, {{placeholders}} are filled in; "+
				"placeholders without a value are left as they are and listed.",
		),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Name of the reference to read"),
		),
		mcp.WithObject("variables",
			mcp.Description("Values for placeholders (JSON object)"),
		),
	)
}

// Handle processes the read_ref tool call.
func (t *ReadRefTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("ref", "")
	if name == "" {
		return mcp.NewToolResultError("'ref' is required"), nil
	}
	vars, err := objectArg(req, "variables")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ref, err := t.store.Get(name)
	if err != nil {
		if errors.Is(err, refs.ErrNotFound) || errors.Is(err, refs.ErrInvalidName) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("reading reference %q: %w", name, err)
	}

	content := templates.Resolve(ref.Content, vars)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", ref.Name)
	sb.WriteString(content)
	sb.WriteString("\n")
	if len(ref.Metadata) > 0 {
		fmt.Fprintf(&sb, "\n## Metadata\n```json\n%s\n```\n", toJSON(ref.Metadata))
	}
	if ref.FormatVersion == refs.LegacyFormat {
		sb.WriteString("\n_Stored in the legacy format; saving it again upgrades it._\n")
	}
	if ph := templates.Placeholders(content); len(ph) > 0 {
		fmt.Fprintf(&sb, "\nUnresolved placeholders: %s\n", strings.Join(ph, ", "))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- delete_ref ---

// DeleteRefTool handles the delete_ref MCP tool.
type DeleteRefTool struct {
	store refs.Store
}

// NewDeleteRefTool creates a DeleteRefTool with the given reference store.
func NewDeleteRefTool(store refs.Store) *DeleteRefTool {
	return &DeleteRefTool{store: store}
}

// Definition returns the MCP tool definition for delete_ref.
func (t *DeleteRefTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_ref",
		mcp.WithDescription("Delete a reference permanently."),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Name of the reference to delete"),
		),
	)
}

// Handle processes the delete_ref tool call.
func (t *DeleteRefTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("ref", "")
	if name == "" {
		return mcp.NewToolResultError("'ref' is required"), nil
	}
	if err := t.store.Delete(name); err != nil {
		if errors.Is(err, refs.ErrNotFound) || errors.Is(err, refs.ErrInvalidName) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("deleting reference %q: %w", name, err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted reference **%s**.", name)), nil
}

// --- list_refs ---

// ListRefsTool handles the list_refs MCP tool.
type ListRefsTool struct {
	store refs.Store
}

// NewListRefsTool creates a ListRefsTool with the given reference store.
func NewListRefsTool(store refs.Store) *ListRefsTool {
	return &ListRefsTool{store: store}
}

// Definition returns the MCP tool definition for list_refs.
func (t *ListRefsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_refs",
		mcp.WithDescription("List stored references, optionally only those under a name prefix."),
		mcp.WithString("prefix",
			mcp.Description("Name prefix filter, e.g. 'personas/'"),
		),
	)
}

// Handle processes the list_refs tool call.
func (t *ListRefsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := req.GetString("prefix", "")
	list, err := t.store.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	if len(list) == 0 {
		if prefix != "" {
			return mcp.NewToolResultText(fmt.Sprintf("No references under %q.", prefix)), nil
		}
		return mcp.NewToolResultText("No references stored yet. Use create_ref to add one."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## References (%d)\n\n", len(list))
	for _, s := range list {
		fmt.Fprintf(&sb, "- **%s** (%d bytes", s.Name, s.Size)
		if s.FormatVersion == refs.LegacyFormat {
			sb.WriteString(", legacy")
		}
		sb.WriteString(")\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
