package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/paperllm/internal/pipeline"
	"github.com/kalambet/paperllm/internal/storage"
)

// Previewer runs one document through the pipeline without writing to it.
type Previewer interface {
	Preview(ctx context.Context, id int) pipeline.Outcome
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Previewer Previewer // optional; if nil, preview_document returns an error
	Version   string
}

// NewMCPServer creates an MCP server exposing the run journal and a dry-run
// preview of single documents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"paperllm",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("paperllm: titles and amounts suggested by a local model for paperless-ngx documents, with a journal of every run."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List recent processing runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
		),
		mcpListRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Get one run with the outcome of every document, including previous titles."),
			mcp.WithString("run_id", mcp.Description("Run id as returned by list_runs"), mcp.Required()),
		),
		mcpGetRun(deps),
	)

	s.AddTool(
		mcp.NewTool("document_history",
			mcp.WithDescription("List every journaled outcome of a paperless document, newest first."),
			mcp.WithNumber("doc_id", mcp.Description("paperless document id"), mcp.Required()),
		),
		mcpDocumentHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("preview_document",
			mcp.WithDescription("Run one document through the model and return the patch that would be applied. Nothing is written."),
			mcp.WithNumber("doc_id", mcp.Description("paperless document id"), mcp.Required()),
		),
		mcpPreviewDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 processing runs"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListRuns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		runs, err := deps.Store.ListRuns(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list runs: %v", err)), nil
		}
		return mcpJSON(runViews(runs))
	}
}

func mcpGetRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		detail, err := runDetail(deps.Store, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("run %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get run: %v", err)), nil
		}
		return mcpJSON(detail)
	}
}

func mcpDocumentHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("doc_id", 0)
		if id <= 0 {
			return mcpError("doc_id is required"), nil
		}

		hist, err := deps.Store.DocumentHistory(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get history: %v", err)), nil
		}
		return mcpJSON(outcomeViews(hist))
	}
}

type previewResult struct {
	DocID     int             `json:"doc_id"`
	Stage     string          `json:"stage"`
	Error     string          `json:"error,omitempty"`
	OldTitle  string          `json:"old_title"`
	NewTitle  string          `json:"new_title,omitempty"`
	Reply     string          `json:"reply,omitempty"`
	Patch     json.RawMessage `json:"patch,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

func mcpPreviewDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Previewer == nil {
			return mcpError("preview not available: services not configured"), nil
		}
		id := req.GetInt("doc_id", 0)
		if id <= 0 {
			return mcpError("doc_id is required"), nil
		}

		out := deps.Previewer.Preview(ctx, id)
		e := pipeline.JournalEntry("", out)
		res := previewResult{
			DocID:     out.DocID,
			Stage:     e.Stage,
			Error:     e.Error,
			OldTitle:  out.OldTitle,
			NewTitle:  out.NewTitle,
			Reply:     out.Raw,
			Truncated: out.Truncated,
		}
		if e.PatchJSON != "" {
			res.Patch = json.RawMessage(e.PatchJSON)
		}

		result, err := mcpJSON(res)
		if err == nil && out.Err != nil {
			result.IsError = true
		}
		return result, err
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.ListRuns(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		b, err := json.Marshal(runViews(runs))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
