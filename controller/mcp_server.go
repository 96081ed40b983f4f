package controller

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/itish2003/ragkb/services"
)

// MCPTools exposes retrieval and answering to MCP clients.
type MCPTools struct {
	ragService services.RAGService
}

func NewMCPTools(service services.RAGService) *MCPTools {
	return &MCPTools{ragService: service}
}

// NewMCPServer registers the knowledge base tools on a fresh MCP server.
func NewMCPServer(tools *MCPTools, version string) *server.MCPServer {
	search := mcp.NewTool("search_knowledge_base",
		mcp.WithDescription("Search the ingested documents and return the most similar passages as JSON lines"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to return"),
		),
	)
	ask := mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the ingested documents"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question"),
		),
		mcp.WithBoolean("short",
			mcp.Description("Keep the answer to one short paragraph"),
		),
	)

	srv := server.NewMCPServer("ragkb", version, server.WithToolCapabilities(false))
	srv.AddTool(search, tools.Search)
	srv.AddTool(ask, tools.Ask)
	return srv
}

func (t *MCPTools) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	passages, err := t.ragService.Search(ctx, q, request.GetInt("k", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	for _, p := range passages {
		raw, err := json.Marshal(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sb.Write(raw)
		sb.WriteByte('\n')
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *MCPTools) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := services.ModeFull
	if request.GetBool("short", false) {
		mode = services.ModeShort
	}
	answer, err := t.ragService.Answer(ctx, q, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var sb strings.Builder
	for fragment := range answer {
		sb.WriteString(fragment)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
