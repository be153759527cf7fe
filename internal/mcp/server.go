package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/ferrisindex/internal/daemon"
	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

//go:embed instructions.md
var instructions string

const uriScheme = "rustdoc://"

type Server struct {
	mcpServer *server.MCPServer
	backend   daemon.Backend
}

// NewServer exposes backend as MCP tools and a resource template.
func NewServer(backend daemon.Backend) *Server {
	s := &Server{backend: backend}

	mcpServer := server.NewMCPServer(
		"ferrisindex",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("search_symbols",
			mcp.WithDescription("Search loaded rustdoc indexes by name (`HashMap::insert`, `kind:fn parse`) or by type signature (`char -> Token`, `&str, usize -> Option<T>`). Results are ranked; read one with get_symbol."),
			mcp.WithString("query",
				mcp.Description("Name or type-signature query"),
				mcp.Required(),
			),
			mcp.WithArray("crates",
				mcp.Description("Optional list of crate names to search within"),
				mcp.Items(map[string]interface{}{"type": "string"}),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default from config)"),
			),
		),
		s.handleSearchSymbols,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_implementors",
			mcp.WithDescription("List trait implementations for a fully qualified type path, or every implementor of a trait path. Synthetic auto-trait impls that cannot hold are hidden."),
			mcp.WithString("type",
				mcp.Description("Fully qualified type path, e.g. \"wabbit::operators::LoopControl\""),
			),
			mcp.WithString("trait",
				mcp.Description("Fully qualified trait path, e.g. \"core::clone::Clone\""),
			),
		),
		s.handleListImplementors,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_symbol",
			mcp.WithDescription("Read the documentation page of one item by its full path."),
			mcp.WithString("path",
				mcp.Description("Full item path, e.g. \"wabbit::types::WabbitType::from\""),
				mcp.Required(),
			),
			mcp.WithString("crate",
				mcp.Description("Optional crate to look in"),
			),
		),
		s.handleGetSymbol,
	)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			uriScheme+"{crate}/{path}",
			"Rust documentation item",
			mcp.WithTemplateDescription("Read a documented item. Search results carry the crate and path for these URIs."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.handleReadResource,
	)
}

func (s *Server) handleSearchSymbols(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	searchReq := rpc.SearchRequest{Query: query}
	if cratesRaw, ok := args["crates"]; ok {
		cratesJSON, _ := json.Marshal(cratesRaw)
		if err := json.Unmarshal(cratesJSON, &searchReq.Crates); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid crates parameter: %v", err)), nil
		}
	}
	if limit, ok := args["limit"].(float64); ok {
		searchReq.Limit = int(limit)
	}

	resp, err := s.backend.Search(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Results, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleListImplementors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	typePath, _ := args["type"].(string)
	traitPath, _ := args["trait"].(string)
	if typePath == "" && traitPath == "" {
		return mcp.NewToolResultError("need a type or trait parameter"), nil
	}

	resp, err := s.backend.Implementors(ctx, rpc.ImplementorsRequest{Type: typePath, Trait: traitPath})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing implementors failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleGetSymbol(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	crate, _ := args["crate"].(string)

	resp, err := s.backend.Get(ctx, rpc.GetRequest{Crate: crate, Path: path})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	return mcp.NewToolResultText(resp.Markdown), nil
}

// parseURI splits rustdoc://crate/path.
func parseURI(uri string) (crate, path string, err error) {
	trimmed, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	crate, path, ok = strings.Cut(trimmed, "/")
	if !ok || crate == "" || path == "" {
		return "", "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	return crate, path, nil
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	crate, path, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	resp, err := s.backend.Get(ctx, rpc.GetRequest{Crate: crate, Path: path})
	if err != nil {
		return nil, fmt.Errorf("getting doc: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     resp.Markdown,
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
