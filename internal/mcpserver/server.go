// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes link page tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/linkservice"
	"github.com/starford/linkpage/internal/models"
)

const contractURI = "linkpage://link-attributes"

// Server wraps the MCP server with link tools. Every call acts as a single
// fixed actor.
type Server struct {
	mcp   *server.MCPServer
	svc   *linkservice.Service
	actor models.Actor
}

// New creates a new MCP server with all link tools registered.
func New(svc *linkservice.Service, actor models.Actor) *Server {
	s := &Server{svc: svc, actor: actor}

	s.mcp = server.NewMCPServer(
		"Linkpage",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List all of your links in display order."),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("create_link",
		mcp.WithDescription("Append a new link to the end of your page. "+
			"Attributes MUST follow the link attributes contract; read it via the "+
			contractURI+" resource."),
		mcp.WithObject("attributes", mcp.Required(), mcp.Description("Link attributes, a JSON object")),
	), s.createLink)

	s.mcp.AddTool(mcp.NewTool("update_link",
		mcp.WithDescription("Replace the attributes of one of your links. Its position is unchanged."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Link id")),
		mcp.WithObject("attributes", mcp.Required(), mcp.Description("New link attributes, a JSON object")),
	), s.updateLink)

	s.mcp.AddTool(mcp.NewTool("delete_link",
		mcp.WithDescription("Delete one of your links. Later links move up one position."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Link id")),
	), s.deleteLink)

	s.mcp.AddTool(mcp.NewTool("reorder_links",
		mcp.WithDescription("Set the display order of your links. "+
			"The list must name every one of your links exactly once; the first id gets position 1."),
		mcp.WithArray("ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("All link ids in the new order")),
	), s.reorderLinks)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Link Attributes Contract",
			mcp.WithResourceDescription("Conventions for the attributes object of a link."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links, err := s.svc.List(ctx, s.actor)
	if err != nil {
		return toolError(err), nil
	}
	if links == nil {
		links = []models.Link{}
	}
	return jsonResult(links)
}

func (s *Server) createLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.Create(ctx, s.actor, attrs)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(l)
}

func (s *Server) updateLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := attributesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.UpdateAttributes(ctx, s.actor, id, attrs, "")
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(l)
}

func (s *Server) deleteLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, s.actor, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) reorderLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := req.RequireStringSlice("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Reorder(ctx, s.actor, ids)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(links)
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     AttributesContract,
		},
	}, nil
}

func attributesArg(req mcp.CallToolRequest) (json.RawMessage, error) {
	v, ok := req.GetArguments()["attributes"]
	if !ok || v == nil {
		return nil, errors.New(`required argument "attributes" not found`)
	}
	// Some clients send the object as a JSON string.
	if s, ok := v.(string); ok {
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	return data, nil
}

// toolError turns expected service failures into tool-level errors the
// model can read. Storage failures keep their detail out of the reply.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrStorage):
		return mcp.NewToolResultError("internal error")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
