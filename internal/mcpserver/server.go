// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Laguz document tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/syncer"
)

// Server wraps the MCP server with Laguz tools.
type Server struct {
	mcp  *server.MCPServer
	sync *syncer.Synchronizer
}

// New creates a new MCP server with all Laguz tools registered.
func New(sy *syncer.Synchronizer) *Server {
	s := &Server{sync: sy}

	s.mcp = server.NewMCPServer(
		"Laguz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all documents with their keys, titles, and modification times, most recent first."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full contents of a document."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Document key (e.g. Shopping list.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Create or update a document. The key is derived from the title; "+
			"saving an existing key with a new title renames the document."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Document title")),
		mcp.WithString("contents", mcp.Required(), mcp.Description("Full document contents")),
		mcp.WithString("key", mcp.Description("Existing key when updating; empty to create")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("Delete a document from the remote store and the index."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key of the document to delete")),
	), s.deleteDocument)

	s.mcp.AddTool(mcp.NewTool("reload_documents",
		mcp.WithDescription("Re-fetch the full document list from the remote store."),
	), s.reloadDocuments)

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

type docSummary struct {
	Key          string `json:"key"`
	Title        string `json:"title"`
	LastModified int64  `json:"lastModified"`
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs := s.sync.Documents()
	summaries := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, docSummary{Key: d.Key, Title: d.Title, LastModified: d.LastModified})
	}
	out, _ := json.MarshalIndent(summaries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, ok := s.sync.Get(key)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	return mcp.NewToolResultText(doc.Contents), nil
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contents, err := req.RequireString("contents")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc := &models.Document{Title: title, Contents: contents, Format: models.FormatMarkdown}
	if key, kerr := req.RequireString("key"); kerr == nil && key != "" {
		existing, ok := s.sync.Get(key)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
		}
		doc.Key = existing.Key
		doc.Tags = existing.Tags
		doc.Format = existing.Format
	}

	if err := s.sync.Save(ctx, doc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", doc.Key)), nil
}

func (s *Server) deleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := s.sync.Get(key); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	if err := s.sync.Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", key)), nil
}

func (s *Server) reloadDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.sync.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loaded %d documents", len(docs))), nil
}
