// Package service wires the application services into an MCP server.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/attention"
	"github.com/louisbranch/attend/internal/ingestion"
	"github.com/louisbranch/attend/internal/lab"
	"github.com/louisbranch/attend/internal/storage"
	"github.com/louisbranch/attend/internal/task"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Attend MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Deps carries the services the MCP surface translates to.
type Deps struct {
	Tasks     *task.Service
	Attention *attention.Service
	Lab       *lab.Service
	Ingestion *ingestion.Service
	Events    storage.EventStore
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server over the application services.
func New(deps Deps) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	registerTaskTools(mcpServer, deps.Tasks)
	registerAttentionTools(mcpServer, deps.Attention)
	registerLabTools(mcpServer, deps.Lab)
	registerIngestionTools(mcpServer, deps.Ingestion)
	registerResources(mcpServer, deps.Tasks, deps.Events)

	return &Server{mcpServer: mcpServer}
}

// Run creates and serves an MCP server over stdio until the context ends.
func Run(ctx context.Context, deps Deps) error {
	return New(deps).Serve(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
