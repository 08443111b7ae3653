package mcpserver

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"docmodel/internal/service"
)

// Server is the MCP server for docmodel. It exposes tools, resources, and
// prompts so AI agents can preview documents, save model jobs and run them.
type Server struct {
	mcp      *server.MCPServer
	approval *ApprovalQueue
	log      *zap.Logger

	// Services (injected from app layer)
	models      *service.ModelService
	connections *service.ConnectionService
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Models      *service.ModelService
	Connections *service.ConnectionService
	// Approval gates destructive tools; nil approves everything.
	Approval *ApprovalQueue
	Log      *zap.Logger
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		approval:    deps.Approval,
		log:         log.Named("mcp"),
		models:      deps.Models,
		connections: deps.Connections,
	}

	s.mcp = server.NewMCPServer(
		"docmodel-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerModelTools()
	if s.connections != nil {
		s.registerDatabaseTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer exposes the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves on stdin/stdout until ctx is cancelled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info("starting stdio server")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}
