// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive the neuron demo: stimulate inputs, click the canvas, and read
// the model state.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/ratelimit"
)

// defaultFrameTimeout bounds how long a tool waits for the loop to apply input.
const defaultFrameTimeout = 2 * time.Second

// Server wraps the MCP SDK server and exposes the render loop as tools.
type Server struct {
	server       *sdk.Server
	loop         *loop.Loop
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
	frameTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "neurodemo")
	Version string // Server version

	// Loop is the running render loop the tools feed.
	Loop *loop.Loop

	// AuditDir holds audit.jsonl. Empty disables auditing.
	AuditDir string

	// Logger receives operational logs. It must not write to stdout, which
	// carries the protocol. Nil discards them.
	Logger *slog.Logger
}

// NewServer creates a new MCP server with the neuron tools registered.
func NewServer(cfg *Config) (*Server, error) {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			// Client initialized, ready to serve
		},
	})

	s := &Server{
		server:       mcpServer,
		loop:         cfg.Loop,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       cfg.Logger,
		frameTimeout: defaultFrameTimeout,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server running on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases resources.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
