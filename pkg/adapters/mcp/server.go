package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SurveyURI is the resource holding the survey definition.
const SurveyURI = "keystone://survey"

// ReportArgs is the input of generate_report.
type ReportArgs struct {
	Responses map[string]string `json:"responses"`
}

// ReportResponse aligns with the HTTP report preview.
type ReportResponse struct {
	Report   report.Report `json:"report" jsonschema_description:"Narratives and benchmarks derived from the responses"`
	Markdown string        `json:"markdown" jsonschema_description:"The Best Next Steps report rendered as markdown"`
}

// Engine defines what the MCP server needs from Keystone.
type Engine interface {
	Definition() *survey.Definition
	Report(responses domain.Responses) report.Report
}

// Server wraps the Keystone Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		mcpServer: server.NewMCPServer("keystone-mcp", strings.TrimSpace(keystone.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: generate_report
	reportTool := mcp.NewTool("generate_report",
		mcp.WithDescription("Generate the Best Next Steps valuation report from survey responses. Missing answers fall back to general guidance."),
		mcp.WithObject("responses",
			mcp.Required(),
			mcp.Description(`Map of question ID to the selected option, e.g. {"revenue": "$1M-$5M"}. Use "skipped" for skipped questions.`),
		),
		mcp.WithOutputSchema[ReportResponse](),
	)
	s.mcpServer.AddTool(reportTool, mcp.NewStructuredToolHandler(s.handleGenerateReport))

	// TOOL: get_survey
	s.mcpServer.AddTool(mcp.NewTool("get_survey",
		mcp.WithDescription("Get the survey definition: steps, question IDs and their options."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(s.engine.Definition())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode survey failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleGenerateReport(ctx context.Context, request mcp.CallToolRequest, args ReportArgs) (ReportResponse, error) {
	responses := domain.Responses(args.Responses)
	if responses == nil {
		responses = domain.Responses{}
	}
	rep := s.engine.Report(responses)
	s.logger.DebugContext(ctx, "MCP generate_report", "answers", len(responses))
	return ReportResponse{Report: rep, Markdown: report.Markdown(rep)}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: keystone://survey
	s.mcpServer.AddResource(mcp.NewResource(SurveyURI, "Survey Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.engine.Definition())
		if err != nil {
			return nil, fmt.Errorf("failed to encode survey: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SurveyURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
