package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const processesURI = "proctrace://processes"

// Processes is the read side of the process registry.
type Processes interface {
	Names() []string
	List() []*domain.Process
	GetProcess(ctx context.Context, processName string) (*domain.Process, bool)
}

// ProcessSummary is the compact form returned by list_processes.
type ProcessSummary struct {
	Name      string        `json:"name" jsonschema_description:"Process name, <type>/<id>"`
	Key       string        `json:"key" jsonschema_description:"Unique process key"`
	Type      string        `json:"type" jsonschema_description:"Process type"`
	Title     string        `json:"title"`
	Status    domain.Status `json:"status" jsonschema_description:"INITIALIZING, RUNNING, FINISHED or FAILED"`
	StartTime time.Time     `json:"startTime"`
	Steps     int           `json:"steps" jsonschema_description:"Number of steps in the tree"`
}

// ListResponse is the structured result of list_processes.
type ListResponse struct {
	Processes []ProcessSummary `json:"processes"`
}

// Server exposes the process registry as an MCP server.
type Server struct {
	processes Processes
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(processes Processes, version string, opts ...Option) *Server {
	s := &Server{
		processes: processes,
		mcpServer: server.NewMCPServer("proctrace-mcp", version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
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
	// TOOL: list_processes
	listTool := mcp.NewTool("list_processes",
		mcp.WithDescription("List the processes currently in flight, oldest first."),
		mcp.WithOutputSchema[ListResponse](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleListProcesses))

	// TOOL: get_process
	s.mcpServer.AddTool(mcp.NewTool("get_process",
		mcp.WithDescription("Get the full step tree and log of a process, live or from its last snapshot."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Process name, e.g. SUBMIT/42")),
	), s.handleGetProcess)
}

func (s *Server) handleListProcesses(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ListResponse, error) {
	names := s.processes.Names()
	resp := ListResponse{Processes: make([]ProcessSummary, 0, len(names))}
	for _, name := range names {
		// A process finishing after Names was read resolves to its snapshot.
		p, ok := s.processes.GetProcess(ctx, name)
		if !ok || p.Status.IsTerminal() {
			continue
		}
		resp.Processes = append(resp.Processes, summarize(name, p))
	}
	sort.SliceStable(resp.Processes, func(i, j int) bool {
		return resp.Processes[i].StartTime.Before(resp.Processes[j].StartTime)
	})
	return resp, nil
}

func (s *Server) handleGetProcess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	process, ok := s.processes.GetProcess(ctx, name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%v: %s", domain.ErrProcessNotFound, name)), nil
	}
	jsonBytes, err := json.Marshal(process)
	if err != nil {
		s.logger.Error("MCP get_process: encode failed", "process", name, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: proctrace://processes
	s.mcpServer.AddResource(mcp.NewResource(processesURI, "Processes in flight",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.processes.List())
		if err != nil {
			return nil, fmt.Errorf("failed to encode processes: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      processesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func summarize(name string, p *domain.Process) ProcessSummary {
	steps := 0
	domain.Walk(p.Children, func(*domain.Step, int) bool {
		steps++
		return true
	})
	return ProcessSummary{
		Name:      name,
		Key:       p.Key,
		Type:      string(p.Type),
		Title:     p.Title,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     steps,
	}
}
