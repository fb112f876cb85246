package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RunResponse is returned by every tool that touches a run.
type RunResponse struct {
	SessionID string                `json:"session_id" jsonschema_description:"The session the run belongs to"`
	Execution domain.ExecutionState `json:"execution" jsonschema_description:"The execution state after the call"`
	Prompt    *runner.Prompt        `json:"prompt,omitempty" jsonschema_description:"What the current node says to the user"`
	Finished  bool                  `json:"finished" jsonschema_description:"True once the run reached an End node or halted"`
}

// SessionArgs selects a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// CreateArgs are the arguments of create_session.
type CreateArgs struct {
	SessionID string `json:"session_id"`
	Flow      string `json:"flow"`
}

// ValidateArgs are the arguments of validate_flow. Flow, when set, is
// validated instead of the session's flow.
type ValidateArgs struct {
	SessionID string `json:"session_id"`
	Flow      string `json:"flow"`
}

// MessageArgs are the arguments of send_message.
type MessageArgs struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Server exposes a session.Manager as an MCP server so agents can edit and
// simulate flows.
type Server struct {
	sessions  *session.Manager
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("chatflow-mcp", strings.TrimSpace(chatflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on the given port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionID := mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier"))

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a session. Without a flow it holds the default Start, SubFlow and CTA nodes."),
		mcp.WithString("session_id", mcp.Description("Session identifier (generated when empty)")),
		mcp.WithString("flow", mcp.Description("Serialized flow JSON ({nodes, edges, version})")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Check a flow for structural problems."),
		mcp.WithString("session_id", mcp.Description("Session whose flow is validated")),
		mcp.WithString("flow", mcp.Description("Serialized flow JSON to validate instead of a session")),
		mcp.WithOutputSchema[chatflow.ValidationResult](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("start_run",
		mcp.WithDescription("Start a simulated conversation at the Start node."),
		sessionID,
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartRun))

	s.mcpServer.AddTool(mcp.NewTool("step_run",
		mcp.WithDescription("Advance the run by one node."),
		sessionID,
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleStepRun))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Answer the current node as the user and advance the run."),
		sessionID,
		mcp.WithString("text", mcp.Required(), mcp.Description("User message")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Read the execution state of a session."),
		sessionID,
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("export_flow",
		mcp.WithDescription("Export the flow of a session as JSON."),
		sessionID,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SessionArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		data, err := s.exportFlow(ctx, args.SessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) exportFlow(ctx context.Context, sessionID string) ([]byte, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	return domain.EncodeGraph(sess.Graph)
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args CreateArgs) (RunResponse, error) {
	var g *domain.Graph
	if args.Flow != "" {
		var err error
		if g, err = domain.DecodeGraph([]byte(args.Flow)); err != nil {
			return RunResponse{}, err
		}
	}
	sess, err := s.sessions.Create(ctx, args.SessionID, g)
	if err != nil {
		return RunResponse{}, fmt.Errorf("create failed: %w", err)
	}
	return respond(sess), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args ValidateArgs) (chatflow.ValidationResult, error) {
	if args.Flow != "" {
		return chatflow.Validate([]byte(args.Flow))
	}
	if args.SessionID == "" {
		return chatflow.ValidationResult{}, errors.New("either session_id or flow is required")
	}
	f, err := s.sessions.Flow(ctx, args.SessionID)
	if err != nil {
		return chatflow.ValidationResult{}, fmt.Errorf("validate failed: %w", err)
	}
	return f.Validate(), nil
}

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (RunResponse, error) {
	return s.update(ctx, args.SessionID, func(ctx context.Context, f *flow.Flow) {
		f.Start(ctx)
	})
}

func (s *Server) handleStepRun(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (RunResponse, error) {
	return s.update(ctx, args.SessionID, func(ctx context.Context, f *flow.Flow) {
		f.Step(ctx)
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args MessageArgs) (RunResponse, error) {
	clean, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("MCP send_message: input rejected", "err", err, "size", len(args.Text))
		return RunResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	return s.update(ctx, args.SessionID, func(ctx context.Context, f *flow.Flow) {
		f.SendMessage(ctx, clean)
	})
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (RunResponse, error) {
	sess, err := s.sessions.Load(ctx, args.SessionID)
	if err != nil {
		return RunResponse{}, err
	}
	return respond(sess), nil
}

func (s *Server) update(ctx context.Context, sessionID string, op func(context.Context, *flow.Flow)) (RunResponse, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(ctx context.Context, f *flow.Flow) error {
		op(ctx, f)
		return nil
	})
	if err != nil {
		return RunResponse{}, err
	}
	return respond(sess), nil
}

// respond describes the node the run is positioned on.
func respond(sess *domain.Session) RunResponse {
	resp := RunResponse{
		SessionID: sess.ID,
		Execution: sess.Execution,
		Finished:  sess.Execution.Finished(),
	}
	if n, ok := sess.Graph.Node(sess.Execution.CurrentNodeID); ok {
		p := runner.Describe(n)
		resp.Prompt = &p
	}
	return resp
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("chatflow://sessions", "Stored sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		data, _ := json.Marshal(ids)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "chatflow://sessions",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
