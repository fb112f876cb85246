package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodySize bounds imported flows and other request bodies.
const maxBodySize = 4 << 20

// Server exposes the sessions of a session.Manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Logger   *slog.Logger
	Metrics  http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.Metrics = h
	}
}

// NewHandler creates the HTTP handler for the session manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return enableCORS(s.routes())
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)

			r.Get("/flow", s.ExportFlow)
			r.Put("/flow", s.ImportFlow)
			r.Get("/validate", s.ValidateFlow)
			r.Post("/validate", s.ValidateFlow)

			r.Post("/nodes", s.AddNode)
			r.Patch("/nodes/{nodeID}", s.UpdateNode)
			r.Delete("/nodes/{nodeID}", s.DeleteNode)
			r.Post("/edges", s.Connect)
			r.Delete("/edges/{edgeID}", s.Disconnect)

			r.Post("/run/{action}", s.Run)
			r.Post("/message", s.SendMessage)
			r.Post("/context", s.UpdateContext)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":            "chatflow-http",
		"version":        strings.TrimSpace(chatflow.Version),
		"format_version": domain.CurrentVersion,
	})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, "ListSessions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSessionRequest is the optional body of POST /sessions. A missing
// flow creates the default one.
type CreateSessionRequest struct {
	ID   string          `json:"id,omitempty"`
	Flow json.RawMessage `json:"flow,omitempty"`
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, "CreateSession", err)
		return
	}

	var g *domain.Graph
	if len(body.Flow) > 0 {
		var err error
		if g, err = domain.DecodeGraph(body.Flow); err != nil {
			s.writeError(w, "CreateSession", err)
			return
		}
	}

	sess, err := s.Sessions.Create(r.Context(), body.ID, g)
	if err != nil {
		s.writeError(w, "CreateSession", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "GetSession", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportFlow handles GET /sessions/{id}/flow.
func (s *Server) ExportFlow(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "ExportFlow", err)
		return
	}
	data, err := domain.EncodeGraph(sess.Graph)
	if err != nil {
		s.writeError(w, "ExportFlow", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="chatbot-flow.json"`)
	w.Write(data)
}

// ImportFlow handles PUT /sessions/{id}/flow. The session is created when it
// does not exist; an existing run is reset.
func (s *Server) ImportFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.badRequest(w, "ImportFlow", err)
		return
	}
	g, err := domain.DecodeGraph(data)
	if err != nil {
		s.writeError(w, "ImportFlow", err)
		return
	}

	id := chi.URLParam(r, "id")
	_, err = s.Sessions.Update(r.Context(), id, func(ctx context.Context, f *flow.Flow) error {
		f.Stop()
		return f.Import(data)
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		_, err = s.Sessions.Create(r.Context(), id, g)
	}
	if err != nil {
		s.writeError(w, "ImportFlow", err)
		return
	}
	s.ValidateFlow(w, r)
}

// ValidateFlow handles GET and POST /sessions/{id}/validate.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.Sessions.Flow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "ValidateFlow", err)
		return
	}
	s.writeJSON(w, http.StatusOK, f.Validate())
}

// AddNodeRequest is the body of POST /sessions/{id}/nodes.
type AddNodeRequest struct {
	Type     domain.NodeKind `json:"type"`
	Position domain.Position `json:"position"`
	Data     map[string]any  `json:"data,omitempty"`
}

// AddNode handles POST /sessions/{id}/nodes.
func (s *Server) AddNode(w http.ResponseWriter, r *http.Request) {
	var body AddNodeRequest
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, "AddNode", err)
		return
	}
	if !body.Type.Valid() {
		s.badRequest(w, "AddNode", fmt.Errorf("unknown node type %q", body.Type))
		return
	}

	var added domain.Node
	_, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		n, err := f.AddNode(body.Type, body.Position)
		if err != nil {
			return err
		}
		if len(body.Data) > 0 {
			if n, err = f.UpdateNodeData(n.ID, body.Data); err != nil {
				return err
			}
		}
		added = n
		return nil
	})
	if err != nil {
		s.writeError(w, "AddNode", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, added)
}

// UpdateNodeRequest is the body of PATCH /sessions/{id}/nodes/{nodeID}.
// Either field may be omitted.
type UpdateNodeRequest struct {
	Position *domain.Position `json:"position,omitempty"`
	Data     map[string]any   `json:"data,omitempty"`
}

// UpdateNode handles PATCH /sessions/{id}/nodes/{nodeID}.
func (s *Server) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var body UpdateNodeRequest
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, "UpdateNode", err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	var updated domain.Node
	_, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		n, ok := f.Node(nodeID)
		if !ok {
			return fmt.Errorf("update %s: %w", nodeID, domain.ErrNodeNotFound)
		}
		var err error
		if len(body.Data) > 0 {
			if n, err = f.UpdateNodeData(nodeID, body.Data); err != nil {
				return err
			}
		}
		if body.Position != nil {
			if n, err = f.MoveNode(nodeID, *body.Position); err != nil {
				return err
			}
		}
		updated = n
		return nil
	})
	if err != nil {
		s.writeError(w, "UpdateNode", err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

// DeleteNode handles DELETE /sessions/{id}/nodes/{nodeID}.
func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	_, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		return f.DeleteNode(nodeID)
	})
	if err != nil {
		s.writeError(w, "DeleteNode", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectRequest is the body of POST /sessions/{id}/edges.
type ConnectRequest struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Connect handles POST /sessions/{id}/edges.
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	var body ConnectRequest
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, "Connect", err)
		return
	}

	var edge domain.Edge
	_, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		e, err := f.Connect(body.Source, body.Target, body.SourceHandle)
		edge = e
		return err
	})
	if err != nil {
		s.writeError(w, "Connect", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, edge)
}

// Disconnect handles DELETE /sessions/{id}/edges/{edgeID}.
func (s *Server) Disconnect(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	_, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		return f.Disconnect(edgeID)
	})
	if err != nil {
		s.writeError(w, "Disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run handles POST /sessions/{id}/run/{action} with action one of start,
// pause, resume, stop and step. It responds with the execution state.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	var op func(context.Context, *flow.Flow)
	switch action {
	case "start":
		op = func(ctx context.Context, f *flow.Flow) { f.Start(ctx) }
	case "step":
		op = func(ctx context.Context, f *flow.Flow) { f.Step(ctx) }
	case "pause":
		op = func(_ context.Context, f *flow.Flow) { f.Pause() }
	case "resume":
		op = func(_ context.Context, f *flow.Flow) { f.Resume() }
	case "stop":
		op = func(_ context.Context, f *flow.Flow) { f.Stop() }
	default:
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("unknown run action %q", action)})
		return
	}

	sess, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		op(ctx, f)
		return nil
	})
	if err != nil {
		s.writeError(w, "Run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Execution)
}

// MessageRequest is the body of POST /sessions/{id}/message.
type MessageRequest struct {
	Text string `json:"text"`
}

// SendMessage handles POST /sessions/{id}/message. The text is sanitized
// before it reaches the run context.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, "SendMessage", err)
		return
	}
	text, err := runner.SanitizeInput(body.Text)
	if err != nil {
		s.Logger.Warn("SendMessage: input rejected", "err", err, "size", len(body.Text))
		s.badRequest(w, "SendMessage", err)
		return
	}

	sess, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		f.SendMessage(ctx, text)
		return nil
	})
	if err != nil {
		s.writeError(w, "SendMessage", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Execution)
}

// UpdateContext handles POST /sessions/{id}/context with a partial context.
func (s *Server) UpdateContext(w http.ResponseWriter, r *http.Request) {
	var body domain.ContextUpdate
	if err := decodeBody(r, &body); err != nil {
		s.badRequest(w, "UpdateContext", err)
		return
	}

	sess, err := s.Sessions.Update(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *flow.Flow) error {
		f.UpdateContext(body)
		return nil
	})
	if err != nil {
		s.writeError(w, "UpdateContext", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Execution)
}

// -- Helpers --

type errorBody struct {
	Error string `json:"error"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusOf maps domain sentinels to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists),
		errors.Is(err, domain.ErrDuplicateNode):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConnectionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidFlow):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error(op+" failed", "err", err)
	} else {
		s.Logger.Debug(op+" rejected", "err", err, "status", status)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, op string, err error) {
	s.Logger.Debug(op+": bad request", "err", err)
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "err", err)
	}
}
