package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	// DefaultPortAttempts bounds how many consecutive ports Start tries
	DefaultPortAttempts = 10

	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// ClusterManager is the control plane surface the API serves
type ClusterManager interface {
	AddNode(ctx context.Context, cpuCores float64) (*types.Node, error)
	RemoveNode(ctx context.Context, id string) (manager.RemoveResult, error)
	CreatePod(ctx context.Context, cpuCores float64) (*types.Pod, error)
	DeletePod(id string) bool
	Heartbeat(id string) error
	GetNode(id string) (*types.Node, error)
	ListNodes() []*types.Node
	ListPods() []types.PodView
	Resources() types.ClusterResources
}

// EventSource returns recently journaled events
type EventSource interface {
	Recent(limit int) ([]*events.Event, error)
}

// ErrorResponse is the body of every 4xx/5xx response
type ErrorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// MessageResponse is returned by the delete endpoints
type MessageResponse struct {
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
	PodID   string `json:"podId,omitempty"`
}

// RemoveNodeResponse is returned when a registered node was removed
type RemoveNodeResponse struct {
	MessageResponse
	OrphanedPods []string `json:"orphanedPods"`
	Rescheduled  int      `json:"rescheduled"`
	Pending      int      `json:"pending"`
}

// CreatePodResponse is returned by POST /pods. NodeID is null for a pending pod.
type CreatePodResponse struct {
	Pod    *types.Pod `json:"pod"`
	NodeID *string    `json:"nodeId"`
}

// StatusResponse is returned by POST /heartbeat
type StatusResponse struct {
	Status string `json:"status"`
}

type coresRequest struct {
	CPUCores json.RawMessage `json:"cpuCores"`
}

type heartbeatRequest struct {
	NodeID string `json:"nodeId"`
}

// Server serves the cluster HTTP API
type Server struct {
	manager  ClusterManager
	events   EventSource
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server. journal may be nil, in which case
// GET /events always returns an empty list.
func NewServer(mgr ClusterManager, journal EventSource) *Server {
	s := &Server{
		manager: mgr,
		events:  journal,
		logger:  log.WithComponent("api"),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.Use(s.metricsMiddleware)

	router.HandleFunc("/nodes", s.handleCreateNode).Methods(http.MethodPost)
	router.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	router.HandleFunc("/nodes/{id}", s.handleGetNode).Methods(http.MethodGet)
	router.HandleFunc("/nodes/{id}", s.handleDeleteNode).Methods(http.MethodDelete)

	router.HandleFunc("/pods", s.handleCreatePod).Methods(http.MethodPost)
	router.HandleFunc("/pods", s.handleListPods).Methods(http.MethodGet)
	router.HandleFunc("/pods/{id}", s.handleDeletePod).Methods(http.MethodDelete)

	router.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)

	router.HandleFunc("/cluster/resources", s.handleResources).Methods(http.MethodGet)
	router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	router.Handle("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	router.Handle("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// CORS wraps the router so preflights for any route are answered
	// before method matching rejects them
	return corsMiddleware(router)
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves in the background. If the port is in
// use, up to attempts consecutive ports are tried.
func (s *Server) Start(addr string, attempts int) error {
	lis, err := listenWithFallback(addr, attempts, s.logger)
	if err != nil {
		return err
	}

	s.listener = lis
	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP API server failed")
		}
	}()
	return nil
}

// Addr returns the address the server is bound to, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping HTTP API server")
	return s.server.Shutdown(ctx)
}

func listenWithFallback(addr string, attempts int, logger zerolog.Logger) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}
	if attempts < 1 || port == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := net.JoinHostPort(host, strconv.Itoa(port+i))
		lis, err := net.Listen("tcp", candidate)
		if err == nil {
			return lis, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("failed to listen on %s: %w", candidate, err)
		}
		logger.Warn().Str("addr", candidate).Msg("Port is busy, trying the next one")
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+attempts-1, lastErr)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	cores, errResp := decodeCores(r)
	if errResp != nil {
		s.writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	node, err := s.manager.AddNode(r.Context(), cores)
	if errors.Is(err, manager.ErrInvalidCores) {
		s.writeJSON(w, http.StatusBadRequest, invalidCores())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to add node")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:      "Failed to provision node: " + err.Error(),
			Suggestion: "Check that the node runtime is reachable",
		})
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.ListNodes())
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	node, err := s.manager.GetNode(id)
	if errors.Is(err, storage.ErrNodeNotFound) {
		s.writeJSON(w, http.StatusNotFound, nodeNotFound())
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, node.Detail())
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := s.manager.RemoveNode(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("node_id", id).Msg("Failed to remove node")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to remove node: " + err.Error()})
		return
	}
	if !result.Removed {
		s.writeJSON(w, http.StatusOK, MessageResponse{
			Message: fmt.Sprintf("Node %s already removed", id),
			NodeID:  id,
		})
		return
	}

	orphans := result.Orphaned
	if orphans == nil {
		orphans = []string{}
	}
	s.writeJSON(w, http.StatusOK, RemoveNodeResponse{
		MessageResponse: MessageResponse{Message: "Node removed successfully", NodeID: id},
		OrphanedPods:    orphans,
		Rescheduled:     result.Rescheduled.Placed,
		Pending:         len(orphans) - result.Rescheduled.Placed,
	})
}

func (s *Server) handleCreatePod(w http.ResponseWriter, r *http.Request) {
	cores, errResp := decodeCores(r)
	if errResp != nil {
		s.writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	pod, err := s.manager.CreatePod(r.Context(), cores)
	if errors.Is(err, manager.ErrInvalidCores) {
		s.writeJSON(w, http.StatusBadRequest, invalidCores())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create pod")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error: " + err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, CreatePodResponse{Pod: pod, NodeID: pod.NodeID})
}

func (s *Server) handleListPods(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.ListPods())
}

func (s *Server) handleDeletePod(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	message := fmt.Sprintf("Pod %s deleted successfully", id)
	if !s.manager.DeletePod(id) {
		message = fmt.Sprintf("Pod %s already removed", id)
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: message, PodID: id})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, invalidBody(err))
		return
	}
	if req.NodeID == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:      "Missing required field: nodeId",
			Suggestion: "Please provide a valid 'nodeId' value in your request",
		})
		return
	}

	err := s.manager.Heartbeat(req.NodeID)
	if errors.Is(err, storage.ErrNodeNotFound) {
		s.writeJSON(w, http.StatusNotFound, nodeNotFound())
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "success"})
}

func (s *Server) handleResources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Resources())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:      "Invalid limit value",
				Suggestion: "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxEventLimit)
	}

	if s.events == nil {
		s.writeJSON(w, http.StatusOK, []*events.Event{})
		return
	}

	recent, err := s.events.Recent(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read event journal")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to read events: " + err.Error()})
		return
	}
	if recent == nil {
		recent = []*events.Event{}
	}
	s.writeJSON(w, http.StatusOK, recent)
}

// decodeCores reads {cpuCores} from the request body. A missing or null
// field and a non-positive or non-numeric value are reported separately.
func decodeCores(r *http.Request) (float64, *ErrorResponse) {
	var req coresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		resp := invalidBody(err)
		return 0, &resp
	}

	if len(req.CPUCores) == 0 || string(req.CPUCores) == "null" {
		return 0, &ErrorResponse{
			Error:      "Missing required field: cpuCores",
			Suggestion: "Please provide a valid 'cpuCores' value in your request",
		}
	}

	var cores float64
	if err := json.Unmarshal(req.CPUCores, &cores); err != nil || cores <= 0 {
		resp := invalidCores()
		return 0, &resp
	}
	return cores, nil
}

func invalidCores() ErrorResponse {
	return ErrorResponse{
		Error:      "Invalid cpuCores value",
		Suggestion: "cpuCores must be a positive number",
	}
}

func invalidBody(err error) ErrorResponse {
	return ErrorResponse{
		Error:      "Invalid request body: " + err.Error(),
		Suggestion: "Send a JSON object with Content-Type: application/json",
	}
}

func nodeNotFound() ErrorResponse {
	return ErrorResponse{
		Error:      "Node not found",
		Suggestion: "The specified nodeId does not exist",
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
