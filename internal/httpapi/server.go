// Package httpapi serves the control API: run submission, approval
// resolution, status, feature history, and a server-sent event stream of
// run lifecycle events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmedshikashaker/automaker/pkg/approval"
	"github.com/ahmedshikashaker/automaker/pkg/autoloop"
	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/metrics"
	"github.com/ahmedshikashaker/automaker/pkg/persistence"
	"github.com/ahmedshikashaker/automaker/pkg/version"
)

// sseBuffer sizes each event-stream subscriber's channel. Slow clients
// beyond this lag lose events rather than stalling emitters.
const sseBuffer = 256

// Server exposes the control API over HTTP.
type Server struct {
	controller *autoloop.Controller
	gate       *approval.Gate
	store      *persistence.Store
	bus        *events.Bus
	queries    *metrics.QueryService
	logger     *logx.Logger

	httpServer *http.Server
}

// NewServer wires the API against the controller, gate, store, and bus.
// store may be nil; history routes then return 503. queries may be nil;
// the status endpoint then omits Prometheus summaries.
func NewServer(controller *autoloop.Controller, gate *approval.Gate, store *persistence.Store, bus *events.Bus, queries *metrics.QueryService) *Server {
	return &Server{
		controller: controller,
		gate:       gate,
		store:      store,
		bus:        bus,
		queries:    queries,
		logger:     logx.NewLogger("httpapi"),
	}
}

// RegisterRoutes attaches all API routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunCancel)
	mux.HandleFunc("/api/approvals", s.handleApprovalsList)
	mux.HandleFunc("/api/approvals/", s.handleApprovalAction)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/features", s.handleFeatures)
	mux.HandleFunc("/api/features/", s.handleFeature)
	mux.HandleFunc("/api/outcomes", s.handleOutcomes)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("control API listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// submitRequest is the POST /api/runs body.
type submitRequest struct {
	FeatureID   string `json:"featureId"`
	ProjectPath string `json:"projectPath,omitempty"`
	Prompt      string `json:"prompt"`
	BranchName  string `json:"branchName,omitempty"`
	Model       string `json:"model,omitempty"`
	Mode        string `json:"mode,omitempty"`
	MaxTurns    int    `json:"maxTurns,omitempty"`
}

// handleRuns implements POST /api/runs (submit) and GET /api/runs
// (controller status, same payload as /api/status).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.controller.GetStatus())
	case http.MethodPost:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		mode := autoloop.Mode(req.Mode)
		if req.Mode == "" {
			mode = autoloop.ModePlan
		}
		err := s.controller.Submit(autoloop.RunRequest{
			FeatureID:   req.FeatureID,
			ProjectPath: req.ProjectPath,
			Prompt:      req.Prompt,
			BranchName:  req.BranchName,
			Model:       req.Model,
			Mode:        mode,
			MaxTurns:    req.MaxTurns,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		s.writeJSON(w, map[string]string{"featureId": req.FeatureID, "status": "accepted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunCancel implements POST /api/runs/{featureID}/cancel.
func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	featureID, action, ok := splitFeatureAction(r.URL.Path, "/api/runs/")
	if !ok || action != "cancel" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if !s.controller.CancelFeature(featureID) {
		http.Error(w, fmt.Sprintf("feature %s is not running or queued", featureID), http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]string{"featureId": featureID, "status": "cancelling"})
}

// handleApprovalsList implements GET /api/approvals.
func (s *Server) handleApprovalsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids := s.gate.GetAllPending()
	type pendingInfo struct {
		FeatureID   string `json:"featureId"`
		ProjectPath string `json:"projectPath,omitempty"`
	}
	list := make([]pendingInfo, 0, len(ids))
	for _, id := range ids {
		path, _ := s.gate.GetProjectPath(id)
		list = append(list, pendingInfo{FeatureID: id, ProjectPath: path})
	}
	s.writeJSON(w, map[string]any{"pending": list, "count": len(list)})
}

// resolveRequest is the POST /api/approvals/{featureID}/resolve body.
type resolveRequest struct {
	Approved   bool   `json:"approved"`
	EditedPlan string `json:"editedPlan,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

// handleApprovalAction implements POST /api/approvals/{featureID}/resolve
// and POST /api/approvals/{featureID}/cancel.
func (s *Server) handleApprovalAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	featureID, action, ok := splitFeatureAction(r.URL.Path, "/api/approvals/")
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action {
	case "resolve":
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		result := s.gate.Resolve(featureID, req.Approved, req.EditedPlan, req.Feedback)
		if !result.Success {
			http.Error(w, result.Error, http.StatusNotFound)
			return
		}
		s.writeJSON(w, result)
	case "cancel":
		s.gate.Cancel(featureID)
		s.writeJSON(w, map[string]string{"featureId": featureID, "status": "cancelled"})
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleStatus implements GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := s.controller.GetStatus()
	payload := map[string]any{
		"autoLoop":         status,
		"pendingApprovals": s.gate.PendingCount(),
		"version":          version.Version,
	}
	if s.queries != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		summary, err := s.queries.GetRunSummary(ctx, time.Hour)
		if err != nil {
			s.logger.Warn("run summary query failed: %v", err)
		} else {
			payload["summaryLastHour"] = summary
		}
	}
	s.writeJSON(w, payload)
}

// handleFeatures implements GET /api/features with an optional
// ?status= filter.
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Persistence not available", http.StatusServiceUnavailable)
		return
	}
	features, err := s.store.ListFeatures(r.URL.Query().Get("status"))
	if err != nil {
		s.logger.Error("list features: %v", err)
		http.Error(w, "Failed to list features", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"features": features, "count": len(features)})
}

// handleFeature implements GET /api/features/{featureID} and
// GET /api/features/{featureID}/plan.
func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Persistence not available", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/features/")
	featureID, sub, _ := strings.Cut(rest, "/")
	if featureID == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch sub {
	case "":
		feature, err := s.store.GetFeature(featureID)
		if errors.Is(err, persistence.ErrNotFound) {
			http.Error(w, "Feature not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("get feature %s: %v", featureID, err)
			http.Error(w, "Failed to load feature", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, feature)
	case "plan":
		plan, err := s.store.GetPlan(featureID)
		if err != nil {
			s.logger.Error("get plan %s: %v", featureID, err)
			http.Error(w, "Failed to load plan", http.StatusInternalServerError)
			return
		}
		if plan == nil {
			http.Error(w, "Plan not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, plan)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleOutcomes implements GET /api/outcomes with an optional ?limit=.
func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Persistence not available", http.StatusServiceUnavailable)
		return
	}
	outcomes, err := s.store.ListRunOutcomes(ParseLimit(r, 50, 500))
	if err != nil {
		s.logger.Error("list run outcomes: %v", err)
		http.Error(w, "Failed to list outcomes", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"outcomes": outcomes, "count": len(outcomes)})
}

// handleEvents implements GET /api/events as a server-sent event stream.
// Each bus event becomes one SSE message with the event type in the
// event: field and the JSON payload in data:.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := s.bus.Subscribe(sseBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	// Heartbeat keeps intermediaries from reaping idle connections.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("marshal event %s: %v", e.Type, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response: %v", err)
	}
}

// splitFeatureAction parses "{prefix}{featureID}/{action}" paths.
func splitFeatureAction(path, prefix string) (featureID, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	featureID, action, found := strings.Cut(rest, "/")
	if !found || featureID == "" || action == "" {
		return "", "", false
	}
	return featureID, action, true
}

// ParseLimit reads a ?limit= query value with a default and cap.
func ParseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
