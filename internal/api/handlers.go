package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/daterange"
	"github.com/trailhq/jobtrail/internal/importer"
	"github.com/trailhq/jobtrail/internal/transition"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

// TransitionRequest is the request body for POST /applications/{id}/transition
type TransitionRequest struct {
	Stage      string    `json:"stage"`
	Source     string    `json:"source,omitempty"` // Default: manual
	Message    string    `json:"message,omitempty"`
	Date       time.Time `json:"date,omitempty"`
	EmailID    string    `json:"email_id,omitempty"`
	EmailTitle string    `json:"email_title,omitempty"`
	EmailBody  string    `json:"email_body,omitempty"`
}

// AddStageRequest is the request body for POST /workflow/stages
type AddStageRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// RenameStageRequest is the request body for PATCH /workflow/stages/{id}
type RenameStageRequest struct {
	Name string `json:"name"`
}

// ReorderRequest is the request body for PUT /workflow/stages/{id}/order
type ReorderRequest struct {
	Order int `json:"order"`
}

// VisibilityRequest is the request body for PUT /workflow/stages/{id}/visibility
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// WorkflowResponse is the response for GET /workflow
type WorkflowResponse struct {
	Stages []workflow.Stage `json:"stages"`
}

// ProcessEmailsRequest is the request body for POST /emails/process
type ProcessEmailsRequest struct {
	Emails []importer.Email `json:"emails"`
}

// ProcessEmailsResponse is the response for POST /emails/process
type ProcessEmailsResponse struct {
	Results []importer.Result `json:"results"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Applications int    `json:"applications"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleListApplications handles GET /api/v1/applications
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list applications", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list applications")
		return
	}
	s.sendJSON(w, http.StatusOK, apps)
}

// handleCreateApplication handles POST /api/v1/applications
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var draft application.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if draft.Company == "" {
		s.sendError(w, http.StatusBadRequest, "company is required")
		return
	}
	if draft.Stage == "" {
		stages := s.workflow.Stages()
		if len(stages) == 0 {
			s.sendError(w, http.StatusConflict, "workflow has no stages")
			return
		}
		draft.Stage = stages[0].Name
	}

	app, err := s.apps.Add(r.Context(), draft)
	if err != nil {
		s.handleDomainError(w, err, "failed to create application")
		return
	}

	s.logger.Info("application created via API",
		"id", app.ID,
		"company", app.Company,
		"position", app.Position,
	)
	s.sendJSON(w, http.StatusCreated, app)
}

// handleGetApplication handles GET /api/v1/applications/{id}
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err, "failed to get application")
		return
	}
	s.sendJSON(w, http.StatusOK, app)
}

// handleUpdateApplication handles PATCH /api/v1/applications/{id}.
// Only non-stage fields can be patched here; stage changes must go
// through the transition endpoint so they are audited.
func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := raw["stage"]; ok {
		s.sendError(w, http.StatusBadRequest, "stage cannot be patched; use the transition endpoint")
		return
	}

	data, err := json.Marshal(raw)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var patch application.FieldPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	app, err := s.apps.UpdateFields(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.handleDomainError(w, err, "failed to update application")
		return
	}
	s.sendJSON(w, http.StatusOK, app)
}

// handleDeleteApplication handles DELETE /api/v1/applications/{id}
func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.apps.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err, "failed to delete application")
		return
	}

	s.logger.Info("application deleted via API", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleTransition handles POST /api/v1/applications/{id}/transition
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Stage == "" {
		s.sendError(w, http.StatusBadRequest, "stage is required")
		return
	}

	source := application.Source(req.Source)
	switch source {
	case "":
		source = application.SourceManual
	case application.SourceManual, application.SourceImport, application.SourceSystem:
	default:
		s.sendError(w, http.StatusBadRequest, "source must be manual, import or system")
		return
	}

	app, err := s.engine.Transition(r.Context(), chi.URLParam(r, "id"), req.Stage, source, &transition.Meta{
		Message:    req.Message,
		Date:       req.Date,
		EmailID:    req.EmailID,
		EmailTitle: req.EmailTitle,
		EmailBody:  req.EmailBody,
	})
	if err != nil {
		s.handleDomainError(w, err, "failed to transition application")
		return
	}
	s.sendJSON(w, http.StatusOK, app)
}

// handleLogs handles GET /api/v1/applications/{id}/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err, "failed to get application logs")
		return
	}
	s.sendJSON(w, http.StatusOK, app.Logs)
}

// handleGetWorkflow handles GET /api/v1/workflow
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, WorkflowResponse{Stages: s.workflow.Stages()})
}

// handleAddStage handles POST /api/v1/workflow/stages
func (s *Server) handleAddStage(w http.ResponseWriter, r *http.Request) {
	var req AddStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	stage, err := s.workflow.Add(req.Name, req.Color)
	if err != nil {
		s.handleDomainError(w, err, "failed to add stage")
		return
	}
	s.sendJSON(w, http.StatusCreated, stage)
}

// handleRenameStage handles PATCH /api/v1/workflow/stages/{id}
func (s *Server) handleRenameStage(w http.ResponseWriter, r *http.Request) {
	var req RenameStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.RenameStage(r.Context(), id, req.Name); err != nil {
		s.handleDomainError(w, err, "failed to rename stage")
		return
	}

	stage, err := s.workflow.StageByID(id)
	if err != nil {
		s.handleDomainError(w, err, "failed to load renamed stage")
		return
	}
	s.sendJSON(w, http.StatusOK, stage)
}

// handleRemoveStage handles DELETE /api/v1/workflow/stages/{id}
func (s *Server) handleRemoveStage(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveStage(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err, "failed to remove stage")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderStage handles PUT /api/v1/workflow/stages/{id}/order
func (s *Server) handleReorderStage(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.workflow.Reorder(chi.URLParam(r, "id"), req.Order); err != nil {
		s.handleDomainError(w, err, "failed to reorder stage")
		return
	}
	s.sendJSON(w, http.StatusOK, WorkflowResponse{Stages: s.workflow.Stages()})
}

// handleStageVisibility handles PUT /api/v1/workflow/stages/{id}/visibility
func (s *Server) handleStageVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.workflow.SetVisibility(id, req.Visible); err != nil {
		s.handleDomainError(w, err, "failed to set stage visibility")
		return
	}

	stage, err := s.workflow.StageByID(id)
	if err != nil {
		s.handleDomainError(w, err, "failed to load stage")
		return
	}
	s.sendJSON(w, http.StatusOK, stage)
}

// handleAnalytics handles GET /api/v1/analytics
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		s.handleDomainError(w, err, "failed to parse analytics range")
		return
	}

	snap, err := s.analytics.Snapshot(r.Context(), rng)
	if err != nil {
		s.logger.Error("failed to compute analytics", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}
	s.sendJSON(w, http.StatusOK, snap)
}

func (s *Server) parseRange(r *http.Request) (daterange.Range, error) {
	sel := daterange.Selection(r.URL.Query().Get("range"))
	if sel == "" {
		sel = daterange.SelectionAll
	}
	if sel != daterange.SelectionCustom {
		return daterange.Resolve(sel, s.now())
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		return daterange.Range{}, daterange.ErrInvalidRange
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		return daterange.Range{}, daterange.ErrInvalidRange
	}
	// Make the upper bound cover the whole day
	return daterange.ResolveCustom(from, to.AddDate(0, 0, 1).Add(-time.Nanosecond))
}

// handleProcessEmails handles POST /api/v1/emails/process
func (s *Server) handleProcessEmails(w http.ResponseWriter, r *http.Request) {
	var req ProcessEmailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Emails) == 0 {
		s.sendError(w, http.StatusBadRequest, "emails is required")
		return
	}

	results, err := s.importer.Process(r.Context(), req.Emails)
	if err != nil {
		s.logger.Error("failed to process emails", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to process emails")
		return
	}
	s.sendJSON(w, http.StatusOK, ProcessEmailsResponse{Results: results})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, _ := s.apps.StageCounts(r.Context())
	total := 0
	for _, n := range counts {
		total += n
	}

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Version:      Version,
		Uptime:       time.Since(s.startTime).String(),
		Applications: total,
	})
}

// handleDomainError maps domain errors onto HTTP status codes
func (s *Server) handleDomainError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrInvalidStage), errors.Is(err, daterange.ErrInvalidRange):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrStageInUse), errors.Is(err, workflow.ErrDuplicateStage):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(logMsg, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
