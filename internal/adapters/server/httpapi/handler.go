// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/tikk/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
	mux     *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the transport service contract.
func NewHandler(service common.Service) *Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /projects", h.handleListProjects)
	h.mux.HandleFunc("POST /projects", h.handleCreateProject)
	h.mux.HandleFunc("GET /projects/{id}", h.handleGetProject)
	h.mux.HandleFunc("POST /projects/{id}/rename", h.handleRenameProject)
	h.mux.HandleFunc("POST /projects/{id}/archive", h.handleArchiveProject)
	h.mux.HandleFunc("POST /projects/{id}/restore", h.handleRestoreProject)
	h.mux.HandleFunc("GET /projects/{id}/history", h.handleProjectHistory)
	h.mux.HandleFunc("GET /projects/{id}/tasks", h.handleListTasks)
	h.mux.HandleFunc("GET /projects/{id}/summary", h.handleProjectSummary)

	h.mux.HandleFunc("POST /tasks", h.handleCreateTask)
	h.mux.HandleFunc("GET /tasks/{id}", h.handleGetTask)
	h.mux.HandleFunc("POST /tasks/{id}/rename", h.handleRenameTask)
	h.mux.HandleFunc("POST /tasks/{id}/move", h.handleMoveTask)
	h.mux.HandleFunc("POST /tasks/{id}/archive", h.handleArchiveTask)
	h.mux.HandleFunc("POST /tasks/{id}/restore", h.handleRestoreTask)
	h.mux.HandleFunc("GET /tasks/{id}/history", h.handleTaskHistory)
	h.mux.HandleFunc("GET /tasks/{id}/entries", h.handleTaskEntries)
	h.mux.HandleFunc("GET /tasks/{id}/summary", h.handleTaskSummary)

	h.mux.HandleFunc("GET /timer", h.handleCurrentTimer)
	h.mux.HandleFunc("POST /timer/start", h.handleStartTimer)
	h.mux.HandleFunc("POST /timer/stop", h.handleStopTimer)
	h.mux.HandleFunc("POST /timer/stop_all", h.handleStopAllTimers)

	h.mux.HandleFunc("POST /entries", h.handleAddManualEntry)
	h.mux.HandleFunc("GET /entries/recent", h.handleRecentEntries)
	h.mux.HandleFunc("GET /entries/{id}/audit", h.handleEntryAudit)
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "time tracking service is not configured",
		})
		return
	}
	if _, pattern := h.mux.Handler(r); pattern == "" {
		writeRouteMiss(w, r, h.mux)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleListProjects serves GET `/projects?include_archived=&prefix=`.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := queryBool(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	projects, err := h.service.ListProjects(r.Context(), common.ListProjectsRequest{
		IncludeArchived: includeArchived,
		Prefix:          r.URL.Query().Get("prefix"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleGetProject serves GET `/projects/{id}?at=`.
func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := h.service.GetProject(r.Context(), common.GetProjectRequest{ID: id, At: r.URL.Query().Get("at")})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleRenameProject serves POST `/projects/{id}/rename`.
func (h *Handler) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.RenameProject(r.Context(), common.RenameProjectRequest{ID: id, Name: payload.Name})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleArchiveProject serves POST `/projects/{id}/archive` with an optional `{"force":true}` body.
func (h *Handler) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Force bool `json:"force"`
	}
	if err := decodeOptionalJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.ArchiveProject(r.Context(), common.ArchiveProjectRequest{ID: id, Force: payload.Force})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleRestoreProject serves POST `/projects/{id}/restore`.
func (h *Handler) handleRestoreProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := h.service.RestoreProject(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *Handler) handleProjectHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.service.ProjectHistory(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": history})
}

// handleListTasks serves GET `/projects/{id}/tasks?include_archived=`.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	includeArchived, err := queryBool(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	tasks, err := h.service.ListTasks(r.Context(), common.ListTasksRequest{ProjectID: id, IncludeArchived: includeArchived})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) handleProjectSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.ProjectSummary(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleGetTask serves GET `/tasks/{id}?at=`.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.service.GetTask(r.Context(), common.GetTaskRequest{ID: id, At: r.URL.Query().Get("at")})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleRenameTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.service.RenameTask(r.Context(), common.RenameTaskRequest{ID: id, Name: payload.Name})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleMoveTask serves POST `/tasks/{id}/move` with `{"project_id":N}`.
func (h *Handler) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProjectID int64 `json:"project_id"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.service.MoveTask(r.Context(), common.MoveTaskRequest{ID: id, ProjectID: payload.ProjectID})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleArchiveTask(w http.ResponseWriter, r *http.Request) {
	h.handleTaskWrite(w, r, h.service.ArchiveTask)
}

func (h *Handler) handleRestoreTask(w http.ResponseWriter, r *http.Request) {
	h.handleTaskWrite(w, r, h.service.RestoreTask)
}

func (h *Handler) handleTaskWrite(w http.ResponseWriter, r *http.Request, write func(context.Context, int64) (common.Task, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := write(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.service.TaskHistory(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": history})
}

// handleTaskEntries serves GET `/tasks/{id}/entries?limit=`.
func (h *Handler) handleTaskEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	entries, err := h.service.TaskEntries(r.Context(), common.TaskEntriesRequest{TaskID: id, Limit: limit})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleTaskSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.TaskSummary(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCurrentTimer serves GET `/timer`.
func (h *Handler) handleCurrentTimer(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CurrentTimer(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type timerRequest struct {
	TaskID int64 `json:"task_id"`
}

// handleStartTimer serves POST `/timer/start` with `{"task_id":N}`.
func (h *Handler) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	entry, err := h.service.StartTimer(r.Context(), req.TaskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleStopTimer serves POST `/timer/stop`; stopping an idle task returns `{"stopped":false}`.
func (h *Handler) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.StopTimer(r.Context(), req.TaskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStopAllTimers(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.service.StopAllTimers(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// handleAddManualEntry serves POST `/entries`.
func (h *Handler) handleAddManualEntry(w http.ResponseWriter, r *http.Request) {
	var req common.AddManualEntryRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	entry, err := h.service.AddManualEntry(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleRecentEntries serves GET `/entries/recent?limit=`.
func (h *Handler) handleRecentEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	entries, err := h.service.RecentEntries(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleEntryAudit serves GET `/entries/{id}/audit` where id is the start event id.
func (h *Handler) handleEntryAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	events, err := h.service.EntryAudit(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// pathID parses the `{id}` wildcard and writes a 400 when it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "validation",
			Message: fmt.Sprintf("invalid id %q", raw),
		})
		return 0, false
	}
	return id, true
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", name, common.ErrInvalidRequest)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", name, common.ErrInvalidRequest)
	}
	return v, nil
}

// writeRouteMiss distinguishes unknown paths from known paths hit with the wrong method.
func writeRouteMiss(w http.ResponseWriter, r *http.Request, mux *http.ServeMux) {
	var allowed []string
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		candidate := r.Clone(r.Context())
		candidate.Method = method
		if _, pattern := mux.Handler(candidate); pattern != "" {
			allowed = append(allowed, method)
		}
	}
	if len(allowed) > 0 {
		writeMethodNotAllowed(w, allowed...)
		return
	}
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// statusForCode maps stable error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "state":
		return http.StatusUnprocessableEntity
	case "service_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal",
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	apiErr := APIError{Code: code, Message: err.Error()}
	if code == "data_integrity" {
		apiErr.Hint = "The time entry log is inconsistent; stop all timers to repair it."
	}
	writeJSONError(w, statusForCode(code), apiErr)
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
