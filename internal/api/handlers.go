package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/internal/service"
)

const maxPageLimit = 200

// Handlers holds the request handlers and their dependencies.
type Handlers struct {
	svc              *service.WorkflowService
	defaultPageLimit int
}

// TriggerRequest is the body of POST /trigger.
type TriggerRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Payload    map[string]any `json:"payload"`
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var workflow models.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&workflow); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid workflow definition: "+err.Error())
		return
	}
	id, err := h.svc.CreateWorkflow(r.Context(), &workflow)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Workflow created successfully",
		"workflow_id": id,
	})
}

func (h *Handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	workflow, err := h.svc.GetWorkflow(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflow)
}

func (h *Handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, cursor := h.pageParams(r)
	items, next, err := h.svc.ListWorkflows(r.Context(), limit, cursor)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(items, next, limit))
}

func (h *Handlers) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteWorkflow(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Workflow deleted successfully"})
}

func (h *Handlers) trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid trigger request: "+err.Error())
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusUnprocessableEntity, "workflow_id is required")
		return
	}
	runID, err := h.svc.Trigger(r.Context(), req.WorkflowID, req.Payload)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow "+req.WorkflowID+" not found")
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"status": "triggered",
	})
}

func (h *Handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow run not found")
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, cursor := h.pageParams(r)
	items, next, err := h.svc.ListRuns(r.Context(), limit, cursor)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(items, next, limit))
}

// pageParams reads limit and cursor, clamping limit to 1..200 with the
// configured default.
func (h *Handlers) pageParams(r *http.Request) (int, string) {
	limit := h.defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, r.URL.Query().Get("cursor")
}

func pageResponse[T any](items []T, next string, limit int) map[string]any {
	resp := map[string]any{
		"items": items,
		"limit": limit,
	}
	if next != "" {
		resp["next_cursor"] = next
	} else {
		resp["next_cursor"] = nil
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func internalError(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
