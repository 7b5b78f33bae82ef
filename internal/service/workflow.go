// Package service owns the workflow use-cases: definition CRUD, the
// trigger ingress, and run queries with read-through caching.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kd17290/workflow-automation/internal/cache"
	"github.com/kd17290/workflow-automation/internal/engine"
	"github.com/kd17290/workflow-automation/internal/messaging"
	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/internal/storage"
	"github.com/kd17290/workflow-automation/pkg/connector"
)

// ErrNotFound marks lookups of absent workflows or runs.
var ErrNotFound = errors.New("not found")

// ErrValidation marks rejected workflow definitions.
var ErrValidation = errors.New("validation")

// WorkflowService binds storage, cache, engine, and producer together. One
// instance serves both the API process and the worker.
type WorkflowService struct {
	workflows    storage.Storage[*models.WorkflowDefinition]
	runs         storage.Storage[*models.WorkflowRun]
	cache        *cache.Cache
	producer     messaging.Sender
	engine       *engine.Engine
	triggerTopic string
}

// New creates the service. cache may be nil; producer may be nil in worker
// or test configurations that never trigger.
func New(backends *storage.Backends, c *cache.Cache, producer messaging.Sender, triggerTopic string) *WorkflowService {
	return &WorkflowService{
		workflows:    backends.Workflows,
		runs:         backends.Runs,
		cache:        c,
		producer:     producer,
		engine:       engine.New(backends),
		triggerTopic: triggerTopic,
	}
}

// CreateWorkflow validates and persists a definition, returning its uuid.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) (string, error) {
	if err := validateWorkflow(workflow); err != nil {
		return "", err
	}
	id, err := s.workflows.Create(ctx, workflow)
	if err != nil {
		return "", fmt.Errorf("create workflow: %w", err)
	}
	log.Printf("workflow %s created (%s)", id, workflow.Name)
	return id, nil
}

func validateWorkflow(workflow *models.WorkflowDefinition) error {
	if workflow.Name == "" {
		return fmt.Errorf("%w: workflow name must not be empty", ErrValidation)
	}
	if len(workflow.Steps) == 0 {
		return fmt.Errorf("%w: workflow must have at least one step", ErrValidation)
	}
	seen := make(map[string]struct{}, len(workflow.Steps))
	for _, step := range workflow.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step name must not be empty", ErrValidation)
		}
		if _, ok := seen[step.Name]; ok {
			return fmt.Errorf("%w: duplicate step name: %s", ErrValidation, step.Name)
		}
		seen[step.Name] = struct{}{}
		conn, err := connector.Get(step.Type)
		if err != nil {
			return fmt.Errorf("%w: step %s: %v", ErrValidation, step.Name, err)
		}
		if err := conn.ValidateConfig(step.Config); err != nil {
			return fmt.Errorf("%w: step %s: %v", ErrValidation, step.Name, err)
		}
	}
	return nil
}

// GetWorkflow loads a definition, consulting the cache first. Returns
// ErrNotFound when absent.
func (s *WorkflowService) GetWorkflow(ctx context.Context, uuid string) (*models.WorkflowDefinition, error) {
	var cached models.WorkflowDefinition
	if s.cache.Get(ctx, cache.WorkflowKey(uuid), &cached) {
		return &cached, nil
	}
	workflow, err := s.workflows.Get(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", uuid, err)
	}
	if workflow == nil {
		return nil, fmt.Errorf("workflow %s: %w", uuid, ErrNotFound)
	}
	s.cache.Set(ctx, cache.WorkflowKey(uuid), workflow, cache.WorkflowTTL)
	return workflow, nil
}

// ListWorkflows returns one page of definitions.
func (s *WorkflowService) ListWorkflows(ctx context.Context, limit int, cursor string) ([]*models.WorkflowDefinition, string, error) {
	return s.workflows.ListPaginated(ctx, limit, cursor)
}

// DeleteWorkflow removes a definition. Existing runs stay valid.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, uuid string) error {
	deleted, err := s.workflows.Delete(ctx, uuid)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", uuid, err)
	}
	if !deleted {
		return fmt.Errorf("workflow %s: %w", uuid, ErrNotFound)
	}
	s.cache.Delete(ctx, cache.WorkflowKey(uuid))
	return nil
}

// Trigger accepts a run request: it validates the workflow, persists a
// PENDING run, and publishes a trigger event keyed by the run uuid. When
// the publish fails the run is marked FAILED but remains queryable, and the
// bus error is returned.
func (s *WorkflowService) Trigger(ctx context.Context, workflowID string, payload map[string]any) (string, error) {
	if _, err := s.GetWorkflow(ctx, workflowID); err != nil {
		return "", err
	}
	if payload == nil {
		payload = map[string]any{}
	}

	run := &models.WorkflowRun{
		WorkflowID: workflowID,
		Status:     models.RunPending,
		Payload:    payload,
		StartedAt:  models.NowISO(),
	}
	runID, err := s.runs.Create(ctx, run)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	event := messaging.WorkflowTriggerEvent{
		RunID:      runID,
		WorkflowID: workflowID,
		Payload:    payload,
	}
	if err := s.producer.Send(ctx, s.triggerTopic, event, runID); err != nil {
		run.Status = models.RunFailed
		run.Error = fmt.Sprintf("Failed to queue workflow: %v", err)
		run.CompletedAt = models.NowISO()
		if _, updateErr := s.runs.Update(ctx, run); updateErr != nil {
			log.Printf("failed to mark run %s as failed: %v", runID, updateErr)
		}
		return "", fmt.Errorf("failed to queue workflow: %w", err)
	}

	log.Printf("run %s triggered for workflow %s", runID, workflowID)
	return runID, nil
}

// GetRun loads a run snapshot, consulting the cache first. Returns
// ErrNotFound when absent.
func (s *WorkflowService) GetRun(ctx context.Context, uuid string) (*models.WorkflowRun, error) {
	var cached models.WorkflowRun
	if s.cache.Get(ctx, cache.RunKey(uuid), &cached) {
		return &cached, nil
	}
	run, err := s.runs.Get(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", uuid, err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", uuid, ErrNotFound)
	}
	s.cache.Set(ctx, cache.RunKey(uuid), run, cache.RunTTL)
	return run, nil
}

// ListRuns returns one page of runs.
func (s *WorkflowService) ListRuns(ctx context.Context, limit int, cursor string) ([]*models.WorkflowRun, string, error) {
	return s.runs.ListPaginated(ctx, limit, cursor)
}

// ExecuteRun drives a run to its terminal status. Used by the worker.
func (s *WorkflowService) ExecuteRun(ctx context.Context, runID string) error {
	return s.engine.Run(ctx, runID)
}

// LoadRun reads a run directly from storage, bypassing the cache; the
// worker uses it to read the authoritative terminal status.
func (s *WorkflowService) LoadRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return run, nil
}
