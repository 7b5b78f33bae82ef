// Package engine drives a workflow run through its step sequence.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/internal/storage"
	"github.com/kd17290/workflow-automation/pkg/connector"
)

// Engine executes runs strictly sequentially: each step observes the
// outputs of all previously completed steps through the run context. Run
// state is persisted on entry to RUNNING, after every completed step, and
// on every terminal transition. A step result is stored only once the step
// has finished, so persisted step results are never in RUNNING.
type Engine struct {
	workflows storage.Storage[*models.WorkflowDefinition]
	runs      storage.Storage[*models.WorkflowRun]
}

// New creates an engine over the given backends.
func New(backends *storage.Backends) *Engine {
	return &Engine{workflows: backends.Workflows, runs: backends.Runs}
}

// Run executes the workflow run with the given uuid to a terminal status.
// Replaying a run that is already terminal is a no-op. The returned error
// reports storage failures only; step failures end in a FAILED run record,
// which is the authoritative outcome.
func (e *Engine) Run(ctx context.Context, runID string) error {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run == nil {
		log.Printf("engine: workflow run %s not found", runID)
		return nil
	}
	if run.Status.Terminal() {
		log.Printf("engine: run %s already %s, skipping replay", runID, run.Status)
		return nil
	}

	workflow, err := e.workflows.Get(ctx, run.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", run.WorkflowID, err)
	}
	if workflow == nil {
		return e.finish(ctx, run, models.RunFailed, fmt.Sprintf("workflow %s not found", run.WorkflowID))
	}

	log.Printf("engine: starting workflow run %s", runID)
	run.Status = models.RunRunning
	if err := e.save(ctx, run); err != nil {
		return err
	}

	execCtx := map[string]any{"payload": run.Payload}

	for _, step := range workflow.Steps {
		result := models.StepResult{
			StepName:  step.Name,
			Status:    models.StepRunning,
			StartedAt: models.NowISO(),
		}

		output, stepErr := e.executeStep(ctx, step, execCtx)
		if stepErr != nil {
			log.Printf("engine: step %s failed: %v", step.Name, stepErr)
			result.Status = models.StepFailed
			result.Error = stepErr.Error()
			result.CompletedAt = models.NowISO()
			run.StepResults.Set(step.Name, result)
			return e.finish(ctx, run, models.RunFailed, stepErr.Error())
		}

		result.Status = models.StepSuccess
		result.CompletedAt = models.NowISO()
		if output != nil {
			encoded, err := json.Marshal(output)
			if err != nil {
				result.Status = models.StepFailed
				result.Error = fmt.Sprintf("encode step output: %v", err)
				result.Output = nil
				result.CompletedAt = models.NowISO()
				run.StepResults.Set(step.Name, result)
				return e.finish(ctx, run, models.RunFailed, result.Error)
			}
			result.Output = encoded
			execCtx[step.Name] = output
		}
		run.StepResults.Set(step.Name, result)
		if err := e.save(ctx, run); err != nil {
			return err
		}
	}

	log.Printf("engine: workflow run %s completed successfully", runID)
	return e.finish(ctx, run, models.RunSuccess, "")
}

func (e *Engine) executeStep(ctx context.Context, step models.Step, execCtx map[string]any) (any, error) {
	conn, err := connector.Get(step.Type)
	if err != nil {
		return nil, err
	}
	log.Printf("engine: executing step: %s (%s)", step.Name, step.Type)
	return conn.Execute(ctx, step, execCtx)
}

// finish records a terminal transition. The error message is set iff the
// run failed.
func (e *Engine) finish(ctx context.Context, run *models.WorkflowRun, status models.WorkflowStatus, errMsg string) error {
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = models.NowISO()
	return e.save(ctx, run)
}

func (e *Engine) save(ctx context.Context, run *models.WorkflowRun) error {
	updated, err := e.runs.Update(ctx, run)
	if err != nil {
		return fmt.Errorf("persist run %s: %w", run.UUID, err)
	}
	if !updated {
		log.Printf("engine: run %s vanished during execution", run.UUID)
	}
	return nil
}
