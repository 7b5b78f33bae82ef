// Package worker consumes trigger events and executes workflow runs.
package worker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/kd17290/workflow-automation/internal/messaging"
	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/internal/service"
)

// Consumer is the message source the worker drains; satisfied by
// messaging.Consumer and by test fakes.
type Consumer interface {
	Consume(ctx context.Context, handler messaging.Handler) error
	Close() error
}

// Worker drives the consume → execute → publish-completion loop. The
// consumer-group protocol guarantees a single worker owns a given run at
// any time; horizontal scaling adds processes to the same group.
type Worker struct {
	consumer       Consumer
	producer       messaging.Sender
	service        *service.WorkflowService
	completedTopic string
}

// New creates a worker over the given consumer, producer, and service.
func New(consumer Consumer, producer messaging.Sender, svc *service.WorkflowService, completedTopic string) *Worker {
	return &Worker{
		consumer:       consumer,
		producer:       producer,
		service:        svc,
		completedTopic: completedTopic,
	}
}

// Start consumes until ctx is cancelled, then closes the consumer. An
// in-flight run completes before the loop exits.
func (w *Worker) Start(ctx context.Context) error {
	log.Printf("Starting workflow worker...")
	err := w.consumer.Consume(ctx, w.HandleMessage)
	if closeErr := w.consumer.Close(); closeErr != nil {
		log.Printf("Warning: close consumer: %v", closeErr)
	}
	log.Printf("Workflow worker stopped")
	return err
}

// HandleMessage processes one trigger event. Malformed events are logged
// and acknowledged without touching any run (poison-pill tolerance). The
// run executes on a context that survives shutdown cancellation, so an
// in-flight run finishes normally.
func (w *Worker) HandleMessage(ctx context.Context, value []byte) error {
	var event messaging.WorkflowTriggerEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("worker: discarding malformed trigger event: %v", err)
		return nil
	}
	if event.RunID == "" {
		log.Printf("worker: discarding trigger event without run_id")
		return nil
	}

	log.Printf("worker: processing workflow trigger: run_id=%s", event.RunID)
	execCtx := context.WithoutCancel(ctx)
	if err := w.service.ExecuteRun(execCtx, event.RunID); err != nil {
		return err
	}

	// Reload for the authoritative terminal status; the completion event is
	// a notification only.
	run, err := w.service.LoadRun(execCtx, event.RunID)
	if err != nil {
		return err
	}
	status := models.RunFailed
	errMsg := "Run not found"
	if run != nil {
		status = run.Status
		errMsg = run.Error
	}

	completed := messaging.WorkflowCompletedEvent{
		RunID:      event.RunID,
		WorkflowID: event.WorkflowID,
		Status:     string(status),
	}
	if status == models.RunFailed {
		completed.Error = errMsg
	}
	if err := w.producer.Send(execCtx, w.completedTopic, completed, event.RunID); err != nil {
		log.Printf("worker: publish completion for run %s: %v", event.RunID, err)
	}

	log.Printf("worker: workflow completed: run_id=%s, status=%s", event.RunID, status)
	return nil
}
