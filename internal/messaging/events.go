package messaging

// WorkflowTriggerEvent is published when a workflow is triggered and
// consumed by workers to execute the run. Keyed by run_id so events for one
// run stay ordered within a partition.
type WorkflowTriggerEvent struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	Payload    map[string]any `json:"payload"`
}

// WorkflowCompletedEvent is published when a run reaches a terminal status.
// It is advisory: storage holds the authoritative state. Error is present
// iff the run failed.
type WorkflowCompletedEvent struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}
