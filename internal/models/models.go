package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	RunPending WorkflowStatus = "pending"
	RunRunning WorkflowStatus = "running"
	RunSuccess WorkflowStatus = "success"
	RunFailed  WorkflowStatus = "failed"
	RunPaused  WorkflowStatus = "paused"
)

// Terminal reports whether the status is absorbing: once a run reaches a
// terminal status, neither status nor completed_at may change.
func (s WorkflowStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// StepStatus is the lifecycle state of a single step execution.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Step is one unit of work inside a workflow. Config is a discriminated
// union over Type; connectors decode it into their own typed config.
type Step struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// WorkflowDefinition is a declarative, linear workflow. UUID is the
// server-assigned primary key; ID is an optional caller-supplied label with
// no uniqueness guarantee. Definitions are immutable after creation.
type WorkflowDefinition struct {
	UUID        string `json:"uuid,omitempty"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

func (w *WorkflowDefinition) EntityUUID() string     { return w.UUID }
func (w *WorkflowDefinition) SetEntityUUID(u string) { w.UUID = u }

// StepResult records one step's execution. Output holds the connector's
// typed output document and is absent when the step failed.
type StepResult struct {
	StepName    string          `json:"step_name"`
	Status      StepStatus      `json:"status"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// WorkflowRun is one execution of a workflow triggered with a payload.
type WorkflowRun struct {
	UUID        string         `json:"uuid,omitempty"`
	ID          string         `json:"id,omitempty"`
	WorkflowID  string         `json:"workflow_id"`
	Status      WorkflowStatus `json:"status"`
	Payload     map[string]any `json:"payload"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	StepResults StepResults    `json:"step_results"`
}

func (r *WorkflowRun) EntityUUID() string     { return r.UUID }
func (r *WorkflowRun) SetEntityUUID(u string) { r.UUID = u }

// StepResults maps step name to result while preserving insertion order,
// so a failed run's last entry is always the failed step. The zero value
// is ready to use and serialises as an empty JSON object.
type StepResults struct {
	order  []string
	byName map[string]StepResult
}

// Set records a result under name. Overwriting an existing name keeps its
// original position.
func (r *StepResults) Set(name string, res StepResult) {
	if r.byName == nil {
		r.byName = make(map[string]StepResult)
	}
	if _, ok := r.byName[name]; !ok {
		r.order = append(r.order, name)
	}
	r.byName[name] = res
}

// Get returns the result recorded under name.
func (r *StepResults) Get(name string) (StepResult, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Len returns the number of recorded results.
func (r *StepResults) Len() int { return len(r.order) }

// Names returns the step names in insertion order.
func (r *StepResults) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Last returns the most recently inserted result.
func (r *StepResults) Last() (StepResult, bool) {
	if len(r.order) == 0 {
		return StepResult{}, false
	}
	return r.byName[r.order[len(r.order)-1]], true
}

// MarshalJSON emits a JSON object with keys in insertion order.
func (r StepResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.byName[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, recording keys in document order.
func (r *StepResults) UnmarshalJSON(data []byte) error {
	r.order = nil
	r.byName = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("step_results: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("step_results: expected string key, got %v", keyTok)
		}
		var res StepResult
		if err := dec.Decode(&res); err != nil {
			return err
		}
		r.Set(name, res)
	}
	// consume the closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// NowISO returns the current UTC time as an ISO-8601 string, the wire and
// storage format for all run timestamps.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
