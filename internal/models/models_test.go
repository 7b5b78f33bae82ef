package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStatusTerminal(t *testing.T) {
	assert.True(t, RunSuccess.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.False(t, RunPending.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.False(t, RunPaused.Terminal())
}

func TestStepResultsInsertionOrder(t *testing.T) {
	var results StepResults
	results.Set("first", StepResult{StepName: "first", Status: StepSuccess})
	results.Set("second", StepResult{StepName: "second", Status: StepSuccess})
	results.Set("third", StepResult{StepName: "third", Status: StepFailed})

	assert.Equal(t, []string{"first", "second", "third"}, results.Names())
	assert.Equal(t, 3, results.Len())

	last, ok := results.Last()
	require.True(t, ok)
	assert.Equal(t, "third", last.StepName)
	assert.Equal(t, StepFailed, last.Status)
}

func TestStepResultsOverwriteKeepsPosition(t *testing.T) {
	var results StepResults
	results.Set("a", StepResult{StepName: "a", Status: StepRunning})
	results.Set("b", StepResult{StepName: "b", Status: StepRunning})
	results.Set("a", StepResult{StepName: "a", Status: StepSuccess})

	assert.Equal(t, []string{"a", "b"}, results.Names())
	got, ok := results.Get("a")
	require.True(t, ok)
	assert.Equal(t, StepSuccess, got.Status)
}

func TestStepResultsJSONRoundTrip(t *testing.T) {
	var results StepResults
	results.Set("z-step", StepResult{StepName: "z-step", Status: StepSuccess, StartedAt: "2026-01-01T00:00:00Z"})
	results.Set("a-step", StepResult{StepName: "a-step", Status: StepFailed, Error: "boom"})

	data, err := json.Marshal(results)
	require.NoError(t, err)

	// Keys must appear in insertion order, not lexical order.
	var firstKey string
	for i := 1; i < len(data); i++ {
		if data[i] == '"' {
			end := i + 1
			for data[end] != '"' {
				end++
			}
			firstKey = string(data[i+1 : end])
			break
		}
	}
	assert.Equal(t, "z-step", firstKey)

	var decoded StepResults
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"z-step", "a-step"}, decoded.Names())
	got, ok := decoded.Get("a-step")
	require.True(t, ok)
	assert.Equal(t, "boom", got.Error)
}

func TestStepResultsZeroValue(t *testing.T) {
	var results StepResults
	data, err := json.Marshal(results)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, ok := results.Last()
	assert.False(t, ok)
}

func TestWorkflowRunJSONRoundTrip(t *testing.T) {
	run := WorkflowRun{
		UUID:       "run-1",
		WorkflowID: "wf-1",
		Status:     RunRunning,
		Payload:    map[string]any{"user_id": "u42"},
		StartedAt:  "2026-01-01T00:00:00Z",
	}
	run.StepResults.Set("s1", StepResult{
		StepName:  "s1",
		Status:    StepSuccess,
		StartedAt: "2026-01-01T00:00:01Z",
		Output:    json.RawMessage(`{"type":"delay","duration":1}`),
	})

	data, err := json.Marshal(&run)
	require.NoError(t, err)

	var decoded WorkflowRun
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, run.UUID, decoded.UUID)
	assert.Equal(t, RunRunning, decoded.Status)
	assert.Equal(t, "u42", decoded.Payload["user_id"])
	got, ok := decoded.StepResults.Get("s1")
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"delay","duration":1}`, string(got.Output))
}
