package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kd17290/workflow-automation/internal/cache"
	"github.com/kd17290/workflow-automation/internal/messaging"
	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/internal/storage"

	_ "github.com/kd17290/workflow-automation/pkg/connector/delay"
	_ "github.com/kd17290/workflow-automation/pkg/connector/webhook"
)

type sent struct {
	topic string
	value any
	key   string
}

// fakeSender records publishes and can be told to fail.
type fakeSender struct {
	mu    sync.Mutex
	sends []sent
	err   error
}

func (f *fakeSender) Send(ctx context.Context, topic string, value any, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, sent{topic: topic, value: value, key: key})
	return nil
}

const testTriggerTopic = "workflow.trigger"

func newService(t *testing.T) (*WorkflowService, *storage.Backends, *fakeSender) {
	t.Helper()
	backends, err := storage.NewBackends(storage.TypeInMemory, "", nil)
	require.NoError(t, err)
	sender := &fakeSender{}
	svc := New(backends, nil, sender, testTriggerTopic)
	return svc, backends, sender
}

func delayWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:  "d",
		Steps: []models.Step{{Name: "s1", Type: "delay", Config: []byte(`{"duration":0}`)}},
	}
}

func TestCreateWorkflowValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		workflow *models.WorkflowDefinition
		wantErr  string
	}{
		{
			name:     "empty name",
			workflow: &models.WorkflowDefinition{Steps: []models.Step{{Name: "s", Type: "delay", Config: []byte(`{}`)}}},
			wantErr:  "workflow name must not be empty",
		},
		{
			name:     "no steps",
			workflow: &models.WorkflowDefinition{Name: "w"},
			wantErr:  "at least one step",
		},
		{
			name: "duplicate step names",
			workflow: &models.WorkflowDefinition{Name: "w", Steps: []models.Step{
				{Name: "s", Type: "delay", Config: []byte(`{"duration":0}`)},
				{Name: "s", Type: "delay", Config: []byte(`{"duration":0}`)},
			}},
			wantErr: "duplicate step name",
		},
		{
			name: "unknown connector type",
			workflow: &models.WorkflowDefinition{Name: "w", Steps: []models.Step{
				{Name: "s", Type: "teleport", Config: []byte(`{}`)},
			}},
			wantErr: "unknown connector type",
		},
		{
			name: "bad config",
			workflow: &models.WorkflowDefinition{Name: "w", Steps: []models.Step{
				{Name: "s", Type: "delay", Config: []byte(`{"duration":-5}`)},
			}},
			wantErr: "must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateWorkflow(ctx, tt.workflow)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateAndGetWorkflow(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	id, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "d", got.Name)

	_, err = svc.GetWorkflow(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTrigger(t *testing.T) {
	svc, backends, sender := newService(t)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)

	runID, err := svc.Trigger(ctx, wfID, map[string]any{"user_id": "u42"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	// The run is persisted as PENDING before the event goes out.
	run, err := backends.Runs.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)
	assert.Equal(t, wfID, run.WorkflowID)
	assert.Equal(t, "u42", run.Payload["user_id"])
	assert.NotEmpty(t, run.StartedAt)

	// The trigger event is keyed by the run uuid.
	require.Len(t, sender.sends, 1)
	assert.Equal(t, testTriggerTopic, sender.sends[0].topic)
	assert.Equal(t, runID, sender.sends[0].key)
	event, ok := sender.sends[0].value.(messaging.WorkflowTriggerEvent)
	require.True(t, ok)
	assert.Equal(t, runID, event.RunID)
	assert.Equal(t, wfID, event.WorkflowID)
	assert.Equal(t, "u42", event.Payload["user_id"])
}

func TestTriggerNilPayloadDefaultsToEmpty(t *testing.T) {
	svc, backends, _ := newService(t)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)

	runID, err := svc.Trigger(ctx, wfID, nil)
	require.NoError(t, err)

	run, err := backends.Runs.Get(ctx, runID)
	require.NoError(t, err)
	assert.NotNil(t, run.Payload)
	assert.Empty(t, run.Payload)
}

func TestTriggerUnknownWorkflowCreatesNoRun(t *testing.T) {
	svc, backends, sender := newService(t)
	ctx := context.Background()

	_, err := svc.Trigger(ctx, "ghost", map[string]any{})
	require.ErrorIs(t, err, ErrNotFound)

	runs, err := backends.Runs.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, sender.sends)
}

func TestTriggerPublishFailureFailsRun(t *testing.T) {
	svc, backends, sender := newService(t)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)

	sender.err = errors.New("broker unreachable")
	_, err = svc.Trigger(ctx, wfID, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to queue workflow")

	// The run record stays queryable, marked FAILED.
	runs, err := backends.Runs.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "Failed to queue workflow")
	assert.Contains(t, runs[0].Error, "broker unreachable")
	assert.NotEmpty(t, runs[0].CompletedAt)
}

func TestGetWorkflowReadThroughCache(t *testing.T) {
	backends, err := storage.NewBackends(storage.TypeInMemory, "", nil)
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	svc := New(backends, c, &fakeSender{}, testTriggerTopic)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)

	// First read populates the cache; equal to the storage copy.
	fromAPI, err := svc.GetWorkflow(ctx, wfID)
	require.NoError(t, err)
	fromStorage, err := backends.Workflows.Get(ctx, wfID)
	require.NoError(t, err)
	assert.Equal(t, fromStorage.Name, fromAPI.Name)
	assert.Equal(t, fromStorage.UUID, fromAPI.UUID)

	// Deleting from storage leaves the cached copy readable until TTL
	// expiry; the cache never invalidates on write.
	_, err = backends.Workflows.Delete(ctx, wfID)
	require.NoError(t, err)
	stale, err := svc.GetWorkflow(ctx, wfID)
	require.NoError(t, err)
	assert.Equal(t, wfID, stale.UUID)

	mr.FastForward(cache.WorkflowTTL + time.Second)
	_, err = svc.GetWorkflow(ctx, wfID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunCaching(t *testing.T) {
	backends, err := storage.NewBackends(storage.TypeInMemory, "", nil)
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	svc := New(backends, c, &fakeSender{}, testTriggerTopic)
	ctx := context.Background()

	run := &models.WorkflowRun{WorkflowID: "wf", Status: models.RunPending, Payload: map[string]any{}, StartedAt: models.NowISO()}
	runID, err := backends.Runs.Create(ctx, run)
	require.NoError(t, err)

	got, err := svc.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, got.Status)
	assert.True(t, mr.Exists(cache.RunKey(runID)))

	_, err = svc.GetRun(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteWorkflow(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorkflow(ctx, wfID))
	require.ErrorIs(t, svc.DeleteWorkflow(ctx, wfID), ErrNotFound)
	_, err = svc.GetWorkflow(ctx, wfID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteRunEndToEnd(t *testing.T) {
	svc, backends, _ := newService(t)
	ctx := context.Background()

	wfID, err := svc.CreateWorkflow(ctx, delayWorkflow())
	require.NoError(t, err)
	runID, err := svc.Trigger(ctx, wfID, map[string]any{})
	require.NoError(t, err)

	require.NoError(t, svc.ExecuteRun(ctx, runID))

	run, err := backends.Runs.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, run.Status)
	result, ok := run.StepResults.Get("s1")
	require.True(t, ok)
	assert.Equal(t, models.StepSuccess, result.Status)
	assert.JSONEq(t, `{"type":"delay","duration":0,"message":"Delayed for 0 seconds"}`, string(result.Output))
}
