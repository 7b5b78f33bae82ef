// Package connector defines the contract between the execution engine and
// the step implementations, and the registry that resolves a step's type
// tag to a connector instance. Connectors register themselves from init()
// in their own packages; wiring code imports them for side effects.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/kd17290/workflow-automation/internal/models"
)

// Connector type tags. The set is closed: adding a connector means a new
// step-config variant, a new output variant, and a registry entry.
const (
	TypeDelay   = "delay"
	TypeWebhook = "webhook"
)

// Connector executes one step type. The execution context maps names to
// values: the "payload" key holds the run payload, and each completed step
// contributes its output under the step name. Connectors must treat the
// context as read-only.
type Connector interface {
	// Type returns the tag this connector handles.
	Type() string
	// Execute runs the step and returns its typed output.
	Execute(ctx context.Context, step models.Step, execCtx map[string]any) (any, error)
	// ValidateConfig checks a step config at workflow-create time.
	ValidateConfig(config json.RawMessage) error
}

var (
	mu       sync.RWMutex
	registry = map[string]Connector{}
)

// Register adds a connector to the registry, replacing any previous entry
// for the same type.
func Register(c Connector) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Type()] = c
}

// Get resolves a type tag to its connector.
func Get(typeTag string) (Connector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[typeTag]
	if !ok {
		return nil, fmt.Errorf("unknown connector type: %s", typeTag)
	}
	return c, nil
}

// Types returns the registered type tags, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
