// Package delay provides the built-in sleep connector.
package delay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/pkg/connector"
)

// Config is the delay step configuration.
type Config struct {
	// Duration to pause, in seconds.
	Duration int `json:"duration"`
}

// Output is the delay step's typed output.
type Output struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
	Message  string `json:"message"`
}

type delayConnector struct{}

func (delayConnector) Type() string { return connector.TypeDelay }

// Execute pauses for the configured duration, honouring cancellation.
func (delayConnector) Execute(ctx context.Context, step models.Step, execCtx map[string]any) (any, error) {
	var cfg Config
	if err := json.Unmarshal(step.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid delay config: %w", err)
	}

	log.Printf("Delaying for %d seconds", cfg.Duration)
	timer := time.NewTimer(time.Duration(cfg.Duration) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return Output{
		Type:     connector.TypeDelay,
		Duration: cfg.Duration,
		Message:  fmt.Sprintf("Delayed for %d seconds", cfg.Duration),
	}, nil
}

// ValidateConfig rejects malformed or negative durations.
func (delayConnector) ValidateConfig(config json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid delay config: %w", err)
	}
	if cfg.Duration < 0 {
		return fmt.Errorf("delay duration must not be negative")
	}
	return nil
}

func init() {
	connector.Register(delayConnector{})
}

var _ connector.Connector = (*delayConnector)(nil)
