// Package webhook provides the built-in HTTP call connector.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/pkg/connector"
)

// Config is the webhook step configuration.
type Config struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

// Output is the webhook step's typed output. ResponseData holds the decoded
// JSON body when the endpoint returned JSON, the raw text otherwise.
type Output struct {
	Type         string `json:"type"`
	StatusCode   int    `json:"status_code"`
	ResponseData any    `json:"response_data"`
	URL          string `json:"url"`
	Method       string `json:"method"`
}

var client = &http.Client{Timeout: 30 * time.Second}

type webhookConnector struct{}

func (webhookConnector) Type() string { return connector.TypeWebhook }

// Execute makes the configured HTTP request. Transport failures are errors;
// non-2xx responses are reported through the output, not as failures.
func (webhookConnector) Execute(ctx context.Context, step models.Step, execCtx map[string]any) (any, error) {
	var cfg Config
	if err := json.Unmarshal(step.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	method := strings.ToUpper(cfg.Method)

	var reqBody io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut:
		resolved := resolvePlaceholders(cfg.Body, execCtx)
		data, err := json.Marshal(resolved)
		if err != nil {
			return nil, fmt.Errorf("encode webhook body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", cfg.Method)
	}

	log.Printf("Making %s request to %s", method, cfg.URL)
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request to %s failed: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	var responseData any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &responseData); err != nil {
			responseData = string(raw)
		}
	} else {
		responseData = string(raw)
	}

	return Output{
		Type:         connector.TypeWebhook,
		StatusCode:   resp.StatusCode,
		ResponseData: responseData,
		URL:          cfg.URL,
		Method:       method,
	}, nil
}

// ValidateConfig rejects empty URLs and unsupported methods.
func (webhookConnector) ValidateConfig(config json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("invalid webhook config: %w", err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("webhook url must not be empty")
	}
	switch strings.ToUpper(cfg.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return nil
	default:
		return fmt.Errorf("unsupported HTTP method: %s", cfg.Method)
	}
}

// resolvePlaceholders walks data, replacing string values of the exact form
// "${key}" with the context value stored under the top-level key. Dotted
// paths are not traversed and stay literal, as do unknown keys.
func resolvePlaceholders(data any, execCtx map[string]any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = resolvePlaceholders(item, execCtx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolvePlaceholders(item, execCtx)
		}
		return out
	case string:
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			key := v[2 : len(v)-1]
			if value, ok := execCtx[key]; ok {
				return value
			}
		}
		return v
	default:
		return data
	}
}

func init() {
	connector.Register(webhookConnector{})
}

var _ connector.Connector = (*webhookConnector)(nil)
