package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/BaSui01/autoflow/agent"
)

// Built-in node kinds.
const (
	KindPassthrough = "passthrough"
	KindSet         = "set"
	KindDelay       = "delay"
	KindHTTPRequest = "http_request"
	KindFail        = "fail"
	KindAgent       = "agent"
)

// maxResponseBody caps the bytes an http_request node keeps.
const maxResponseBody = 1 << 20

// AgentFactory creates the executor an agent node runs on.
type AgentFactory func(scopeID string) *agent.Executor

// BuiltinOptions wires collaborators of the built-in kinds.
type BuiltinOptions struct {
	HTTPClient *http.Client
	// Agent enables the agent kind when set.
	Agent AgentFactory
}

// RegisterBuiltins registers the built-in node kinds.
func RegisterBuiltins(k *Kinds, opts BuiltinOptions) error {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	kinds := map[string]NodeFunc{
		KindPassthrough: passthroughNode,
		KindSet:         setNode,
		KindDelay:       delayNode,
		KindHTTPRequest: httpRequestNode(client),
		KindFail:        failNode,
	}
	if opts.Agent != nil {
		kinds[KindAgent] = agentNode(opts.Agent)
	}
	for name, fn := range kinds {
		if err := k.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// passthroughNode forwards its single input, the map of inputs when it has
// several, or the trigger data when it has none.
func passthroughNode(_ context.Context, in NodeInput) (any, error) {
	switch len(in.Inputs) {
	case 0:
		return in.TriggerData, nil
	case 1:
		for _, v := range in.Inputs {
			return v, nil
		}
	}
	return in.Inputs, nil
}

func setNode(_ context.Context, in NodeInput) (any, error) {
	var cfg struct {
		Values map[string]any `json:"values"`
	}
	if err := DecodeConfig(in.Node.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Values == nil {
		cfg.Values = map[string]any{}
	}
	return cfg.Values, nil
}

// delayNode waits config.duration, then passes its inputs through. The
// duration is a Go duration string ("500ms", "2s") or a number of
// milliseconds.
func delayNode(ctx context.Context, in NodeInput) (any, error) {
	var cfg struct {
		Duration time.Duration `json:"duration"`
	}
	if err := DecodeConfig(in.Node.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Duration < 0 {
		return nil, errors.New("duration must not be negative")
	}

	timer := time.NewTimer(cfg.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return passthroughNode(ctx, in)
}

func failNode(_ context.Context, in NodeInput) (any, error) {
	var cfg struct {
		Message string `json:"message"`
	}
	if err := DecodeConfig(in.Node.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Message == "" {
		cfg.Message = "node failed"
	}
	return nil, errors.New(cfg.Message)
}

type httpRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

func httpRequestNode(client *http.Client) NodeFunc {
	return func(ctx context.Context, in NodeInput) (any, error) {
		var cfg httpRequestConfig
		if err := DecodeConfig(in.Node.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.URL == "" {
			return nil, errors.New("url is required")
		}
		method := strings.ToUpper(cfg.Method)
		if method == "" {
			method = http.MethodGet
		}

		var body io.Reader
		if cfg.Body != nil {
			data, err := json.Marshal(cfg.Body)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		var decoded any = string(raw)
		if json.Valid(raw) {
			_ = json.Unmarshal(raw, &decoded)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%s %s returned %d", method, cfg.URL, resp.StatusCode)
		}
		return map[string]any{
			"status": resp.StatusCode,
			"body":   decoded,
		}, nil
	}
}

func agentNode(factory AgentFactory) NodeFunc {
	return func(ctx context.Context, in NodeInput) (any, error) {
		var cfg struct {
			Prompt string `json:"prompt"`
		}
		if err := DecodeConfig(in.Node.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Prompt == "" {
			return nil, errors.New("prompt is required")
		}

		tmpl, err := template.New(in.Node.ID).Option("missingkey=zero").Parse(cfg.Prompt)
		if err != nil {
			return nil, fmt.Errorf("parse prompt: %w", err)
		}
		var prompt bytes.Buffer
		if err := tmpl.Execute(&prompt, map[string]any{
			"Trigger": in.TriggerData,
			"Inputs":  in.Inputs,
		}); err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}

		exec := factory(fmt.Sprintf("workflow:%s:%s", in.ExecutionID, in.Node.ID))
		res, err := exec.Execute(ctx, prompt.String())
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, fmt.Errorf("agent failed: %s", res.Error)
		}
		return map[string]any{
			"response":   res.Response,
			"iterations": res.Iterations,
		}, nil
	}
}
