package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single tool call when the definition sets none.
const DefaultTimeout = 30 * time.Second

var (
	// ErrToolNotFound is returned when no tool is registered under a name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrRateLimited is returned when a tool's call budget is exhausted.
	ErrRateLimited = errors.New("tool rate limit exceeded")
	// ErrToolTimeout is returned when a tool does not finish in time.
	ErrToolTimeout = errors.New("tool execution timeout")
)

// Invoker calls named tools. It is the only tool dependency of the agent
// executor.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
	Definitions() []Definition
}

// Func is the signature of a tool implementation.
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Definition describes a tool to the reasoning backend.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// RateLimit allows MaxCalls per Window with a burst of MaxCalls.
type RateLimit struct {
	MaxCalls int
	Window   time.Duration
}

// Options tunes a single registration.
type Options struct {
	Timeout   time.Duration
	RateLimit *RateLimit
}

type entry struct {
	def     Definition
	fn      Func
	timeout time.Duration
	schema  *jsonschema.Schema
	limiter *rate.Limiter
}

// Registry is the default Invoker.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. The parameter schema is compiled once here.
func (r *Registry) Register(def Definition, fn Func, opts Options) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %s: nil function", def.Name)
	}

	e := &entry{def: def, fn: fn, timeout: opts.Timeout}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if len(def.Parameters) > 0 {
		schema, err := compileSchema(def.Name, def.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: %w", def.Name, err)
		}
		e.schema = schema
	}
	if rl := opts.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rate.Every(rl.Window / time.Duration(rl.MaxCalls))
		e.limiter = rate.NewLimiter(every, rl.MaxCalls)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.entries[def.Name] = e

	r.logger.Info("tool registered", zap.String("name", def.Name), zap.Duration("timeout", e.timeout))
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	delete(r.entries, name)
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke validates args, applies the rate limit and runs the tool under its
// timeout.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := e.validate(args); err != nil {
		return nil, err
	}
	if e.limiter != nil && !e.limiter.Allow() {
		r.logger.Warn("rate limit exceeded", zap.String("name", name))
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, name)
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// Buffered so the tool goroutine can exit after a timeout.
	done := make(chan outcome, 1)
	go func() {
		res, err := e.fn(execCtx, args)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			r.logger.Debug("tool execution failed",
				zap.String("name", name),
				zap.Error(out.err),
				zap.Duration("duration", time.Since(start)))
			return nil, out.err
		}
		r.logger.Debug("tool executed",
			zap.String("name", name),
			zap.Duration("duration", time.Since(start)))
		return out.res, nil
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, name, e.timeout)
	}
}

func (e *entry) validate(args json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if e.schema == nil {
		return nil
	}
	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
