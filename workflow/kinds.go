package workflow

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeInput is what a node function receives. Inputs holds read-only copies
// of the outputs of the node's direct dependencies keyed by node id.
type NodeInput struct {
	ExecutionID string
	Node        Node
	TriggerData any
	Inputs      map[string]any
}

// NodeFunc executes one node and returns its output.
type NodeFunc func(ctx context.Context, in NodeInput) (any, error)

// Kinds maps node kinds to their implementation.
type Kinds struct {
	mu    sync.RWMutex
	funcs map[string]NodeFunc
}

// NewKinds creates an empty kind registry.
func NewKinds() *Kinds {
	return &Kinds{funcs: make(map[string]NodeFunc)}
}

// Register adds a node kind.
func (k *Kinds) Register(kind string, fn NodeFunc) error {
	if kind == "" || fn == nil {
		return fmt.Errorf("node kind and function are required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.funcs[kind]; exists {
		return fmt.Errorf("node kind %s already registered", kind)
	}
	k.funcs[kind] = fn
	return nil
}

// Lookup returns the function for kind.
func (k *Kinds) Lookup(kind string) (NodeFunc, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fn, ok := k.funcs[kind]
	return fn, ok
}

// Names returns the registered kinds sorted.
func (k *Kinds) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.funcs))
	for name := range k.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeConfig decodes a node's config map into out. Duration fields accept
// strings such as "250ms" or plain numbers, which are milliseconds like the
// TimeoutMs fields.
func DecodeConfig(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			millisToDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("decode node config: %w", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// millisToDurationHookFunc reads JSON numbers bound for a time.Duration as
// milliseconds. Values that already are durations pass through.
func millisToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		v := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Float32, reflect.Float64:
			return time.Duration(v.Float() * float64(time.Millisecond)), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(v.Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(v.Uint()) * time.Millisecond, nil
		}
		return data, nil
	}
}
