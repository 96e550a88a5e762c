package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/autoflow/agent"
)

func lookup(t *testing.T, k *Kinds, kind string) NodeFunc {
	t.Helper()
	fn, ok := k.Lookup(kind)
	require.True(t, ok, kind)
	return fn
}

func TestKinds_RegisterAndNames(t *testing.T) {
	k := NewKinds()
	require.NoError(t, RegisterBuiltins(k, BuiltinOptions{}))
	assert.Equal(t, []string{"delay", "fail", "http_request", "passthrough", "set"}, k.Names())
	assert.Error(t, k.Register(KindSet, setNode))
	assert.Error(t, k.Register("", setNode))
}

func TestPassthroughNode(t *testing.T) {
	ctx := context.Background()
	out, err := passthroughNode(ctx, NodeInput{TriggerData: "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", out)

	out, _ = passthroughNode(ctx, NodeInput{Inputs: map[string]any{"a": 1}})
	assert.Equal(t, 1, out)

	out, _ = passthroughNode(ctx, NodeInput{Inputs: map[string]any{"a": 1, "b": 2}})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestSetNode(t *testing.T) {
	out, err := setNode(context.Background(), NodeInput{Node: Node{Config: map[string]any{
		"values": map[string]any{"greeting": "hi"},
	}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi"}, out)
}

func TestDelayNode(t *testing.T) {
	start := time.Now()
	_, err := delayNode(context.Background(), NodeInput{Node: Node{Config: map[string]any{"duration": "20ms"}}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = delayNode(ctx, NodeInput{Node: Node{Config: map[string]any{"duration": "1h"}}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = delayNode(context.Background(), NodeInput{Node: Node{Config: map[string]any{"duration": "soon"}}})
	assert.Error(t, err)
}

func TestDecodeConfig_Durations(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"a": 500, "b": "2s", "c": 1.5}`), &raw))
	raw["d"] = 3 * time.Second
	raw["e"] = 250

	var cfg struct {
		A time.Duration `json:"a"`
		B time.Duration `json:"b"`
		C time.Duration `json:"c"`
		D time.Duration `json:"d"`
		E time.Duration `json:"e"`
	}
	require.NoError(t, DecodeConfig(raw, &cfg))
	assert.Equal(t, 500*time.Millisecond, cfg.A)
	assert.Equal(t, 2*time.Second, cfg.B)
	assert.Equal(t, 1500*time.Microsecond, cfg.C)
	assert.Equal(t, 3*time.Second, cfg.D)
	assert.Equal(t, 250*time.Millisecond, cfg.E)
}

func TestDelayNode_NumericMilliseconds(t *testing.T) {
	start := time.Now()
	_, err := delayNode(context.Background(), NodeInput{Node: Node{Config: map[string]any{"duration": float64(30)}}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFailNode(t *testing.T) {
	_, err := failNode(context.Background(), NodeInput{Node: Node{Config: map[string]any{"message": "nope"}}})
	assert.EqualError(t, err, "nope")
}

func TestHTTPRequestNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method": r.Method,
			"token":  r.Header.Get("X-Token"),
			"echo":   body,
		})
	}))
	defer srv.Close()

	fn := httpRequestNode(srv.Client())
	out, err := fn(context.Background(), NodeInput{Node: Node{Config: map[string]any{
		"url":     srv.URL + "/hook",
		"method":  "post",
		"headers": map[string]any{"X-Token": "abc"},
		"body":    map[string]any{"n": 1},
	}}})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, http.StatusOK, res["status"])
	body := res["body"].(map[string]any)
	assert.Equal(t, "POST", body["method"])
	assert.Equal(t, "abc", body["token"])
	assert.Equal(t, map[string]any{"n": float64(1)}, body["echo"])

	_, err = fn(context.Background(), NodeInput{Node: Node{Config: map[string]any{"url": srv.URL + "/missing"}}})
	assert.Error(t, err)

	_, err = fn(context.Background(), NodeInput{Node: Node{}})
	assert.Error(t, err)
}

func TestAgentNode(t *testing.T) {
	var seen string
	reasoner := agent.ReasonerFunc(func(_ context.Context, req agent.Request) (agent.Action, error) {
		seen = req.History[len(req.History)-1].Content
		return agent.FinalAction("summary"), nil
	})

	k := NewKinds()
	require.NoError(t, RegisterBuiltins(k, BuiltinOptions{
		Agent: func(scope string) *agent.Executor { return agent.NewExecutor(scope, reasoner, nil) },
	}))
	fn := lookup(t, k, KindAgent)

	out, err := fn(context.Background(), NodeInput{
		ExecutionID: "e1",
		Node:        Node{ID: "summarize", Config: map[string]any{"prompt": "Summarize {{.Trigger.title}} and {{.Inputs.fetch}}"}},
		TriggerData: map[string]any{"title": "report"},
		Inputs:      map[string]any{"fetch": "data"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Summarize report and data", seen)
	assert.Equal(t, "summary", out.(map[string]any)["response"])

	_, err = fn(context.Background(), NodeInput{Node: Node{ID: "x"}})
	assert.Error(t, err)
}
