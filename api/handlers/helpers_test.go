package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/internal/store/memory"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/types"
	"github.com/BaSui01/autoflow/workflow"
)

type testEnv struct {
	store  *memory.Store
	runner *workflow.Runner
	router chi.Router
}

// newTestEnv wires the workflow and webhook handlers over the in-memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	kinds := workflow.NewKinds()
	require.NoError(t, workflow.RegisterBuiltins(kinds, workflow.BuiltinOptions{}))
	runner := workflow.NewRunner(st, st, kinds, workflow.WithLogger(zap.NewNop()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	wh := NewWorkflowHandler(st, st, runner, zap.NewNop())
	hh := NewWebhookHandler(st, st, trigger.NewManager(st, st, runner), 0, zap.NewNop())

	r := chi.NewRouter()
	r.Post("/api/workflows/execute", wh.HandleExecute)
	r.Post("/api/workflows", wh.HandleCreate)
	r.Get("/api/workflows", wh.HandleList)
	r.Get("/api/workflows/{id}", wh.HandleGet)
	r.Get("/api/executions/{id}", wh.HandleGetExecution)
	r.Post("/api/webhooks", hh.HandleRegister)
	r.Delete("/api/webhooks/registrations/{endpoint}", hh.HandleDelete)
	r.HandleFunc("/api/webhooks/{endpoint}", hh.HandleTrigger)

	return &testEnv{store: st, runner: runner, router: r}
}

// do sends a request as userID; an empty userID is unauthenticated.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(types.WithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) saveWorkflow(t *testing.T, wf *workflow.Workflow) {
	t.Helper()
	require.NoError(t, e.store.SaveWorkflow(context.Background(), wf))
}

func simpleWorkflow(id, owner string) *workflow.Workflow {
	return &workflow.Workflow{ID: id, OwnerID: owner, Nodes: []workflow.Node{
		{ID: "a", Kind: workflow.KindPassthrough},
		{ID: "b", Kind: workflow.KindPassthrough, DependsOn: []string{"a"}},
	}}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeAs[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}
