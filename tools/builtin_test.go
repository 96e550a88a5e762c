package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuiltinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, nil))
	return r
}

func TestBuiltins_Registered(t *testing.T) {
	t.Parallel()

	r := newBuiltinRegistry(t)
	for _, name := range []string{"current_time", "http_get", "calculator"} {
		assert.True(t, r.Has(name), name)
	}
}

func TestCalculator(t *testing.T) {
	t.Parallel()

	r := newBuiltinRegistry(t)
	tests := []struct {
		args    string
		want    float64
		wantErr bool
	}{
		{args: `{"op":"add","a":2,"b":3}`, want: 5},
		{args: `{"op":"sub","a":2,"b":3}`, want: -1},
		{args: `{"op":"mul","a":2,"b":3}`, want: 6},
		{args: `{"op":"div","a":3,"b":2}`, want: 1.5},
		{args: `{"op":"div","a":3,"b":0}`, wantErr: true},
		{args: `{"op":"pow","a":3,"b":2}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			out, err := r.Invoke(context.Background(), "calculator", json.RawMessage(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var res map[string]float64
			require.NoError(t, json.Unmarshal(out, &res))
			assert.InDelta(t, tt.want, res["result"], 1e-9)
		})
	}
}

func TestCurrentTime(t *testing.T) {
	t.Parallel()

	r := newBuiltinRegistry(t)
	out, err := r.Invoke(context.Background(), "current_time", json.RawMessage(`{"timezone":"UTC"}`))
	require.NoError(t, err)

	var res map[string]string
	require.NoError(t, json.Unmarshal(out, &res))
	_, err = time.Parse(time.RFC3339, res["time"])
	assert.NoError(t, err)

	_, err = r.Invoke(context.Background(), "current_time", json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	assert.Error(t, err)
}

func TestHTTPGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", maxHTTPBody+10)))
	}))
	defer srv.Close()

	r := newBuiltinRegistry(t)
	out, err := r.Invoke(context.Background(), "http_get", json.RawMessage(`{"url":"`+srv.URL+`"}`))
	require.NoError(t, err)

	var res struct {
		Status    int    `json:"status"`
		Body      string `json:"body"`
		Truncated bool   `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Len(t, res.Body, maxHTTPBody)
	assert.True(t, res.Truncated)

	_, err = r.Invoke(context.Background(), "http_get", json.RawMessage(`{"url":"ftp://example.com"}`))
	assert.Error(t, err)
}
