package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/types"
)

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  types.ErrorCode
	}{
		{"validation", types.NewValidationError("bad"), http.StatusBadRequest, types.ErrInvalidRequest},
		{"unauthorized", types.NewUnauthorizedError("who"), http.StatusUnauthorized, types.ErrUnauthorized},
		{"forbidden", types.NewForbiddenError("no"), http.StatusForbidden, types.ErrForbidden},
		{"not found", types.NewNotFoundError("gone"), http.StatusNotFound, types.ErrNotFound},
		{"code without status", types.NewError(types.ErrAgentBusy, "busy"), http.StatusConflict, types.ErrAgentBusy},
		{"timeout", types.NewTimeoutError("slow"), http.StatusGatewayTimeout, types.ErrTimeout},
		{"plain error", errors.New("db exploded"), http.StatusInternalServerError, types.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantErr), resp.Error.Code)
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("password=hunter2"), nil)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"unknown field", `{"name":"x","other":1}`, true},
		{"trailing object", `{"name":"x"}{"name":"y"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.body == "" {
				r.Body = http.NoBody
			}
			var p payload
			err := DecodeJSONBody(httptest.NewRecorder(), r, &p)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", p.Name)
		})
	}
}
