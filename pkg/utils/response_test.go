package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, http.StatusConflict, "busy")

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"busy"}`, resp.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ada"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "Ada", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	require.Error(t, DecodeJSON(req, &dst))
}

func TestSSEFrames(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	require.NoError(t, SendSSEComment(resp, resp, "ping"))
	require.NoError(t, SendSSEData(resp, resp, []byte(`{"type":"event"}`)))

	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Equal(t, ": ping\n\ndata: {\"type\":\"event\"}\n\n", resp.Body.String())
	assert.True(t, resp.Flushed)
}
