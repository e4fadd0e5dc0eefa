package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/hive/pkg/orchestrator"
	"github.com/blackcoderx/hive/pkg/runner"
	"github.com/blackcoderx/hive/pkg/sandbox"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/transport"
)

type fakeSender struct {
	nodeID, envID string
	ssl           bool
	result        *orchestrator.Result
	err           error
}

func (f *fakeSender) Execute(_ context.Context, nodeID, envID string, ssl bool) (*orchestrator.Result, error) {
	f.nodeID, f.envID, f.ssl = nodeID, envID, ssl
	return f.result, f.err
}

type fakeRunner struct {
	params runner.Params
}

func (f *fakeRunner) Run(_ context.Context, p runner.Params) (*runner.RunResult, error) {
	f.params = p
	return &runner.RunResult{Name: "Users API", Total: 1, Passed: 1}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, NewHandler(Config{Sender: &fakeSender{}}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSend(t *testing.T) {
	sender := &fakeSender{result: &orchestrator.Result{
		Response: &transport.Response{Status: 201, Headers: map[string]string{}},
		Console:  []string{"[request] hi"},
	}}
	h := NewHandler(Config{Sender: sender, SSLVerify: true})

	w := do(t, h, http.MethodPost, "/nodes/req-1/send", `{"environment_id":"dev","ssl_verify":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "req-1", sender.nodeID)
	assert.Equal(t, "dev", sender.envID)
	assert.False(t, sender.ssl)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []any{"[request] hi"}, got["console"])
	assert.Equal(t, float64(201), got["response"].(map[string]any)["status"])
	assert.NotContains(t, got, "error")
}

func TestSend_DefaultsSSLVerifyAndEmptyBody(t *testing.T) {
	sender := &fakeSender{result: &orchestrator.Result{}}
	w := do(t, NewHandler(Config{Sender: sender, SSLVerify: true}), http.MethodPost, "/nodes/x/send", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sender.ssl)
	assert.Empty(t, sender.envID)
}

func TestSend_EmptyChunkedBody(t *testing.T) {
	sender := &fakeSender{result: &orchestrator.Result{}}
	req := httptest.NewRequest(http.MethodPost, "/nodes/x/send", strings.NewReader(""))
	req.ContentLength = -1
	w := httptest.NewRecorder()

	NewHandler(Config{Sender: sender, SSLVerify: true}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "x", sender.nodeID)
	assert.True(t, sender.ssl)
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name     string
		sender   *fakeSender
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "bad body",
			sender:   &fakeSender{},
			body:     "{",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid request body",
		},
		{
			name:     "missing node",
			sender:   &fakeSender{err: fmt.Errorf("resolve chain: %w", storage.ErrNotFound)},
			body:     `{}`,
			wantCode: http.StatusNotFound,
			wantErr:  "resolve chain: not found",
		},
		{
			name:     "store failure",
			sender:   &fakeSender{err: errors.New("redis down")},
			body:     `{}`,
			wantCode: http.StatusInternalServerError,
			wantErr:  "redis down",
		},
		{
			name:     "persist failure keeps result",
			sender:   &fakeSender{result: &orchestrator.Result{Console: []string{}}, err: errors.New("disk full")},
			body:     `{}`,
			wantCode: http.StatusOK,
			wantErr:  "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, NewHandler(Config{Sender: tt.sender}), http.MethodPost, "/nodes/n/send", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantErr, got["error"])
		})
	}
}

func TestRun(t *testing.T) {
	r := &fakeRunner{}
	h := NewHandler(Config{Sender: &fakeSender{}, Runner: r})

	w := do(t, h, http.MethodPost, "/nodes/col/run", `{"environment_id":"dev","stop_on_failure":true,"requests_per_second":5}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, runner.Params{RootID: "col", EnvironmentID: "dev", StopOnFailure: true, RequestsPerSecond: 5}, r.params)
	assert.Contains(t, w.Body.String(), `"name":"Users API"`)
}

func TestRun_NotMountedWithoutRunner(t *testing.T) {
	w := do(t, NewHandler(Config{Sender: &fakeSender{}}), http.MethodPost, "/nodes/col/run", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnvironments(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveEnvironment(context.Background(), &storage.Environment{ID: "dev", Name: "Development"}))

	w := do(t, NewHandler(Config{Sender: &fakeSender{}, Environments: store}), http.MethodGet, "/environments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Development"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveNode(ctx, &storage.Node{ID: "req", Kind: storage.KindRequest, Method: "GET", URL: "http://127.0.0.1:1"}))

	reg := prometheus.NewRegistry()
	client := transport.NewClient()
	o := orchestrator.New(store, store, client, sandbox.New(client), orchestrator.WithMetrics(orchestrator.NewMetrics(reg)))
	h := NewHandler(Config{Sender: o, Gatherer: reg})

	w := do(t, h, http.MethodPost, "/nodes/req/send", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transport_error"`)

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `hive_sends_total{outcome="transport_fault"} 1`)
}
