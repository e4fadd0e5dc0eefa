package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/hive/pkg/orchestrator"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/transport"
)

type fakeExecutor struct {
	sent    []string
	results map[string]*orchestrator.Result
	errs    map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, nodeID, _ string, _ bool) (*orchestrator.Result, error) {
	f.sent = append(f.sent, nodeID)
	if err := f.errs[nodeID]; err != nil {
		return nil, err
	}
	if res, ok := f.results[nodeID]; ok {
		return res, nil
	}
	return &orchestrator.Result{Response: &transport.Response{Status: 200}}, nil
}

// seedTree builds:
//
//	col
//	├── r1 (order 0)
//	├── f (order 1)
//	│   ├── r3 (order 1)
//	│   └── r2 (order 0)
//	└── r4 (order 2)
func seedTree(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	nodes := []storage.Node{
		{ID: "col", Kind: storage.KindCollection, Name: "Users API"},
		{ID: "r1", ParentID: "col", Kind: storage.KindRequest, Name: "r1", Order: 0},
		{ID: "f", ParentID: "col", Kind: storage.KindFolder, Name: "f", Order: 1},
		{ID: "r3", ParentID: "f", Kind: storage.KindRequest, Name: "r3", Order: 1},
		{ID: "r2", ParentID: "f", Kind: storage.KindRequest, Name: "r2", Order: 0},
		{ID: "r4", ParentID: "col", Kind: storage.KindRequest, Name: "r4", Order: 2},
	}
	for i := range nodes {
		require.NoError(t, store.SaveNode(ctx, &nodes[i]))
	}
	return store
}

func TestRun_TreeOrder(t *testing.T) {
	exec := &fakeExecutor{}
	result, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "col"})
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, exec.sent)
	assert.Equal(t, "Users API", result.Name)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Passed)
	assert.Zero(t, result.Failed)
}

func TestRun_FolderRoot(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "f"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, exec.sent)
}

func TestRun_RequestRoot(t *testing.T) {
	exec := &fakeExecutor{}
	result, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "r3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, exec.sent)
	assert.Equal(t, 1, result.Total)
}

func TestRun_FailureKinds(t *testing.T) {
	exec := &fakeExecutor{
		results: map[string]*orchestrator.Result{
			"r1": {ScriptError: "Error: boom"},
			"r2": {Response: &transport.Response{}, TransportError: "connection refused"},
			"r3": {Response: &transport.Response{Status: 200}, PostErrors: []string{"[request] Error: bad"}},
		},
		errs: map[string]error{"r4": errors.New("store offline")},
	}

	result, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "col"})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, "pre-request script: Error: boom", result.Requests[0].Error)
	assert.Equal(t, "request failed: connection refused", result.Requests[1].Error)
	assert.Equal(t, "post-request script: [request] Error: bad", result.Requests[2].Error)
	assert.Equal(t, 200, result.Requests[2].StatusCode)
	assert.Equal(t, "store offline", result.Requests[3].Error)
}

func TestRun_ErrorTextInConsoleIsNotAFailure(t *testing.T) {
	exec := &fakeExecutor{
		results: map[string]*orchestrator.Result{
			"r3": {Response: &transport.Response{Status: 200}, Console: []string{"[request] ][ERROR] x"}},
		},
	}

	result, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "r3"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Passed)
	assert.Empty(t, result.Requests[0].Error)
}

func TestRun_StopOnFailure(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*orchestrator.Result{
		"r2": {ScriptError: "Error: boom"},
	}}

	result, err := New(exec, seedTree(t), nil).Run(context.Background(), Params{RootID: "col", StopOnFailure: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, exec.sent)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, Format(result), "Skipped: 2")
}

func TestRun_RateLimitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeExecutor{}, seedTree(t), nil).Run(ctx, Params{RootID: "col", RequestsPerSecond: 1})
	assert.Error(t, err)
}

func TestRun_MissingRoot(t *testing.T) {
	_, err := New(&fakeExecutor{}, seedTree(t), nil).Run(context.Background(), Params{RootID: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestFormat(t *testing.T) {
	out := Format(&RunResult{
		Name:  "Users API",
		Total: 2, Passed: 1, Failed: 1,
		Requests: []RequestResult{
			{Name: "list", Passed: true, StatusCode: 200},
			{Name: "create", StatusCode: 500, Error: "post-request script: [request][ERROR] x"},
		},
	})

	assert.Contains(t, out, "✗ Run: Users API - FAILURES DETECTED")
	assert.Contains(t, out, "1. ✓ list")
	assert.Contains(t, out, "2. ✗ create")
	assert.Contains(t, out, "Error: post-request script")
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	result := &RunResult{Name: "Users API", Total: 1, Passed: 1}

	path, err := Save(dir, result)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "users-api-")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded RunResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Users API", decoded.Name)
}
