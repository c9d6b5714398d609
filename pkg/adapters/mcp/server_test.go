package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/proctrace/pkg/adapters/memory"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(memory.NewStore())
	return NewServer(reg, "test"), reg
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestListProcesses(t *testing.T) {
	ctx := context.Background()
	s, reg := newServer(t)
	require.NoError(t, reg.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/1"))
	_, err := reg.RegisterStep(ctx, domain.StepCheck, "SUBMIT/1", "")
	require.NoError(t, err)

	resp, err := s.handleListProcesses(ctx, callRequest("list_processes", nil), nil)
	require.NoError(t, err)
	require.Len(t, resp.Processes, 1)
	got := resp.Processes[0]
	assert.Equal(t, "SUBMIT/1", got.Name)
	assert.Equal(t, "SUBMIT", got.Type)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, 1, got.Steps)
}

// finishingProcesses reports names that have already finished by the time they are looked up.
type finishingProcesses struct {
	*registry.Registry
	finished map[string]*domain.Process
}

func (f finishingProcesses) Names() []string {
	names := f.Registry.Names()
	for name := range f.finished {
		names = append(names, name)
	}
	return names
}

func (f finishingProcesses) GetProcess(ctx context.Context, name string) (*domain.Process, bool) {
	if p, ok := f.finished[name]; ok {
		return p, true
	}
	return f.Registry.GetProcess(ctx, name)
}

func TestListProcesses_SkipsFinished(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(memory.NewStore())
	require.NoError(t, reg.RegisterProcess(ctx, domain.ProcessSubmit, "SUBMIT/live"))

	done := domain.NewProcess("k", domain.ProcessSubmit, time.Now())
	done.Finish(domain.StatusFinished, time.Now())
	s := NewServer(finishingProcesses{Registry: reg, finished: map[string]*domain.Process{"SUBMIT/done": done}}, "test")

	resp, err := s.handleListProcesses(ctx, callRequest("list_processes", nil), nil)
	require.NoError(t, err)
	require.Len(t, resp.Processes, 1)
	assert.Equal(t, "SUBMIT/live", resp.Processes[0].Name)
}

func TestGetProcess(t *testing.T) {
	ctx := context.Background()
	s, reg := newServer(t)
	require.NoError(t, reg.RegisterProcess(ctx, domain.ProcessExplain, "EXPLAIN/7"))

	result, err := s.handleGetProcess(ctx, callRequest("get_process", map[string]any{"name": "EXPLAIN/7"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var p domain.Process
	require.NoError(t, json.Unmarshal([]byte(text.Text), &p))
	assert.Equal(t, domain.ProcessExplain, p.Type)
	assert.True(t, p.Log.Contains("Start Process:EXPLAIN/7"))
}

func TestGetProcess_Errors(t *testing.T) {
	s, _ := newServer(t)

	result, err := s.handleGetProcess(context.Background(), callRequest("get_process", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleGetProcess(context.Background(), callRequest("get_process", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
