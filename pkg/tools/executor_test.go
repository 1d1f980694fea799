package tools_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	testdb "github.com/coretask-core/coretask/test/database"

	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEmbedder returns the same vector regardless of input text, enough
// to exercise search_tasks's hybrid/vector branches without caring about
// relevance.
type constEmbedder struct{ vec embedclient.Vector }

func (e constEmbedder) Embed(_ context.Context, _ string) (embedclient.Vector, error) {
	return e.vec, nil
}

func unitVector(dim int) embedclient.Vector {
	var v embedclient.Vector
	v[dim%embedclient.Dimension] = 1
	return v
}

// fakeSummarizer records every Signal call instead of scheduling real
// summarization work, so afterMutation's wiring can be asserted on.
type fakeSummarizer struct {
	mu      sync.Mutex
	signals []signalCall
}

type signalCall struct {
	userID        string
	entityType    string
	entityID      string
	activityCount int
	fieldsChanged []string
}

func (f *fakeSummarizer) Signal(_ context.Context, userID, entityType, entityID string, activityCount int, fieldsChanged []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signalCall{userID, entityType, entityID, activityCount, fieldsChanged})
}

func (f *fakeSummarizer) last() signalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signals[len(f.signals)-1]
}

func newTestExecutor(t *testing.T) (*tools.Executor, *fakeSummarizer) {
	t.Helper()
	client := testdb.NewTestClient(t)
	embedder := constEmbedder{vec: unitVector(0)}
	taskStore := entitystore.NewTaskStore(client.Client, embedder)
	projectStore := entitystore.NewProjectStore(client.Client, embedder)
	mem := memory.New(client.Client, embedder)
	summarizer := &fakeSummarizer{}
	return tools.NewExecutor(taskStore, projectStore, mem, embedder, summarizer), summarizer
}

func toolCall(id, name string, args map[string]interface{}) llmclient.ToolCall {
	b, _ := json.Marshal(args)
	return llmclient.ToolCall{ID: id, Name: name, Arguments: string(b)}
}

func TestExecutor_CreateTask_RunsMutationSideEffects(t *testing.T) {
	ctx := context.Background()
	exec, summarizer := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c1", tools.ToolCreateTask, map[string]interface{}{
		"title":    "Write launch brief",
		"priority": "high",
	}), "user-1", "session-1")

	require.False(t, result.IsError, result.Content)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &out))
	taskID, _ := out["id"].(string)
	require.NotEmpty(t, taskID)

	sig := summarizer.last()
	assert.Equal(t, "task", sig.entityType)
	assert.Equal(t, taskID, sig.entityID)

	events, err := exec.Memory.ListEpisodic(ctx, "user-1", memory.EpisodicListOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "task_created", events[0].ActionType)

	working, err := exec.Memory.GetWorking(ctx, "session-1", "current_task")
	require.NoError(t, err)
	require.NotNil(t, working)
	assert.Equal(t, taskID, working.Value)
}

func TestExecutor_CreateTask_RequiresTitle(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c2", tools.ToolCreateTask, map[string]interface{}{}), "user-1", "session-1")
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "title")
}

func TestExecutor_CompleteTask_SetsStatusAndActionType(t *testing.T) {
	ctx := context.Background()
	exec, summarizer := newTestExecutor(t)

	created := exec.Execute(ctx, toolCall("c3", tools.ToolCreateTask, map[string]interface{}{
		"title": "Ship release notes",
	}), "user-1", "session-1")
	require.False(t, created.IsError)
	var createdOut map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(created.Content), &createdOut))
	taskID := createdOut["id"].(string)

	result := exec.Execute(ctx, toolCall("c4", tools.ToolCompleteTask, map[string]interface{}{
		"id": taskID,
	}), "user-1", "session-1")
	require.False(t, result.IsError, result.Content)

	sig := summarizer.last()
	assert.Equal(t, taskID, sig.entityID)

	events, err := exec.Memory.ListEpisodic(ctx, "user-1", memory.EpisodicListOptions{ActionType: "task_completed"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got, err := exec.Tasks.Find(ctx, "user-1", entitystore.Filter{"id": taskID}, 1, entitystore.Sort{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExecutor_UpdateTask_UnknownID(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c5", tools.ToolUpdateTask, map[string]interface{}{
		"id":     "does-not-exist",
		"status": "done",
	}), "user-1", "session-1")
	assert.True(t, result.IsError)
}

func TestExecutor_AddNote_AppendsToTaskContext(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	created := exec.Execute(ctx, toolCall("c6", tools.ToolCreateTask, map[string]interface{}{
		"title": "Draft budget",
	}), "user-1", "session-1")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(created.Content), &out))
	taskID := out["id"].(string)

	result := exec.Execute(ctx, toolCall("c7", tools.ToolAddNote, map[string]interface{}{
		"entity_type": "task",
		"entity_id":   taskID,
		"note":        "waiting on finance sign-off",
	}), "user-1", "session-1")
	require.False(t, result.IsError, result.Content)

	got := exec.Execute(ctx, toolCall("c8", tools.ToolGetTask, map[string]interface{}{
		"id": taskID,
	}), "user-1", "session-1")
	require.False(t, got.IsError)
	assert.Contains(t, got.Content, "waiting on finance sign-off")
}

func TestExecutor_ListTasks_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	exec.Execute(ctx, toolCall("c9", tools.ToolCreateTask, map[string]interface{}{"title": "A", "status": "todo"}), "user-1", "s")
	exec.Execute(ctx, toolCall("c10", tools.ToolCreateTask, map[string]interface{}{"title": "B", "status": "done"}), "user-1", "s")

	result := exec.Execute(ctx, toolCall("c11", tools.ToolListTasks, map[string]interface{}{"status": "done"}), "user-1", "s")
	require.False(t, result.IsError)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0]["title"])
}

func TestExecutor_SearchTasks_RequiresQuery(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c12", tools.ToolSearchTasks, map[string]interface{}{}), "user-1", "s")
	assert.True(t, result.IsError)
}

func TestExecutor_SearchTasks_HybridFindsCreatedTask(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	exec.Execute(ctx, toolCall("c13", tools.ToolCreateTask, map[string]interface{}{
		"title":       "Draft quarterly budget",
		"description": "Pull together Q3 numbers",
	}), "user-1", "s")

	result := exec.Execute(ctx, toolCall("c14", tools.ToolSearchTasks, map[string]interface{}{
		"query": "quarterly budget",
	}), "user-1", "s")
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, "Draft quarterly budget")
}

func TestExecutor_ResolveDisambiguation_NoPending(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c15", tools.ToolResolveDisambiguation, map[string]interface{}{}), "user-1", "session-none")
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, `"resolved":false`)
}

func TestExecutor_ResolveDisambiguation_ConsumesHandoff(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	_, err := exec.Memory.CreateHandoff(ctx, "session-1", "router", tools.DisambiguationAgent, "clarify_target", map[string]interface{}{"candidates": []string{"task-a", "task-b"}})
	require.NoError(t, err)

	result := exec.Execute(ctx, toolCall("c16", tools.ToolResolveDisambiguation, map[string]interface{}{}), "user-1", "session-1")
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, `"resolved":true`)
	assert.Contains(t, result.Content, "task-a")
}

func TestExecutor_UnknownTool(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, toolCall("c17", "not_a_real_tool", map[string]interface{}{}), "user-1", "s")
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown tool")
}

func TestExecutor_MalformedArguments(t *testing.T) {
	ctx := context.Background()
	exec, _ := newTestExecutor(t)

	result := exec.Execute(ctx, llmclient.ToolCall{ID: "c18", Name: tools.ToolCreateTask, Arguments: "{not json"}, "user-1", "s")
	assert.True(t, result.IsError)
}
