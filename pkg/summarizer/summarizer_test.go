package summarizer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	testdb "github.com/coretask-core/coretask/test/database"

	"github.com/coretask-core/coretask/ent/episodicsummary"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/summarizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM returns a fixed summary and signals a WaitGroup so tests can
// deterministically wait for Signal's detached goroutine to finish before
// asserting on the stored result.
type scriptedLLM struct {
	text string
	err  error
	wg   *sync.WaitGroup
}

func (f *scriptedLLM) Complete(_ context.Context, _ string, _ []llmclient.Message, _ []llmclient.ToolDefinition, _ float64, _ int, _ bool) (*llmclient.Response, error) {
	defer f.wg.Done()
	if f.err != nil {
		return nil, f.err
	}
	return &llmclient.Response{Text: f.text, FinishReason: "stop"}, nil
}

func (f *scriptedLLM) Close() error { return nil }

func newTestHarness(t *testing.T) (*memory.Store, *entitystore.TaskStore, *entitystore.ProjectStore) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return memory.New(client.Client, nil),
		entitystore.NewTaskStore(client.Client, nil),
		entitystore.NewProjectStore(client.Client, nil)
}

func awaitGoroutine(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for summarizer's detached goroutine")
	}
}

func TestSignal_TaskCreation_FiresAtActivityCountOne(t *testing.T) {
	ctx := context.Background()
	mem, tasks, projects := newTestHarness(t)

	taskID, err := tasks.Insert(ctx, "user-1", map[string]interface{}{
		"title":       "Draft launch plan",
		"description": "Outline the GTM sequence",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	llm := &scriptedLLM{text: "Task to draft the launch plan, not yet started.", wg: &wg}
	s := summarizer.New(llm, mem, tasks, projects)

	s.Signal(ctx, "user-1", "task", taskID, 1, nil)
	awaitGoroutine(t, &wg)

	got, err := mem.LatestSummary(ctx, episodicsummary.EntityTypeTask, taskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Task to draft the launch plan, not yet started.", got.Summary)
	assert.Equal(t, 1, got.ActivityCount)
}

func TestSignal_TaskUpdate_SkipsBetweenEveryFourthActivity(t *testing.T) {
	ctx := context.Background()
	mem, tasks, projects := newTestHarness(t)

	taskID, err := tasks.Insert(ctx, "user-1", map[string]interface{}{"title": "Ship release notes"})
	require.NoError(t, err)

	llm := &scriptedLLM{text: "should never be called"}
	llm.wg = &sync.WaitGroup{}
	s := summarizer.New(llm, mem, tasks, projects)

	for _, count := range []int{2, 3, 4} {
		s.Signal(ctx, "user-1", "task", taskID, count, nil)
	}
	// No goroutine should have been launched for any of these counts, so
	// give any stray goroutine a moment to misbehave before asserting.
	time.Sleep(100 * time.Millisecond)

	got, err := mem.LatestSummary(ctx, episodicsummary.EntityTypeTask, taskID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSignal_ProjectUpdate_OnlyFiresWhenDescriptionOrNotesChanged(t *testing.T) {
	ctx := context.Background()
	mem, tasks, projects := newTestHarness(t)

	projectID, err := projects.Insert(ctx, "user-1", map[string]interface{}{"name": "Acme GTM"})
	require.NoError(t, err)

	llm := &scriptedLLM{text: "unused"}
	llm.wg = &sync.WaitGroup{}
	s := summarizer.New(llm, mem, tasks, projects)

	s.Signal(ctx, "user-1", "project", projectID, 2, []string{"name"})
	time.Sleep(100 * time.Millisecond)
	got, err := mem.LatestSummary(ctx, episodicsummary.EntityTypeProject, projectID)
	require.NoError(t, err)
	assert.Nil(t, got, "a name-only change must not trigger a summary")

	var wg sync.WaitGroup
	wg.Add(1)
	llm2 := &scriptedLLM{text: "Project notes updated with new positioning.", wg: &wg}
	s2 := summarizer.New(llm2, mem, tasks, projects)
	s2.Signal(ctx, "user-1", "project", projectID, 3, []string{"notes"})
	awaitGoroutine(t, &wg)

	got, err = mem.LatestSummary(ctx, episodicsummary.EntityTypeProject, projectID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Project notes updated with new positioning.", got.Summary)
}

func TestSignal_LLMFailure_NeverPanicsAndLeavesNoSummary(t *testing.T) {
	ctx := context.Background()
	mem, tasks, projects := newTestHarness(t)

	taskID, err := tasks.Insert(ctx, "user-1", map[string]interface{}{"title": "Flaky task"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	llm := &scriptedLLM{err: assert.AnError, wg: &wg}
	s := summarizer.New(llm, mem, tasks, projects)

	s.Signal(ctx, "user-1", "task", taskID, 1, nil)
	awaitGoroutine(t, &wg)

	got, err := mem.LatestSummary(ctx, episodicsummary.EntityTypeTask, taskID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSignal_UnknownEntity_NeverCallsLLM(t *testing.T) {
	ctx := context.Background()
	mem, tasks, projects := newTestHarness(t)

	llm := &scriptedLLM{text: "should never be called"}
	llm.wg = &sync.WaitGroup{}
	s := summarizer.New(llm, mem, tasks, projects)

	s.Signal(ctx, "user-1", "task", "does-not-exist", 1, nil)
	time.Sleep(100 * time.Millisecond)
}
