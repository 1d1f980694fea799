package planner_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	testdb "github.com/coretask-core/coretask/test/database"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/proceduralrule"
	"github.com/coretask-core/coretask/ent/schema"
	"github.com/coretask-core/coretask/pkg/discovery"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) (*ent.Client, *memory.Store, *entitystore.ProjectStore, *entitystore.TaskStore) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return client.Client,
		memory.New(client.Client, nil),
		entitystore.NewProjectStore(client.Client, nil),
		entitystore.NewTaskStore(client.Client, nil)
}

// seedGTMTemplate creates a rule_type=template row directly via ent —
// the memory.Store API only exposes reading templates (GetTemplate,
// IncrementTemplateUsage), never creating one, so tests seed the
// fixture at the store layer the way a provisioning script would.
func seedGTMTemplate(t *testing.T, db *ent.Client, userID string) {
	t.Helper()
	err := db.ProceduralRule.Create().
		SetID(uuid.NewString()).
		SetUserID(userID).
		SetNormalizedTrigger("create_gtm_project").
		SetRuleType(proceduralrule.RuleTypeTemplate).
		SetPhases([]schema.ProceduralPhase{
			{Name: "Research", TaskTitles: []string{"Identify target segments"}},
			{Name: "Launch", TaskTitles: []string{"Draft announcement", "Brief sales team"}},
		}).
		Exec(context.Background())
	require.NoError(t, err)
}

// fakeLLM returns a scripted JSON steps response, regardless of input —
// enough to drive Handle's parsing stage without a live model.
type fakeLLM struct {
	text string
}

func (f *fakeLLM) Complete(_ context.Context, _ string, _ []llmclient.Message, _ []llmclient.ToolDefinition, _ float64, _ int, _ bool) (*llmclient.Response, error) {
	return &llmclient.Response{Text: f.text, FinishReason: "stop"}, nil
}

func (f *fakeLLM) Close() error { return nil }

// fakeResearcher returns a scripted research result instead of calling a
// live DiscoveryAgent.
type fakeResearcher struct {
	result string
	err    error
}

func (f *fakeResearcher) Handle(_ context.Context, _, _, _ string) (*discovery.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &discovery.Response{Source: discovery.SourceNewDiscovery, Result: f.result}, nil
}

func TestHandle_NoSequentialIndicator_SkipsLLMEntirely(t *testing.T) {
	ctx := context.Background()
	_, mem, projects, tasks := newTestStores(t)

	llm := &fakeLLM{text: "should never be read"}
	p := planner.NewPlanner(llm, mem, &fakeResearcher{}, projects, tasks)

	result, err := p.Handle(ctx, "create a project", "user-1")
	require.NoError(t, err)
	assert.False(t, result.MultiStep)
}

func TestHandle_MalformedJSON_TreatedAsNonMultiStep(t *testing.T) {
	ctx := context.Background()
	_, mem, projects, tasks := newTestStores(t)

	llm := &fakeLLM{text: "not json at all"}
	p := planner.NewPlanner(llm, mem, &fakeResearcher{}, projects, tasks)

	result, err := p.Handle(ctx, "research competitors and then create a project", "user-1")
	require.NoError(t, err)
	assert.False(t, result.MultiStep)
}

func TestHandle_ResearchThenCreateProject_GTMTemplateDetected(t *testing.T) {
	ctx := context.Background()
	db, mem, projects, tasks := newTestStores(t)
	seedGTMTemplate(t, db, "user-1")

	llm := &fakeLLM{text: `{"steps":[
		{"intent":"research","description":"competitor pricing"},
		{"intent":"create_project","description":"Acme GTM launch"}
	]}`}
	research := &fakeResearcher{result: "competitors price $10-20/mo"}
	p := planner.NewPlanner(llm, mem, research, projects, tasks)

	result, err := p.Handle(ctx, "research competitor pricing and then create a gtm project", "user-1")
	require.NoError(t, err)
	require.True(t, result.MultiStep)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Success)
	assert.True(t, result.Steps[1].Success)
	assert.True(t, result.FullSuccess)
}

func TestHandle_FullPlan_GeneratesTasksFromTemplateAndIncrementsUsage(t *testing.T) {
	ctx := context.Background()
	db, mem, projects, tasks := newTestStores(t)
	seedGTMTemplate(t, db, "user-1")

	llm := &fakeLLM{text: `{"steps":[
		{"intent":"research","description":"competitor pricing"},
		{"intent":"create_project","description":"Acme GTM launch"},
		{"intent":"generate_tasks","description":"generate tasks from the template"}
	]}`}
	research := &fakeResearcher{result: "competitors price $10-20/mo"}
	p := planner.NewPlanner(llm, mem, research, projects, tasks)

	result, err := p.Handle(ctx, "research competitor pricing, then create a gtm project, then generate tasks", "user-1")
	require.NoError(t, err)
	require.True(t, result.FullSuccess)
	require.Len(t, result.Steps, 3)
	assert.Contains(t, result.Steps[2].Output, "3 tasks")

	docs, err := tasks.Find(ctx, "user-1", entitystore.Filter{}, 10, entitystore.Sort{})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	tmpl, err := mem.GetTemplate(ctx, "user-1", "create_gtm_project")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, 1, tmpl.TimesUsed)
}

func TestHandle_StepFailureAbortsRemainingSteps(t *testing.T) {
	ctx := context.Background()
	_, mem, projects, tasks := newTestStores(t)

	llm := &fakeLLM{text: `{"steps":[
		{"intent":"research","description":"competitor pricing"},
		{"intent":"create_project","description":"Acme launch"}
	]}`}
	research := &fakeResearcher{err: fmt.Errorf("upstream timed out")}
	p := planner.NewPlanner(llm, mem, research, projects, tasks)

	result, err := p.Handle(ctx, "research competitor pricing and then create a project", "user-1")
	require.NoError(t, err)
	require.True(t, result.MultiStep)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.False(t, result.FullSuccess)
}

func TestHandle_GenerateTasksWithoutTemplate_Fails(t *testing.T) {
	ctx := context.Background()
	_, mem, projects, tasks := newTestStores(t)

	llm := &fakeLLM{text: `{"steps":[
		{"intent":"create_project","description":"Acme launch"},
		{"intent":"generate_tasks","description":"generate tasks for the project"}
	]}`}
	p := planner.NewPlanner(llm, mem, &fakeResearcher{}, projects, tasks)

	result, err := p.Handle(ctx, "create a project and then generate tasks", "user-1")
	require.NoError(t, err)
	require.True(t, result.MultiStep)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Success)
	assert.False(t, result.Steps[1].Success)
	assert.False(t, result.FullSuccess)
}
