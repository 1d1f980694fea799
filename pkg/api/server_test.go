package api

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	testdb "github.com/coretask-core/coretask/test/database"

	"github.com/coretask-core/coretask/pkg/agentloop"
	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/router"
	"github.com/coretask-core/coretask/pkg/session"
	"github.com/coretask-core/coretask/pkg/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type scriptedLLM struct {
	text      string
	toolCalls []llmclient.ToolCall
}

func (f *scriptedLLM) Complete(_ context.Context, _ string, _ []llmclient.Message, _ []llmclient.ToolDefinition, _ float64, _ int, _ bool) (*llmclient.Response, error) {
	calls := f.toolCalls
	f.toolCalls = nil
	return &llmclient.Response{Text: f.text, ToolCalls: calls, FinishReason: "stop"}, nil
}

func (f *scriptedLLM) Close() error { return nil }

type noopSummarizer struct{}

func (noopSummarizer) Signal(context.Context, string, string, string, int, []string) {}

// newTestServer wires a Server against a real test database, a scripted
// LLM, and no discovery/planner dependencies — enough to exercise every
// endpoint's HTTP contract without a live LLM or MCP server.
func newTestServer(t *testing.T, llmText string) (*Server, *entitystore.TaskStore) {
	t.Helper()

	dbClient := testdb.NewTestClient(t)
	tasks := entitystore.NewTaskStore(dbClient.Client, nil)
	projects := entitystore.NewProjectStore(dbClient.Client, nil)
	mem := memory.New(dbClient.Client, nil)
	registry := tools.NewRegistry()
	exec := tools.NewExecutor(tasks, projects, mem, nil, noopSummarizer{})
	loop := agentloop.New(&scriptedLLM{text: llmText}, registry, exec, 4, false)

	rt := &router.Router{
		Config:   config.DefaultRouterConfig(),
		Memory:   mem,
		Tasks:    tasks,
		Projects: projects,
		Executor: exec,
		Registry: registry,
		Loop:     loop,
	}

	cfg := &config.Config{
		LLMProviders:     config.NewLLMProviderRegistry(nil),
		DiscoveryServers: config.NewDiscoveryServerRegistry(nil),
	}
	sessions := session.NewManager(config.DefaultSessionConfig())
	t.Cleanup(sessions.Stop)

	srv := NewServer(cfg, dbClient, sessions, rt)
	require.NotNil(t, srv)
	return srv, tasks
}
