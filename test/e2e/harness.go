// Package e2e boots a complete coretask-core instance, wired the same way
// cmd/coretask/main.go wires it, against a real test database and fake
// external-boundary adapters (LLM, embedder, discovery tool caller), and
// drives it over real HTTP.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/coretask-core/coretask/pkg/agentloop"
	"github.com/coretask-core/coretask/pkg/api"
	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/database"
	"github.com/coretask-core/coretask/pkg/discovery"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/planner"
	"github.com/coretask-core/coretask/pkg/router"
	"github.com/coretask-core/coretask/pkg/session"
	"github.com/coretask-core/coretask/pkg/summarizer"
	"github.com/coretask-core/coretask/pkg/tools"
	testdb "github.com/coretask-core/coretask/test/database"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestApp boots a full coretask-core instance for e2e testing.
type TestApp struct {
	DB       *database.Client
	Tasks    *entitystore.TaskStore
	Projects *entitystore.ProjectStore
	Memory   *memory.Store
	Sessions *session.Manager
	Router   *router.Router
	Server   *httptest.Server
}

// NewTestApp assembles every layer exactly as main.go does, substituting
// ScriptedLLM for the gRPC LLM client and a fake embedder/discovery caller
// for the two other external boundaries.
func NewTestApp(t *testing.T, llm llmclient.Client) *TestApp {
	t.Helper()

	dbClient := testdb.NewTestClient(t)
	embedder := fakeEmbedder{}

	taskStore := entitystore.NewTaskStore(dbClient.Client, embedder)
	projectStore := entitystore.NewProjectStore(dbClient.Client, embedder)
	mem := memory.New(dbClient.Client, embedder)

	summarizerSvc := summarizer.New(llm, mem, taskStore, projectStore)
	registry := tools.NewRegistry()
	executor := tools.NewExecutor(taskStore, projectStore, mem, embedder, summarizerSvc)
	loop := agentloop.New(llm, registry, executor, 4, false)

	discoveryAgent := discovery.NewAgent(mem, llm, noopToolCaller{}, 0.85, 0)
	multiStepPlanner := planner.NewPlanner(llm, mem, discoveryAgent, projectStore, taskStore)

	sessions := session.NewManager(config.DefaultSessionConfig())
	t.Cleanup(sessions.Stop)

	rt := &router.Router{
		Config:    config.DefaultRouterConfig(),
		Memory:    mem,
		Tasks:     taskStore,
		Projects:  projectStore,
		Executor:  executor,
		Registry:  registry,
		Loop:      loop,
		Discovery: discoveryAgent,
		Planner:   multiStepPlanner,
	}

	cfg := &config.Config{
		Router:           rt.Config,
		Session:          config.DefaultSessionConfig(),
		Retention:        config.DefaultRetentionConfig(),
		LLMProviders:     config.NewLLMProviderRegistry(nil),
		DiscoveryServers: config.NewDiscoveryServerRegistry(nil),
	}

	server := api.NewServer(cfg, dbClient, sessions, rt)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &TestApp{
		DB:       dbClient,
		Tasks:    taskStore,
		Projects: projectStore,
		Memory:   mem,
		Sessions: sessions,
		Router:   rt,
		Server:   httpServer,
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) (embedclient.Vector, error) {
	var v embedclient.Vector
	for i, b := range []byte(text) {
		v[i%embedclient.Dimension] += float32(b)
	}
	return v, nil
}

type noopToolCaller struct{}

func (noopToolCaller) CallTool(_ context.Context, _, _ string, _ map[string]interface{}) (string, error) {
	return "", nil
}

func (noopToolCaller) ListAllTools(_ context.Context) ([]discovery.ToolInfo, error) {
	return nil, nil
}
