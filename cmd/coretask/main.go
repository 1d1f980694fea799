// coretask-core orchestrator - provides the chat HTTP API and drives the
// router cascade (pattern match, slash commands, LLM agent loop,
// discovery) over the task/project entity stores.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coretask-core/coretask/pkg/agentloop"
	"github.com/coretask-core/coretask/pkg/api"
	"github.com/coretask-core/coretask/pkg/cleanup"
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
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	llmProviderName := getEnv("LLM_PROVIDER", "primary")
	llmServiceAddr := getEnv("LLM_SERVICE_ADDR", "localhost:9090")
	embedServiceAddr := getEnv("EMBED_SERVICE_ADDR", "localhost:9091")

	log.Printf("Starting coretask-core")
	log.Printf("HTTP Port: %s", httpPort)
	log.Printf("Config Directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	provider, err := cfg.LLMProviders.Get(llmProviderName)
	if err != nil {
		log.Fatalf("Failed to resolve LLM provider %q: %v", llmProviderName, err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("Connected to PostgreSQL database")

	embedder, err := embedclient.NewGRPCClient(embedServiceAddr)
	if err != nil {
		log.Fatalf("Failed to connect to embedding service: %v", err)
	}
	defer func() {
		if err := embedder.Close(); err != nil {
			log.Printf("Error closing embedding client: %v", err)
		}
	}()

	llm, err := llmclient.NewGRPCClient(llmServiceAddr, *provider)
	if err != nil {
		log.Fatalf("Failed to connect to LLM service: %v", err)
	}
	defer func() {
		if err := llm.Close(); err != nil {
			log.Printf("Error closing LLM client: %v", err)
		}
	}()
	log.Println("Connected to LLM and embedding services")

	taskStore := entitystore.NewTaskStore(dbClient.Client, embedder)
	projectStore := entitystore.NewProjectStore(dbClient.Client, embedder)
	mem := memory.New(dbClient.Client, embedder)

	summarizerSvc := summarizer.New(llm, mem, taskStore, projectStore)

	registry := tools.NewRegistry()
	executor := tools.NewExecutor(taskStore, projectStore, mem, embedder, summarizerSvc)

	loop := agentloop.New(llm, registry, executor, cfg.Router.MaxIterations, cfg.Router.PromptCachingEnabled)

	discoveryServers := cfg.DiscoveryServers.GetAll()
	serverList := make([]config.DiscoveryServerConfig, 0, len(discoveryServers))
	serverIDs := make([]string, 0, len(discoveryServers))
	for id, s := range discoveryServers {
		serverList = append(serverList, *s)
		serverIDs = append(serverIDs, id)
	}
	discoveryClient := discovery.NewClient(serverList, cfg.Session.ExternalToolTimeout)
	discoveryClient.Initialize(ctx, serverIDs)
	defer func() {
		if err := discoveryClient.Close(); err != nil {
			log.Printf("Error closing discovery client: %v", err)
		}
	}()
	discoveryAgent := discovery.NewAgent(mem, llm, discoveryClient, float32(cfg.Router.CacheReuseThreshold), cfg.Session.ExternalToolTimeout)

	multiStepPlanner := planner.NewPlanner(llm, mem, discoveryAgent, projectStore, taskStore)

	sessions := session.NewManager(cfg.Session)
	defer sessions.Stop()

	rt := &router.Router{
		Config:    cfg.Router,
		Memory:    mem,
		Tasks:     taskStore,
		Projects:  projectStore,
		Executor:  executor,
		Registry:  registry,
		Loop:      loop,
		Discovery: discoveryAgent,
		Planner:   multiStepPlanner,
	}

	cleanupSvc := cleanup.NewService(cfg.Retention, mem)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(cfg, dbClient, sessions, rt)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		log.Printf("Health check available at: http://localhost:%s/health", httpPort)
		if err := server.Start(":" + httpPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
}
