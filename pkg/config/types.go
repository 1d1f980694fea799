package config

import "time"

// LLMProviderConfig defines an LLM provider the agent loop, planner, and
// summarizer can address by name.
type LLMProviderConfig struct {
	Type      string `yaml:"type" validate:"required"`
	Model     string `yaml:"model" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	// MaxToolResultTokens bounds compressed tool-result size before
	// re-injection into the conversation.
	MaxToolResultTokens int `yaml:"max_tool_result_tokens" validate:"required,min=1000"`
}

// TransportConfig describes how to reach an external tool server.
type TransportConfig struct {
	Type    string            `yaml:"type" validate:"required,oneof=stdio sse"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DiscoveryServerConfig describes one external MCP-style tool server the
// DiscoveryAgent may connect to. Fallback, when set, is tried if Transport
// fails to connect — the stdio-preferred/SSE-fallback policy of §4.5,
// since the remote SSE provider is known to hang and stdio's child process
// is the more reliable primary.
type DiscoveryServerConfig struct {
	ID        string           `yaml:"id"`
	Transport TransportConfig  `yaml:"transport"`
	Fallback  *TransportConfig `yaml:"fallback,omitempty"`
	Scope     string           `yaml:"scope,omitempty" validate:"omitempty,oneof=user global"`
}

// RouterConfig controls thresholds and policy gates for the cascade.
type RouterConfig struct {
	// DiscoveryModeEnabled gates Tier 4 (opt-in per the design notes).
	DiscoveryModeEnabled bool `yaml:"discovery_mode_enabled"`

	// CacheReuseThreshold gates the cache-hit / discovery-reuse decision.
	CacheReuseThreshold float64 `yaml:"cache_reuse_threshold"`

	// KnowledgeSearchThreshold gates the agent-level search_knowledge tool.
	KnowledgeSearchThreshold float64 `yaml:"knowledge_search_threshold"`

	// MaxIterations bounds the LLM agent loop.
	MaxIterations int `yaml:"max_iterations"`

	// PromptCachingEnabled toggles transport-level prompt caching.
	PromptCachingEnabled bool `yaml:"prompt_caching_enabled"`
}

// DefaultRouterConfig returns the built-in router defaults.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		DiscoveryModeEnabled:     false,
		CacheReuseThreshold:      0.85,
		KnowledgeSearchThreshold: 0.65,
		MaxIterations:            8,
		PromptCachingEnabled:     true,
	}
}

// SessionConfig controls the in-process concurrency fabric.
type SessionConfig struct {
	MaxInFlightRequests      int           `yaml:"max_in_flight_requests"`
	MaxInFlightExternalCalls int           `yaml:"max_in_flight_external_calls"`
	LLMTimeout               time.Duration `yaml:"llm_timeout"`
	ExternalToolTimeout      time.Duration `yaml:"external_tool_timeout"`
	EmbeddingTimeout         time.Duration `yaml:"embedding_timeout"`
	StoreTimeout             time.Duration `yaml:"store_timeout"`
}

// DefaultSessionConfig returns the built-in session/concurrency defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		MaxInFlightRequests:      50,
		MaxInFlightExternalCalls: 10,
		LLMTimeout:               60 * time.Second,
		ExternalToolTimeout:      30 * time.Second,
		EmbeddingTimeout:         10 * time.Second,
		StoreTimeout:             5 * time.Second,
	}
}

// RetentionConfig controls TTL sweep cadence for the expiring stores.
type RetentionConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	WorkingMemoryTTL  time.Duration `yaml:"working_memory_ttl"`
	SharedHandoffTTL  time.Duration `yaml:"shared_handoff_ttl"`
	KnowledgeCacheTTL time.Duration `yaml:"knowledge_cache_ttl"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SweepInterval:     5 * time.Minute,
		WorkingMemoryTTL:  2 * time.Hour,
		SharedHandoffTTL:  5 * time.Minute,
		KnowledgeCacheTTL: 7 * 24 * time.Hour,
	}
}
