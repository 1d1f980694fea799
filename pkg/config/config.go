// Package config loads and serves the core's configuration: router
// thresholds, session/concurrency limits, retention policy, and the LLM
// provider / discovery server registries.
package config

// Config is the top-level configuration object threaded explicitly through
// the core at startup; there is no package-level singleton.
type Config struct {
	configDir string

	Router    *RouterConfig
	Session   *SessionConfig
	Retention *RetentionConfig

	LLMProviders     *LLMProviderRegistry
	DiscoveryServers *DiscoveryServerRegistry
}

// ConfigDir returns the directory this configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats returns a small summary useful for startup logging and health
// endpoints.
func (c *Config) Stats() map[string]int {
	return map[string]int{
		"llm_providers":     c.LLMProviders.Len(),
		"discovery_servers": c.DiscoveryServers.Len(),
	}
}
