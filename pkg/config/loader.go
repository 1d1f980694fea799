package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// coretaskYAMLConfig is the shape of the user-supplied config.yaml.
type coretaskYAMLConfig struct {
	Router      *RouterConfig                     `yaml:"router,omitempty"`
	Session     *SessionConfig                     `yaml:"session,omitempty"`
	Retention   *RetentionConfig                   `yaml:"retention,omitempty"`
	LLMs        map[string]LLMProviderConfig        `yaml:"llm_providers,omitempty"`
	DiscoverySrv map[string]DiscoveryServerConfig   `yaml:"discovery_servers,omitempty"`
}

// builtinYAMLConfig is the shape of the bundled builtin.yaml shipped with
// the binary, holding vetted default LLM providers and discovery servers.
type builtinYAMLConfig struct {
	LLMs         map[string]LLMProviderConfig      `yaml:"llm_providers,omitempty"`
	DiscoverySrv map[string]DiscoveryServerConfig   `yaml:"discovery_servers,omitempty"`
}

// Initialize loads built-in and user configuration from configDir and
// returns an assembled Config. Either file may be absent; in that case
// defaults are used throughout.
func Initialize(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}
	return loader.load()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	expanded := ExpandEnv(data)
	if err := yaml.Unmarshal(expanded, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (l *configLoader) load() (*Config, error) {
	var builtin builtinYAMLConfig
	if err := l.loadYAML(l.configDir+"/builtin.yaml", &builtin); err != nil {
		return nil, err
	}

	var user coretaskYAMLConfig
	if err := l.loadYAML(l.configDir+"/config.yaml", &user); err != nil {
		return nil, err
	}

	router := DefaultRouterConfig()
	if user.Router != nil {
		if err := mergo.Merge(router, user.Router, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging router config: %w", err)
		}
	}

	session := DefaultSessionConfig()
	if user.Session != nil {
		if err := mergo.Merge(session, user.Session, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging session config: %w", err)
		}
	}

	retention := DefaultRetentionConfig()
	if user.Retention != nil {
		if err := mergo.Merge(retention, user.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retention config: %w", err)
		}
	}

	llmProviders := mergeLLMProviders(builtin.LLMs, user.LLMs)
	discoveryServers := mergeDiscoveryServers(builtin.DiscoverySrv, user.DiscoverySrv)

	cfg := &Config{
		configDir:        l.configDir,
		Router:           router,
		Session:          session,
		Retention:        retention,
		LLMProviders:     NewLLMProviderRegistry(llmProviders),
		DiscoveryServers: NewDiscoveryServerRegistry(discoveryServers),
	}
	return cfg, nil
}
