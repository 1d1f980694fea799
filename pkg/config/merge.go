package config

// mergeLLMProviders merges built-in and user-defined LLM provider
// configurations. User-defined providers override built-in providers with
// the same name.
func mergeLLMProviders(builtin, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig, len(builtin)+len(user))
	for name, p := range builtin {
		pCopy := p
		result[name] = &pCopy
	}
	for name, p := range user {
		pCopy := p
		result[name] = &pCopy
	}
	return result
}

// mergeDiscoveryServers merges built-in and user-defined external tool
// server configurations. User-defined servers override built-in servers
// with the same ID.
func mergeDiscoveryServers(builtin, user map[string]DiscoveryServerConfig) map[string]*DiscoveryServerConfig {
	result := make(map[string]*DiscoveryServerConfig, len(builtin)+len(user))
	for id, s := range builtin {
		sCopy := s
		result[id] = &sCopy
	}
	for id, s := range user {
		sCopy := s
		result[id] = &sCopy
	}
	return result
}
