package config

import "errors"

var (
	ErrLLMProviderNotFound     = errors.New("llm provider not found")
	ErrDiscoveryServerNotFound = errors.New("discovery server not found")
)
