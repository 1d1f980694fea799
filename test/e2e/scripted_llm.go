package e2e

import (
	"context"

	"github.com/coretask-core/coretask/pkg/llmclient"
)

// ScriptedLLM returns a fixed response to every Complete call, standing in
// for the gRPC LLM service at this boundary.
type ScriptedLLM struct {
	Text string
}

func (s *ScriptedLLM) Complete(_ context.Context, _ string, _ []llmclient.Message, _ []llmclient.ToolDefinition, _ float64, _ int, _ bool) (*llmclient.Response, error) {
	return &llmclient.Response{Text: s.Text, FinishReason: "stop"}, nil
}

func (s *ScriptedLLM) Close() error { return nil }
