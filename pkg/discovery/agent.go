// Package discovery implements the Tier 4 DiscoveryAgent (spec §4.5): a
// three-way cache/reuse/fresh-discovery decision layered over MCP-style
// external tool servers and an external tool-call execution path, rather
// than the in-process tool catalogue pkg/agentloop drives.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/tools"
)

// Source identifies which of the three decision tiers produced a Response.
type Source string

const (
	SourceKnowledgeCache Source = "knowledge_cache"
	SourceDiscoveryReuse Source = "discovery_reuse"
	SourceNewDiscovery   Source = "new_discovery"
)

// Response is the outcome of one Handle call.
type Response struct {
	Source Source
	Result string
	Server string // empty for SourceKnowledgeCache
}

// ToolCaller is the external-tool execution surface Agent depends on. The
// concrete *Client implements it; tests substitute a fake so Agent's
// decision logic is exercised without a live MCP session.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error)
	ListAllTools(ctx context.Context) ([]ToolInfo, error)
}

// Agent implements the DiscoveryAgent contract.
type Agent struct {
	Memory              *memory.Store
	LLM                 llmclient.Client
	Tools               ToolCaller
	CacheReuseThreshold float32
	ExternalToolTimeout time.Duration
}

// NewAgent builds an Agent with sane defaults for thresholds and timeouts
// when the caller passes zero values (config.DefaultRouterConfig /
// config.DefaultSessionConfig).
func NewAgent(mem *memory.Store, llm llmclient.Client, caller ToolCaller, cacheReuseThreshold float32, externalToolTimeout time.Duration) *Agent {
	if cacheReuseThreshold <= 0 {
		cacheReuseThreshold = 0.85
	}
	if externalToolTimeout <= 0 {
		externalToolTimeout = 30 * time.Second
	}
	return &Agent{
		Memory:              mem,
		LLM:                 llm,
		Tools:               caller,
		CacheReuseThreshold: cacheReuseThreshold,
		ExternalToolTimeout: externalToolTimeout,
	}
}

// toolChoice is the shape the LLM is asked to return when no cached or
// reusable solution exists.
type toolChoice struct {
	Server    string                 `json:"server"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Handle implements the three-way decision: knowledge cache, then
// discovery reuse, then fresh discovery (spec §4.5).
func (a *Agent) Handle(ctx context.Context, request, intent, userID string) (*Response, error) {
	if hit, err := a.Memory.TopKnowledgeMatch(ctx, userID, request); err != nil {
		return nil, fmt.Errorf("searching knowledge cache: %w", err)
	} else if hit != nil && hit.Score >= a.CacheReuseThreshold {
		if err := a.Memory.IncrementKnowledgeAccess(ctx, hit.Entry.ID); err != nil {
			return nil, fmt.Errorf("incrementing knowledge access: %w", err)
		}
		result := hit.Entry.Result
		if hit.Entry.Summary != nil && *hit.Entry.Summary != "" {
			result = *hit.Entry.Summary
		}
		return &Response{Source: SourceKnowledgeCache, Result: result}, nil
	}

	if record, score, err := a.Memory.FindSimilarDiscovery(ctx, userID, request, a.CacheReuseThreshold, true); err != nil {
		return nil, fmt.Errorf("searching discovery store: %w", err)
	} else if record != nil && score >= a.CacheReuseThreshold {
		opCtx, cancel := context.WithTimeout(ctx, a.ExternalToolTimeout)
		result, callErr := a.Tools.CallTool(opCtx, record.Server, record.Tool, record.Arguments)
		cancel()
		if callErr == nil {
			if _, err := a.Memory.IncrementDiscoveryUsage(ctx, record.ID); err != nil {
				return nil, fmt.Errorf("incrementing discovery usage: %w", err)
			}
			return &Response{Source: SourceDiscoveryReuse, Result: result, Server: record.Server}, nil
		}
		// The recorded solution no longer works; fall through to a fresh
		// discovery rather than surfacing the stale record's failure.
	}

	return a.freshDiscovery(ctx, request, userID)
}

func (a *Agent) freshDiscovery(ctx context.Context, request, userID string) (*Response, error) {
	available, err := a.Tools.ListAllTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing external tools: %w", err)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no external tool servers are connected")
	}

	defs := make([]llmclient.ToolDefinition, len(available))
	for i, t := range available {
		defs[i] = llmclient.ToolDefinition{
			Name:             t.Server + "." + t.Tool,
			Description:      t.Description,
			ParametersSchema: t.ParametersSchema,
		}
	}

	systemPrompt := "Choose exactly one external tool to satisfy the user's request. " +
		"Respond by calling the chosen tool with its arguments; do not answer in plain text."
	messages := []llmclient.Message{{Role: llmclient.RoleUser, Content: request}}

	resp, err := a.LLM.Complete(ctx, systemPrompt, messages, defs, 0, 0, false)
	if err != nil {
		return nil, fmt.Errorf("choosing a tool: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		return nil, fmt.Errorf("the model did not choose a tool for %q", request)
	}

	choice, err := parseToolChoice(resp.ToolCalls[0])
	if err != nil {
		return nil, err
	}

	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, a.ExternalToolTimeout)
	result, callErr := a.Tools.CallTool(opCtx, choice.Server, choice.Tool, choice.Arguments)
	cancel()
	elapsed := time.Since(start)

	solution := memory.DiscoverySolution{Server: choice.Server, Tool: choice.Tool, Arguments: choice.Arguments}
	if _, logErr := a.Memory.LogDiscovery(ctx, userID, request, solution, callErr == nil, elapsed); logErr != nil {
		return nil, fmt.Errorf("logging discovery: %w", logErr)
	}
	if callErr != nil {
		return nil, fmt.Errorf("executing %s.%s: %w", choice.Server, choice.Tool, callErr)
	}

	summary, err := tools.SummarizeExternalResult(ctx, a.LLM, request, result)
	if err != nil {
		return nil, fmt.Errorf("summarizing external result: %w", err)
	}
	var summaryPtr *string
	if summary != result {
		summaryPtr = &summary
	}
	if err := a.Memory.CacheKnowledge(ctx, userID, request, result, summaryPtr, choice.Server, 0); err != nil {
		return nil, fmt.Errorf("caching knowledge: %w", err)
	}

	returned := result
	if summaryPtr != nil {
		returned = summary
	}
	return &Response{Source: SourceNewDiscovery, Result: returned, Server: choice.Server}, nil
}

// parseToolChoice splits the LLM's "server.tool"-named call back into its
// server/tool parts.
func parseToolChoice(call llmclient.ToolCall) (toolChoice, error) {
	server, tool, err := splitServerTool(call.Name)
	if err != nil {
		return toolChoice{}, err
	}
	var args map[string]interface{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolChoice{}, fmt.Errorf("parsing tool arguments for %q: %w", call.Name, err)
		}
	}
	return toolChoice{Server: server, Tool: tool, Arguments: args}, nil
}

func splitServerTool(name string) (server, tool string, err error) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("tool name %q is not in server.tool form", name)
}
