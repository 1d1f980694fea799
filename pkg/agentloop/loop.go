package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/tools"
)

// Result is the outcome of one Run call.
type Result struct {
	FinalText string
	Truncated bool
	Usage     llmclient.Usage
	Messages  []llmclient.Message
}

// Loop executes the bounded tool-calling reasoning loop against one
// Executor's tool catalogue. One Loop is shared across a session; Run is
// called once per user utterance routed to Tier 3.
type Loop struct {
	LLM                  llmclient.Client
	Registry             *tools.Registry
	Executor             *tools.Executor
	MaxIterations        int
	PromptCachingEnabled bool
}

// New constructs a Loop. maxIterations <= 0 falls back to the default of
// 8 (config.DefaultRouterConfig().MaxIterations).
func New(llm llmclient.Client, registry *tools.Registry, executor *tools.Executor, maxIterations int, promptCachingEnabled bool) *Loop {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	return &Loop{
		LLM:                  llm,
		Registry:             registry,
		Executor:             executor,
		MaxIterations:        maxIterations,
		PromptCachingEnabled: promptCachingEnabled,
	}
}

// Run drives the loop to completion: repeat up to MaxIterations,
// executing every tool_call the LLM requests and feeding compressed
// results back, until a response carries no tool calls or the
// iteration budget is exhausted.
func (l *Loop) Run(ctx context.Context, systemPrompt string, history []llmclient.Message, userID, sessionID string) (*Result, error) {
	messages := make([]llmclient.Message, len(history))
	copy(messages, history)

	state := &IterationState{MaxIterations: l.MaxIterations}
	var lastText string
	var usage llmclient.Usage

	for iteration := 0; iteration < l.MaxIterations; iteration++ {
		state.CurrentIteration = iteration + 1

		if state.ShouldAbortOnTimeouts() {
			return &Result{FinalText: lastText, Truncated: true, Usage: usage, Messages: messages}, nil
		}

		resp, err := l.LLM.Complete(ctx, systemPrompt, messages, l.Registry.Definitions(), 0, 0, l.PromptCachingEnabled)
		if err != nil {
			state.RecordFailure(err.Error(), isTimeoutError(err))
			retry := llmclient.Message{
				Role:    llmclient.RoleUser,
				Content: fmt.Sprintf("Error from previous attempt: %s. Please try again.", err.Error()),
			}
			messages = append(messages, retry)
			continue
		}
		state.RecordSuccess()
		accumulate(&usage, resp.Usage)
		lastText = resp.Text

		if len(resp.ToolCalls) == 0 {
			return &Result{FinalText: resp.Text, Usage: usage, Messages: messages}, nil
		}

		messages = append(messages, llmclient.Message{
			Role:      llmclient.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := l.Executor.Execute(ctx, tc, userID, sessionID)
			result = tools.Compress(result)
			messages = append(messages, llmclient.Message{
				Role:       llmclient.RoleTool,
				Content:    result.Content,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	// Iteration limit reached — return the last partial text, flagged
	// truncated rather than forcing another LLM call (spec §4.4).
	return &Result{FinalText: lastText, Truncated: true, Usage: usage, Messages: messages}, nil
}

func accumulate(total *llmclient.Usage, delta llmclient.Usage) {
	total.InputTokens += delta.InputTokens
	total.OutputTokens += delta.OutputTokens
	total.TotalTokens += delta.TotalTokens
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out")
}
