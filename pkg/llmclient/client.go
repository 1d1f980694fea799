// Package llmclient implements the LLM adapter the core consumes (spec
// §6): a synchronous complete(system, messages, tools?, temperature?,
// max_tokens?, cache_control?) call over gRPC, a single blocking RPC
// rather than a channel-of-chunks streaming shape, since the core's
// contract is request/response rather than streamed tokens.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/coreerr"
	llmv1 "github.com/coretask-core/coretask/proto/llm/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Role constants for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolCall is the LLM's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of a Complete call.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "tool_calls" | "length" | "error"
}

// Client is the interface components depend on, so tests can supply a
// scripted fake in place of a real provider connection (grounded on the
// teacher's test/e2e scripted LLM client).
type Client interface {
	Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition, temperature float64, maxTokens int, cacheControl bool) (*Response, error)
	Close() error
}

// GRPCClient implements Client by calling an external LLM service over
// gRPC, insecure/plaintext since the service runs as a local sidecar.
type GRPCClient struct {
	conn     *grpc.ClientConn
	client   llmv1.LLMServiceClient
	provider config.LLMProviderConfig
}

// NewGRPCClient dials addr and binds to provider's model configuration.
func NewGRPCClient(addr string, provider config.LLMProviderConfig) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, coreerr.TransportErrorf(err, "dialing llm service at %s", addr)
	}
	return &GRPCClient{
		conn:     conn,
		client:   llmv1.NewLLMServiceClient(conn),
		provider: provider,
	}, nil
}

// Complete sends one request and waits for the single structured
// response; no streaming, per the core's adapter contract.
func (c *GRPCClient) Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition, temperature float64, maxTokens int, cacheControl bool) (*Response, error) {
	req := &llmv1.CompleteRequest{
		Provider:     c.provider.Type,
		Model:        c.provider.Model,
		System:       system,
		Messages:     toProtoMessages(messages),
		Tools:        toProtoTools(tools),
		Temperature:  temperature,
		MaxTokens:    int32(maxTokens),
		CacheControl: &llmv1.CacheControl{Enabled: cacheControl},
	}

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, coreerr.Timeoutf(err, "llm completion")
		}
		return nil, coreerr.TransportErrorf(err, "llm completion")
	}

	return fromProtoResponse(resp), nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func toProtoMessages(msgs []Message) []*llmv1.Message {
	out := make([]*llmv1.Message, len(msgs))
	for i, m := range msgs {
		pm := &llmv1.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallId: m.ToolCallID,
			ToolName:   m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, &llmv1.ToolCall{
				Id:            tc.ID,
				Name:          tc.Name,
				ArgumentsJson: tc.Arguments,
			})
		}
		out[i] = pm
	}
	return out
}

func toProtoTools(tools []ToolDefinition) []*llmv1.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]*llmv1.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = &llmv1.ToolDefinition{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersSchemaJson: t.ParametersSchema,
		}
	}
	return out
}

func fromProtoResponse(resp *llmv1.CompleteResponse) *Response {
	r := &Response{
		Text:         resp.Text,
		FinishReason: resp.FinishReason,
	}
	if resp.Usage != nil {
		r.Usage = Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		}
	}
	for _, tc := range resp.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, ToolCall{
			ID:        tc.Id,
			Name:      tc.Name,
			Arguments: tc.ArgumentsJson,
		})
	}
	return r
}

// MarshalArguments is a convenience used by callers building a ToolCall's
// Arguments field from a Go value.
func MarshalArguments(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling tool arguments: %w", err)
	}
	return string(b), nil
}
