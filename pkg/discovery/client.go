package discovery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/coreerr"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/masking"
	"github.com/coretask-core/coretask/pkg/version"
)

// ToolInfo describes one tool exposed by a connected external server,
// namespaced the way the router threads it back into a CallTool.
type ToolInfo struct {
	Server           string
	Tool             string
	Description      string
	ParametersSchema string
}

// Client manages MCP SDK sessions against the servers named in the
// DiscoveryAgent's config, one Client per agent instance: per-server mutex
// reinit, a never-invalidated tool cache, and a single jittered-backoff
// retry via cenkalti/backoff/v4 on transport failure.
type Client struct {
	servers map[string]config.DiscoveryServerConfig

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession
	acquireOrder  []string // serverIDs in the order sessions were established
	failedServers map[string]string

	toolCacheMu sync.RWMutex
	toolCache   map[string][]*mcpsdk.Tool

	reinitMu sync.Map // serverID -> *sync.Mutex

	operationTimeout time.Duration
}

// NewClient builds a Client over the given server configs. operationTimeout
// is the per-call deadline for CallTool/ListTools (spec §4.5's external
// tool timeout, config.DefaultSessionConfig().ExternalToolTimeout).
func NewClient(servers []config.DiscoveryServerConfig, operationTimeout time.Duration) *Client {
	byID := make(map[string]config.DiscoveryServerConfig, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}
	if operationTimeout <= 0 {
		operationTimeout = 30 * time.Second
	}
	return &Client{
		servers:          byID,
		sessions:         make(map[string]*mcpsdk.ClientSession),
		failedServers:    make(map[string]string),
		toolCache:        make(map[string][]*mcpsdk.Tool),
		operationTimeout: operationTimeout,
	}
}

// Initialize connects to every named server, recording (not failing on)
// individual connect failures — partial availability is acceptable for a
// discovery pass.
func (c *Client) Initialize(ctx context.Context, serverIDs []string) {
	for _, id := range serverIDs {
		if err := c.InitializeServer(ctx, id); err != nil {
			c.mu.Lock()
			c.failedServers[id] = err.Error()
			c.mu.Unlock()
		}
	}
}

// InitializeServer connects to a single server, a no-op if already
// connected. Serialized per-server so concurrent callers can't thunder-herd
// the same subprocess/endpoint.
func (c *Client) InitializeServer(ctx context.Context, serverID string) error {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return c.initializeServerLocked(ctx, serverID)
}

func (c *Client) initializeServerLocked(ctx context.Context, serverID string) error {
	c.mu.RLock()
	if _, exists := c.sessions[serverID]; exists {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	cfg, ok := c.servers[serverID]
	if !ok {
		return fmt.Errorf("server %q not configured", serverID)
	}

	session, err := c.connect(ctx, cfg.Transport)
	if err != nil && cfg.Fallback != nil {
		// Primary transport failed — fall back (stdio -> SSE per §4.5;
		// the remote SSE provider is the one known to hang, so it is
		// never the primary).
		session, err = c.connect(ctx, *cfg.Fallback)
	}
	if err != nil {
		return fmt.Errorf("connecting to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.acquireOrder = append(c.acquireOrder, serverID)
	delete(c.failedServers, serverID)
	c.mu.Unlock()
	return nil
}

func (c *Client) connect(ctx context.Context, transportCfg config.TransportConfig) (*mcpsdk.ClientSession, error) {
	transport, err := createTransport(transportCfg)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, MCPInitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: version.AppName, Version: version.GitCommit}, nil)
	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return session, nil
}

// ListTools returns the (cached, once populated) tool list for one server.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	c.toolCacheMu.RLock()
	if cached, ok := c.toolCache[serverID]; ok {
		c.toolCacheMu.RUnlock()
		return cached, nil
	}
	c.toolCacheMu.RUnlock()

	c.mu.RLock()
	session, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing tools from %q: %w", serverID, err)
	}
	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}

	c.toolCacheMu.Lock()
	c.toolCache[serverID] = tools
	c.toolCacheMu.Unlock()
	return tools, nil
}

// ListAllTools returns every tool across every connected server, namespaced
// by server, for offering to the LLM's fresh-discovery tool choice. Partial
// results are returned if some servers fail to list.
func (c *Client) ListAllTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.RLock()
	serverIDs := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		serverIDs = append(serverIDs, id)
	}
	c.mu.RUnlock()

	var out []ToolInfo
	var lastErr error
	for _, id := range serverIDs {
		tools, err := c.ListTools(ctx, id)
		if err != nil {
			lastErr = err
			continue
		}
		for _, t := range tools {
			out = append(out, ToolInfo{
				Server:           id,
				Tool:             t.Name,
				Description:      t.Description,
				ParametersSchema: marshalSchema(t.InputSchema),
			})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all servers failed to list tools: %w", lastErr)
	}
	return out, nil
}

// CallTool executes one tool call, retrying once on a fresh session after a
// jittered backoff if ClassifyError says the failure is transport-level.
// Every error returned is tagged via coreerr.Timeoutf/TransportErrorf (spec
// §7: Timeout/TransportError failures from the discovery tier fall through
// to a user-visible apology rather than a generic failure).
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]interface{}) (string, error) {
	params := &mcpsdk.CallToolParams{Name: toolName, Arguments: args}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return maskedResultText(ctx, result)
	}

	if ClassifyError(err) == NoRetry {
		return "", classifyCallErr(ctx, err, "calling %s.%s", serverID, toolName)
	}

	select {
	case <-time.After(jitteredBackoff()):
	case <-ctx.Done():
		return "", coreerr.Timeoutf(ctx.Err(), "calling %s.%s", serverID, toolName)
	}

	if err := c.recreateSession(ctx, serverID); err != nil {
		return "", classifyCallErr(ctx, err, "session recreation failed for %q", serverID)
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return "", classifyCallErr(ctx, err, "retry failed for %q.%s", serverID, toolName)
	}
	return maskedResultText(ctx, result)
}

// classifyCallErr tags a discovery-tool-call failure the same way
// llmclient.GRPCClient.Complete does: a caller context that's already
// canceled or expired means Timeout, anything else reaching this far is a
// transport-level failure talking to the external server.
func classifyCallErr(ctx context.Context, cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if ctx.Err() != nil {
		return coreerr.Timeoutf(cause, "%s", msg)
	}
	return coreerr.TransportErrorf(cause, "%s", msg)
}

// maskedResultText extracts CallToolResult's text content, surfacing a
// server-reported tool failure (result.IsError) as a coreerr-tagged error so
// CallTool's caller treats it the same as a transport failure for
// discovery-logging purposes, and redacts credential-shaped substrings
// before the result reaches the agent's prompt or episodic memory.
func maskedResultText(ctx context.Context, result *mcpsdk.CallToolResult) (string, error) {
	text := extractTextContent(result)
	if result.IsError {
		return "", classifyCallErr(ctx, nil, "tool reported an error: %s", text)
	}
	return masking.Mask(text), nil
}

func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	c.mu.RLock()
	session, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()
	return session.CallTool(opCtx, params)
}

// recreateSession tears down and reconnects one server's session. As in the
// teacher, a race between two callers recreating the same server costs an
// extra reconnect, not correctness — acceptable for a path that only runs
// on failure.
func (c *Client) recreateSession(ctx context.Context, serverID string) error {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	c.mu.Lock()
	if session, exists := c.sessions[serverID]; exists {
		_ = session.Close()
		delete(c.sessions, serverID)
		for i, id := range c.acquireOrder {
			if id == serverID {
				c.acquireOrder = append(c.acquireOrder[:i], c.acquireOrder[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	c.toolCacheMu.Lock()
	delete(c.toolCache, serverID)
	c.toolCacheMu.Unlock()

	reinitCtx, cancel := context.WithTimeout(ctx, ReinitTimeout)
	defer cancel()
	return c.initializeServerLocked(reinitCtx, serverID)
}

// Close shuts down every session in reverse acquisition order (§4.5).
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for i := len(c.acquireOrder) - 1; i >= 0; i-- {
		id := c.acquireOrder[i]
		session, exists := c.sessions[id]
		if !exists {
			continue
		}
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	c.acquireOrder = nil
	c.failedServers = make(map[string]string)

	c.toolCacheMu.Lock()
	c.toolCache = make(map[string][]*mcpsdk.Tool)
	c.toolCacheMu.Unlock()

	return firstErr
}

// FailedServers reports servers that failed to connect during Initialize.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		out[k] = v
	}
	return out
}

func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func marshalSchema(schema interface{}) string {
	if schema == nil {
		return ""
	}
	s, err := llmclient.MarshalArguments(schema)
	if err != nil {
		return ""
	}
	return s
}
