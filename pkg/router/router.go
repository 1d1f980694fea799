// Router ties the tiers together: PatternMatcher and CommandParser above
// execute deterministically against the entity stores with no LLM
// involvement at all; LLMAgentLoop and DiscoveryAgent below are reached
// only once an utterance has cleared both. A fixed priority cascade with
// one terminal branch per request, no backtracking once a tier claims
// the utterance.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/pkg/agentloop"
	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/coreerr"
	"github.com/coretask-core/coretask/pkg/discovery"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/planner"
	"github.com/coretask-core/coretask/pkg/tools"
)

// discoveryUnavailableMessage is returned verbatim (spec §4.6 step 4:
// "return a short user-visible message advising how to enable it").
const discoveryUnavailableMessage = "I'd need to look that up externally to answer this, but discovery mode is off. Ask an admin to enable discovery_mode_enabled to allow external lookups."

// Tier identifies which cascade step produced a Response, for logging and
// tests.
type Tier int

const (
	TierMultiStep Tier = iota + 1
	TierPatternMatch
	TierCommand
	TierAgentLoop
	TierDiscovery
)

// String renders the tier name for logging and API responses.
func (t Tier) String() string {
	switch t {
	case TierMultiStep:
		return "multi_step"
	case TierPatternMatch:
		return "pattern_match"
	case TierCommand:
		return "command"
	case TierAgentLoop:
		return "agent_loop"
	case TierDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// Response is the uniform outcome of one Router.Handle call.
type Response struct {
	Tier Tier
	Text string
}

// Router is the top-level cascade (spec §4.6).
type Router struct {
	Config    *config.RouterConfig
	Memory    *memory.Store
	Tasks     *entitystore.TaskStore
	Projects  *entitystore.ProjectStore
	Executor  *tools.Executor
	Registry  *tools.Registry
	Loop      *agentloop.Loop
	Discovery *discovery.Agent
	Planner   *planner.Planner
}

// Handle runs the strict-order cascade over one utterance (spec §4.6),
// checking the MultiStepPlanner ahead of the four named tiers: spec.md's
// cascade text is silent on where chained-utterance detection fits, but
// a plan spanning research/create-project/generate-tasks steps can't be
// expressed by any single tier below, so detection runs first and only
// falls through to the normal cascade when the utterance isn't
// multi-step.
func (r *Router) Handle(ctx context.Context, text, userID, sessionID string) (*Response, error) {
	if r.Planner != nil {
		plan, err := r.Planner.Handle(ctx, text, userID)
		if err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
		if plan.MultiStep {
			return &Response{Tier: TierMultiStep, Text: renderPlan(plan)}, nil
		}
	}

	if cmd, ok := Match(text); ok {
		return r.executeCommand(ctx, TierPatternMatch, cmd, userID, sessionID)
	}

	if strings.HasPrefix(text, "/") {
		parsed, err := ParseCommand(text)
		if err != nil {
			return &Response{Tier: TierCommand, Text: coreerr.UserMessage(err)}, nil
		}
		cmd, err := commandFromParsed(parsed)
		if err != nil {
			return &Response{Tier: TierCommand, Text: coreerr.UserMessage(err)}, nil
		}
		return r.executeCommand(ctx, TierCommand, cmd, userID, sessionID)
	}

	// Step 3: static-tools-handleable or discovery mode off -> Tier 3.
	if !isDiscoveryCandidate(text) || !r.Config.DiscoveryModeEnabled {
		return r.runAgentLoop(ctx, text, userID, sessionID)
	}

	// Step 4: by construction discovery mode is on here, but spec §4.6
	// calls for never silently falling through, so the gate is checked
	// again right before dispatch rather than assumed from step 3.
	if !r.Config.DiscoveryModeEnabled {
		return &Response{Tier: TierDiscovery, Text: discoveryUnavailableMessage}, nil
	}
	resp, err := r.Discovery.Handle(ctx, text, "", userID)
	if err != nil {
		// Timeout/TransportError failures mark the discovery as
		// success=false and fall through to a user-visible apology with
		// the intent preserved for retry (spec §7), rather than
		// propagating as a request failure.
		if coreerr.Is(err, coreerr.KindTimeout) || coreerr.Is(err, coreerr.KindTransport) {
			return &Response{Tier: TierDiscovery, Text: coreerr.UserMessage(err)}, nil
		}
		return nil, fmt.Errorf("discovery agent: %w", err)
	}
	return &Response{Tier: TierDiscovery, Text: resp.Result}, nil
}

// externalKnowledgeIndicator flags utterances that plausibly need
// up-to-date or external information the static tool catalogue can't
// answer from stored entities alone — the intent-classification half of
// spec §4.6 step 3. Compiled once, mirroring the rest of this package's
// pattern-matching style.
var externalKnowledgeIndicator = regexp.MustCompile(`(?i)\b(latest|current|today's|this week's|news|online|the web|internet|documentation|changelog|release notes|pricing for|price of|compare .* (?:vs\.?|versus)|how do I (?:configure|install|set up))\b`)

func isDiscoveryCandidate(text string) bool {
	return externalKnowledgeIndicator.MatchString(text)
}

func (r *Router) runAgentLoop(ctx context.Context, text, userID, sessionID string) (*Response, error) {
	pending, err := r.Memory.PeekPending(ctx, sessionID, tools.DisambiguationAgent)
	if err != nil {
		return nil, fmt.Errorf("peeking pending disambiguation: %w", err)
	}
	memCtx, err := BuildMemoryContext(ctx, r.Memory, sessionID, userID, renderPending(pending))
	if err != nil {
		return nil, fmt.Errorf("building memory context: %w", err)
	}

	result, err := r.Loop.Run(ctx, memCtx, []llmclient.Message{
		{Role: llmclient.RoleUser, Content: text},
	}, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent loop: %w", err)
	}
	return &Response{Tier: TierAgentLoop, Text: result.FinalText}, nil
}

func renderPending(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", payload)
}

func renderPlan(plan *planner.Result) string {
	var b strings.Builder
	for i, step := range plan.Steps {
		status := "ok"
		if !step.Success {
			status = "failed: " + step.Error
		}
		fmt.Fprintf(&b, "%d. %s (%s) — %s\n", i+1, step.Description, step.Intent, status)
	}
	if plan.FullSuccess {
		b.WriteString("All steps completed.")
	} else {
		b.WriteString("Stopped after a step failed.")
	}
	return b.String()
}

// commandFromParsed maps a slash-command verb onto the same Command shape
// PatternMatcher produces, so both tiers share one execution path.
func commandFromParsed(pc *ParsedCommand) (Command, error) {
	switch strings.ToLower(pc.Verb) {
	case "complete":
		return Command{Kind: CommandCompleteTask, Args: map[string]string{"title": strings.Join(pc.Args, " ")}}, nil
	case "start":
		return Command{Kind: CommandStartTask, Args: map[string]string{"title": strings.Join(pc.Args, " ")}}, nil
	case "list", "tasks":
		args := map[string]string{}
		for _, k := range []string{"status", "priority", "assignee", "limit"} {
			if v, ok := pc.Kwargs[k]; ok {
				args[k] = v
			}
		}
		return Command{Kind: CommandListTasks, Args: args}, nil
	case "filter":
		args := map[string]string{}
		for _, k := range []string{"status", "priority", "assignee"} {
			if v, ok := pc.Kwargs[k]; ok {
				args[k] = v
			}
		}
		return Command{Kind: CommandFilterTasks, Args: args}, nil
	case "projects":
		return Command{Kind: CommandListProjects}, nil
	case "show":
		return Command{Kind: CommandShowProject, Args: map[string]string{"name": strings.Join(pc.Args, " ")}}, nil
	case "search":
		return Command{Kind: CommandSearchTasks, Args: map[string]string{"query": strings.Join(pc.Args, " ")}}, nil
	case "status":
		return Command{Kind: CommandGeneralStatus}, nil
	default:
		return Command{}, coreerr.ParseErrorf("unknown command /%s", pc.Verb)
	}
}

// executeCommand dispatches a matched Command deterministically against
// the tool executor — no LLM call, satisfying Tier 1/2's invariant.
func (r *Router) executeCommand(ctx context.Context, tier Tier, cmd Command, userID, sessionID string) (*Response, error) {
	switch cmd.Kind {
	case CommandCompleteTask:
		return r.executeByTitle(ctx, tier, userID, sessionID, cmd.Args["title"], tools.ToolCompleteTask)
	case CommandStartTask:
		return r.executeByTitle(ctx, tier, userID, sessionID, cmd.Args["title"], tools.ToolStartTask)
	case CommandShowProject:
		return r.executeByProjectName(ctx, tier, userID, sessionID, cmd.Args["name"])
	case CommandFilterTasks:
		return r.execute(ctx, tier, userID, sessionID, tools.ToolListTasks, filterArgs(cmd.Args))
	case CommandListTasks:
		return r.execute(ctx, tier, userID, sessionID, tools.ToolListTasks, filterArgs(cmd.Args))
	case CommandListProjects:
		return r.execute(ctx, tier, userID, sessionID, tools.ToolListProjects, map[string]interface{}{})
	case CommandGeneralStatus:
		return r.execute(ctx, tier, userID, sessionID, tools.ToolRecentActivity, map[string]interface{}{})
	case CommandSearchTasks:
		return r.execute(ctx, tier, userID, sessionID, tools.ToolSearchTasks, map[string]interface{}{"query": cmd.Args["query"]})
	default:
		return &Response{Tier: tier, Text: "I didn't understand that command."}, nil
	}
}

// filterArgs passes through the string-keyed filter args a Command
// carries; "limit" is parsed to an int since list_tasks's schema wants
// one. "temporal" (today/this_week/yesterday) has no corresponding
// column on Task to filter by in TaskStore.Find, so it's dropped here
// rather than sent through as an unsupported filter key — a known gap,
// not a silent one (see DESIGN.md).
func filterArgs(raw map[string]string) map[string]interface{} {
	args := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "temporal" {
			continue
		}
		if k == "limit" {
			if n, err := strconv.Atoi(v); err == nil {
				args[k] = n
				continue
			}
		}
		args[k] = v
	}
	return args
}

func (r *Router) execute(ctx context.Context, tier Tier, userID, sessionID, toolName string, args map[string]interface{}) (*Response, error) {
	arguments, err := llmclient.MarshalArguments(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool arguments: %w", err)
	}
	result := r.Executor.Execute(ctx, llmclient.ToolCall{ID: "router", Name: toolName, Arguments: arguments}, userID, sessionID)
	return &Response{Tier: tier, Text: result.Content}, nil
}

// executeByTitle resolves a task by a case-insensitive substring match on
// title (PatternMatcher extracts free text, not an id) and dispatches the
// named mutation tool against it. Ambiguous or absent matches are
// reported back to the user rather than guessing.
func (r *Router) executeByTitle(ctx context.Context, tier Tier, userID, sessionID, title, toolName string) (*Response, error) {
	id, err := resolveTaskID(ctx, r.Tasks, userID, title)
	if err != nil {
		return &Response{Tier: tier, Text: coreerr.UserMessage(err)}, nil
	}
	return r.execute(ctx, tier, userID, sessionID, toolName, map[string]interface{}{"id": id})
}

func (r *Router) executeByProjectName(ctx context.Context, tier Tier, userID, sessionID, name string) (*Response, error) {
	id, err := resolveProjectID(ctx, r.Projects, userID, name)
	if err != nil {
		return &Response{Tier: tier, Text: coreerr.UserMessage(err)}, nil
	}
	return r.execute(ctx, tier, userID, sessionID, tools.ToolGetProject, map[string]interface{}{"id": id})
}

func resolveTaskID(ctx context.Context, store *entitystore.TaskStore, userID, title string) (string, error) {
	docs, err := store.Find(ctx, userID, entitystore.Filter{}, 200, entitystore.Sort{})
	if err != nil {
		return "", fmt.Errorf("listing tasks: %w", err)
	}
	return matchOneByTitle(docs, title, taskTitle)
}

func resolveProjectID(ctx context.Context, store *entitystore.ProjectStore, userID, name string) (string, error) {
	docs, err := store.Find(ctx, userID, entitystore.Filter{}, 200, entitystore.Sort{})
	if err != nil {
		return "", fmt.Errorf("listing projects: %w", err)
	}
	return matchOneByTitle(docs, name, projectName)
}

type titledDoc struct {
	id    string
	title string
}

func taskTitle(doc interface{}) titledDoc {
	t, ok := doc.(*ent.Task)
	if !ok {
		return titledDoc{}
	}
	return titledDoc{id: t.ID, title: t.Title}
}

func projectName(doc interface{}) titledDoc {
	p, ok := doc.(*ent.Project)
	if !ok {
		return titledDoc{}
	}
	return titledDoc{id: p.ID, title: p.Name}
}

func matchOneByTitle(docs []interface{}, needle string, extract func(interface{}) titledDoc) (string, error) {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return "", coreerr.ValidationErrorf("no title given to match against")
	}
	var matches []titledDoc
	for _, doc := range docs {
		td := extract(doc)
		if strings.Contains(strings.ToLower(td.title), needle) {
			matches = append(matches, td)
		}
	}
	switch len(matches) {
	case 0:
		return "", coreerr.NotFoundf("no match found for %q", needle)
	case 1:
		return matches[0].id, nil
	default:
		return "", coreerr.Conflictf("%q matches %d items, please be more specific", needle, len(matches))
	}
}
