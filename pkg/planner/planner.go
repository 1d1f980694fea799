// Package planner implements the MultiStepPlanner (spec §4.7): detects
// chained utterances ("research X, then create a project, then generate
// tasks") and executes each step in sequence over a shared context map,
// rather than handing the whole utterance to a single tier of the
// router cascade. Typed per-step context threading and per-step status
// reporting, run in plain sequential order since steps never need to
// run in parallel.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/pkg/discovery"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
)

// StepIntent classifies a parsed step so Execute knows which context
// fields it reads and writes.
type StepIntent string

const (
	IntentResearch      StepIntent = "research"
	IntentCreateProject StepIntent = "create_project"
	IntentGenerateTasks StepIntent = "generate_tasks"
)

// Step is one LLM-parsed element of steps.steps.
type Step struct {
	Intent      string `json:"intent"`
	Description string `json:"description"`
}

// StepOutcome is the per-step report in the failure policy (§4.7): a
// step failure aborts subsequent steps but every step attempted so far
// still gets a reported outcome.
type StepOutcome struct {
	Intent      string
	Description string
	Success     bool
	Output      string
	Error       string
}

// Result is the outcome of one Handle call.
type Result struct {
	MultiStep   bool
	Steps       []StepOutcome
	FullSuccess bool // true only if every parsed step ran and succeeded
}

// Researcher is the external-knowledge surface a research step
// delegates to — satisfied by *discovery.Agent. A narrow interface so
// planner tests don't need a live MCP session or memory-backed
// discovery store.
type Researcher interface {
	Handle(ctx context.Context, request, intent, userID string) (*discovery.Response, error)
}

// Planner implements the MultiStepPlanner contract.
type Planner struct {
	LLM      llmclient.Client
	Memory   *memory.Store
	Research Researcher
	Projects *entitystore.ProjectStore
	Tasks    *entitystore.TaskStore
}

// NewPlanner builds a Planner over its dependencies.
func NewPlanner(llm llmclient.Client, mem *memory.Store, research Researcher, projects *entitystore.ProjectStore, tasks *entitystore.TaskStore) *Planner {
	return &Planner{LLM: llm, Memory: mem, Research: research, Projects: projects, Tasks: tasks}
}

// planResponse is the strict JSON shape the parsing LLM call must emit.
type planResponse struct {
	Steps []Step `json:"steps"`
}

const planningSystemPrompt = `You split a user's request into a sequence of steps when it chains multiple actions together (e.g. "research X, then create a project, then generate tasks").

Respond with strict JSON only, no prose, no code fences, exactly this shape:
{"steps":[{"intent":"research|create_project|generate_tasks","description":"..."}]}

Use "research" for steps that gather information, "create_project" for steps that create a new project, and "generate_tasks" for steps that turn a template into tasks.`

// Handle implements detection, parsing, and sequential execution
// (spec §4.7). It returns {MultiStep:false} both when the utterance
// doesn't look chained and when the LLM's step response is malformed —
// in both cases the caller should fall back to the normal router
// cascade instead of treating this as an error.
func (p *Planner) Handle(ctx context.Context, utterance, userID string) (*Result, error) {
	if !looksMultiStep(utterance) {
		return &Result{MultiStep: false}, nil
	}

	steps, ok, err := p.parseSteps(ctx, utterance)
	if err != nil {
		return nil, fmt.Errorf("parsing steps: %w", err)
	}
	if !ok || len(steps) == 0 {
		return &Result{MultiStep: false}, nil
	}

	sctx := &stepContext{}
	outcomes := make([]StepOutcome, 0, len(steps))
	aborted := false

	for _, step := range steps {
		if aborted {
			break
		}
		outcome := StepOutcome{Intent: step.Intent, Description: step.Description}
		output, err := p.executeStep(ctx, step, sctx, userID)
		if err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			aborted = true
		} else {
			outcome.Success = true
			outcome.Output = output
		}
		outcomes = append(outcomes, outcome)
	}

	full := !aborted
	for _, o := range outcomes {
		if !o.Success {
			full = false
			break
		}
	}

	return &Result{MultiStep: true, Steps: outcomes, FullSuccess: full}, nil
}

// parseSteps calls the LLM at temperature 0 and validates its response.
// ok is false (with a nil error) on malformed JSON, per spec §4.7's
// "on malformed JSON, treat as non-multi-step".
func (p *Planner) parseSteps(ctx context.Context, utterance string) ([]Step, bool, error) {
	messages := []llmclient.Message{{Role: llmclient.RoleUser, Content: utterance}}
	resp, err := p.LLM.Complete(ctx, planningSystemPrompt, messages, nil, 0, 0, false)
	if err != nil {
		return nil, false, fmt.Errorf("calling planning llm: %w", err)
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &parsed); err != nil {
		return nil, false, nil
	}
	if len(parsed.Steps) == 0 {
		return nil, false, nil
	}
	for _, s := range parsed.Steps {
		if s.Intent == "" || s.Description == "" {
			return nil, false, nil
		}
	}
	return parsed.Steps, true, nil
}

// stepContext is the shared context map §4.7 threads across steps.
type stepContext struct {
	ResearchResults string
	ProjectID       string
	ProjectName     string
	Template        *ent.ProceduralRule
	TasksGenerated  []string
}

func (p *Planner) executeStep(ctx context.Context, step Step, sctx *stepContext, userID string) (string, error) {
	switch classifyIntent(step.Intent) {
	case IntentResearch:
		return p.executeResearch(ctx, step, sctx, userID)
	case IntentCreateProject:
		return p.executeCreateProject(ctx, step, sctx, userID)
	case IntentGenerateTasks:
		return p.executeGenerateTasks(ctx, step, sctx, userID)
	default:
		// Spec §4.7 names exactly these three step kinds; an intent the
		// LLM didn't use one of those three labels for is routed through
		// research, the most general-purpose of the three — it's still a
		// step worth attempting rather than an automatic abort.
		return p.executeResearch(ctx, step, sctx, userID)
	}
}

func classifyIntent(raw string) StepIntent {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "create_project", "create project", "project":
		return IntentCreateProject
	case "generate_tasks", "generate task", "tasks":
		return IntentGenerateTasks
	case "research":
		return IntentResearch
	default:
		return IntentResearch
	}
}
