// Package summarizer implements the EpisodicSummarizer (spec §4.8): a
// fire-and-forget side-channel that computes a fresh entity summary via
// a small/fast LLM model and persists it, without ever blocking the
// mutating operation that triggered it. Runs detached in its own
// goroutine on its own context.Background() deadline; failures are
// logged via slog.Warn and never propagated to the caller.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/episodicsummary"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/tools"
)

// generateTimeout bounds the detached goroutine's LLM call and store
// write, so a hung summarizer model never leaks a goroutine forever.
const generateTimeout = 20 * time.Second

// Summarizer implements tools.SummarizerSignal.
type Summarizer struct {
	LLM      llmclient.Client
	Memory   *memory.Store
	Tasks    entitystore.EntityStore
	Projects entitystore.EntityStore
}

var _ tools.SummarizerSignal = (*Summarizer)(nil)

// New builds a Summarizer. llm is expected to be configured against a
// small/fast model (spec §4.8) — a separate llmclient.Client instance
// from the one driving LLMAgentLoop, not a mode switch on the same one.
func New(llm llmclient.Client, mem *memory.Store, tasks, projects entitystore.EntityStore) *Summarizer {
	return &Summarizer{LLM: llm, Memory: mem, Tasks: tasks, Projects: projects}
}

// Signal evaluates the trigger logic and, if it fires, launches a
// detached goroutine to generate and persist the summary. It never
// blocks its caller and never returns an error — spec §4.8's "must be
// fire-and-forget with failures silently logged".
func (s *Summarizer) Signal(_ context.Context, userID, entityType, entityID string, activityCount int, fieldsChanged []string) {
	if !shouldSummarize(entityType, activityCount, fieldsChanged) {
		return
	}
	go s.generate(userID, entityType, entityID, activityCount)
}

// shouldSummarize implements the two trigger rules (spec §4.8):
// tasks fire at creation and every fourth update thereafter
// (activity_count ∈ {1,5,9,13,...}); projects fire only when this
// mutation actually touched description or notes.
func shouldSummarize(entityType string, activityCount int, fieldsChanged []string) bool {
	switch entityType {
	case "task":
		return activityCount >= 1 && (activityCount-1)%4 == 0
	case "project":
		for _, f := range fieldsChanged {
			if f == "description" || f == "notes" {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// generate runs detached from the request that triggered it — its own
// background context and deadline, exactly as event_service.go's
// best-effort writes use context.Background() rather than the inbound
// request context, since that context is gone by the time this
// goroutine runs.
func (s *Summarizer) generate(userID, entityType, entityID string, activityCount int) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	logger := slog.With("entity_type", entityType, "entity_id", entityID)

	snapshot, err := s.snapshot(ctx, userID, entityType, entityID)
	if err != nil {
		logger.Warn("episodic summarizer: failed to load entity snapshot", "error", err)
		return
	}

	resp, err := s.LLM.Complete(ctx, summarizerSystemPrompt, []llmclient.Message{
		{Role: llmclient.RoleUser, Content: snapshot},
	}, nil, 0, 0, false)
	if err != nil {
		logger.Warn("episodic summarizer: llm call failed", "error", err)
		return
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		logger.Warn("episodic summarizer: llm returned an empty summary")
		return
	}

	if err := s.Memory.StoreSummary(ctx, episodicsummary.EntityType(entityType), entityID, summary, activityCount); err != nil {
		logger.Warn("episodic summarizer: failed to store summary", "error", err)
		return
	}
}

const summarizerSystemPrompt = `Summarize the entity below in 2-3 sentences for someone picking this work back up later. Focus on current state and anything notable that changed recently. Respond with the summary text only, no preamble.`

// snapshot renders the entity's current fields into a short prompt body.
func (s *Summarizer) snapshot(ctx context.Context, userID, entityType, entityID string) (string, error) {
	var store entitystore.EntityStore
	switch entityType {
	case "task":
		store = s.Tasks
	case "project":
		store = s.Projects
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}

	docs, err := store.Find(ctx, userID, entitystore.Filter{"id": entityID}, 1, entitystore.Sort{})
	if err != nil {
		return "", fmt.Errorf("loading %s %s: %w", entityType, entityID, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("%s %s not found", entityType, entityID)
	}

	switch v := docs[0].(type) {
	case *ent.Task:
		return renderTask(v), nil
	case *ent.Project:
		return renderProject(v), nil
	default:
		return "", fmt.Errorf("unexpected document type for %s %s", entityType, entityID)
	}
}

func renderTask(t *ent.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nStatus: %s\nPriority: %s\n", t.Title, t.Status, t.Priority)
	if t.Description != nil && *t.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", *t.Description)
	}
	if t.Context != nil && *t.Context != "" {
		fmt.Fprintf(&b, "Notes: %s\n", *t.Context)
	}
	return b.String()
}

func renderProject(p *ent.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", p.Name)
	if p.Description != nil && *p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", *p.Description)
	}
	if p.Notes != nil && *p.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", *p.Notes)
	}
	return b.String()
}
