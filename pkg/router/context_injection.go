package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coretask-core/coretask/ent/workingmemoryentry"
	"github.com/coretask-core/coretask/pkg/memory"
)

// contextConfidenceFloor is the minimum confidence for a preference or
// rule to appear in the injected memory context (spec §4.11 items 2-3).
const contextConfidenceFloor = 0.5

// recentEpisodicWindow and recentEpisodicCount bound item 4 of the
// context block.
const (
	recentEpisodicWindow = 7 * 24 * time.Hour
	recentEpisodicCount  = 5
)

// BuildMemoryContext assembles the system-prompt suffix described in
// spec §4.11: working memory, preferences, rules, recent episodic
// events, and any pending disambiguation, in that fixed order, omitting
// empty sections.
func BuildMemoryContext(ctx context.Context, store *memory.Store, sessionID, userID string, pendingDisambiguation string) (string, error) {
	var sections []string

	working, err := workingMemorySection(ctx, store, sessionID)
	if err != nil {
		return "", fmt.Errorf("building working memory section: %w", err)
	}
	if working != "" {
		sections = append(sections, working)
	}

	prefs, err := store.GetPreferences(ctx, userID, contextConfidenceFloor)
	if err != nil {
		return "", fmt.Errorf("loading preferences for context: %w", err)
	}
	if len(prefs) > 0 {
		var b strings.Builder
		b.WriteString("User preferences:\n")
		for _, p := range prefs {
			fmt.Fprintf(&b, "- %s: %s (confidence %.2f)\n", p.Key, p.Value, p.Confidence)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	rules, err := rulesSection(ctx, store, userID)
	if err != nil {
		return "", fmt.Errorf("loading rules for context: %w", err)
	}
	if rules != "" {
		sections = append(sections, rules)
	}

	recent, err := store.RecentEpisodic(ctx, userID, recentEpisodicWindow, recentEpisodicCount)
	if err != nil {
		return "", fmt.Errorf("loading recent episodic events: %w", err)
	}
	if len(recent) > 0 {
		var b strings.Builder
		b.WriteString("Recent activity:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "- %s: %s\n", e.ActionType, e.Description)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if pendingDisambiguation != "" {
		sections = append(sections, "Pending disambiguation:\n"+pendingDisambiguation)
	}

	return strings.Join(sections, "\n\n"), nil
}

func workingMemorySection(ctx context.Context, store *memory.Store, sessionID string) (string, error) {
	types := []workingmemoryentry.WorkingType{
		workingmemoryentry.WorkingTypeCurrentProject,
		workingmemoryentry.WorkingTypeCurrentTask,
		workingmemoryentry.WorkingTypeLastAction,
	}

	var lines []string
	for _, t := range types {
		entry, err := store.GetWorking(ctx, sessionID, t)
		if err != nil {
			return "", err
		}
		if entry != nil {
			lines = append(lines, fmt.Sprintf("- %s: %s", t, entry.Value))
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "Current context:\n" + strings.Join(lines, "\n"), nil
}

func rulesSection(ctx context.Context, store *memory.Store, userID string) (string, error) {
	rules, err := store.ListRules(ctx, userID, contextConfidenceFloor)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Learned rules:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "- when %q: %s (used %d times)\n", r.NormalizedTrigger, r.ActionTag, r.TimesUsed)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
