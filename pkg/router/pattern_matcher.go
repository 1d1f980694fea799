// Package router implements the query-routing cascade (spec §4.1, §4.2,
// §4.6, §4.11): PatternMatcher, CommandParser, and the top-level Router
// that dispatches in strict tier order, using compiled-once package-level
// regexes, ordered checks, and forgiving fallbacks that never raise.
package router

import (
	"regexp"
	"strings"
)

// CommandKind enumerates the structured commands PatternMatcher can
// produce.
type CommandKind string

const (
	CommandListTasks     CommandKind = "list_tasks"
	CommandFilterTasks   CommandKind = "filter_tasks"
	CommandShowProject   CommandKind = "show_project"
	CommandSearchTasks   CommandKind = "search_tasks"
	CommandCompleteTask  CommandKind = "complete_task"
	CommandStartTask     CommandKind = "start_task"
	CommandListProjects  CommandKind = "list_projects"
	CommandGeneralStatus CommandKind = "general_status"
)

// Command is the structured result of a pattern match.
type Command struct {
	Kind CommandKind
	Args map[string]string
}

type rule struct {
	pattern   *regexp.Regexp
	extractor func(match []string) Command
}

// Compiled once at package init, checked in priority order — mirrors the
// teacher's compiled-once package-level regexp style.
var (
	actionVerbWord = regexp.MustCompile(`(?i)\b(complete|finish|finished|mark|start|begin|began)\b`)

	temporalPattern = regexp.MustCompile(`(?i)\b(today|this week|yesterday)\b`)

	projectDetailPattern = regexp.MustCompile(`(?i)show\s+(?:me\s+)?the\s+([a-z0-9 _-]+?)\s+project\b`)

	compoundFilterPattern = regexp.MustCompile(`(?i)\b(?:assigned to|assignee)\s+([a-z0-9._-]+)\b.*?\b(todo|in progress|in_progress|done)\b`)

	statusFilterPattern   = regexp.MustCompile(`(?i)\b(todo|in progress|in_progress|done)\b\s+tasks?\b`)
	priorityFilterPattern = regexp.MustCompile(`(?i)\b(low|medium|high)\s+priority\b`)

	listProjectsPattern = regexp.MustCompile(`(?i)\blist\s+(?:all\s+)?projects\b`)

	generalStatusPattern = regexp.MustCompile(`(?i)\b(status|progress)\b`)

	searchPattern = regexp.MustCompile(`(?i)\bsearch\s+(?:for\s+)?(.+)$`)
)

// Match runs the mandatory 8-tier priority order (spec §4.1) over text
// and returns the first rule that hits, or ok=false on no match. Pure,
// never raises.
func Match(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{}, false
	}

	// Tier 1: action verbs — checked before any status-word filter so
	// "I finished X" isn't misrouted to a status filter.
	if actionVerbWord.MatchString(trimmed) {
		if cmd, ok := matchActionVerb(trimmed); ok {
			return cmd, true
		}
	}

	// Tier 2: temporal filters.
	if m := temporalPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandFilterTasks, Args: map[string]string{"temporal": normalizeTemporal(m[1])}}, true
	}

	// Tier 3: explicit project-detail lookup.
	if m := projectDetailPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandShowProject, Args: map[string]string{"name": strings.TrimSpace(m[1])}}, true
	}

	// Tier 4: compound filter (assignee + status).
	if m := compoundFilterPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandFilterTasks, Args: map[string]string{
			"assignee": m[1],
			"status":   normalizeStatus(m[2]),
		}}, true
	}

	// Tier 5: single-attribute filters.
	if m := statusFilterPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandFilterTasks, Args: map[string]string{"status": normalizeStatus(m[1])}}, true
	}
	if m := priorityFilterPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandFilterTasks, Args: map[string]string{"priority": strings.ToLower(m[1])}}, true
	}

	// Tier 6: list-all projects.
	if listProjectsPattern.MatchString(trimmed) {
		return Command{Kind: CommandListProjects}, true
	}

	// Tier 7: general-status.
	if generalStatusPattern.MatchString(trimmed) {
		return Command{Kind: CommandGeneralStatus}, true
	}

	// Tier 8: open search (fallback).
	if m := searchPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: CommandSearchTasks, Args: map[string]string{"query": strings.TrimSpace(m[1])}}, true
	}

	return Command{}, false
}

// leadingFillerWords are stripped from the front of the extracted target
// so "finished the launch brief" yields "launch brief", not "the launch
// brief".
var leadingFillerWords = []string{"the", "task", "with"}

func matchActionVerb(text string) (Command, bool) {
	loc := actionVerbWord.FindStringIndex(text)
	if loc == nil {
		return Command{}, false
	}
	verb := strings.ToLower(text[loc[0]:loc[1]])
	target := extractActionTarget(text[loc[1]:])
	if target == "" {
		return Command{}, false
	}

	switch verb {
	case "complete", "finish", "finished", "mark":
		return Command{Kind: CommandCompleteTask, Args: map[string]string{"title": target}}, true
	case "start", "begin", "began":
		return Command{Kind: CommandStartTask, Args: map[string]string{"title": target}}, true
	default:
		return Command{}, false
	}
}

// extractActionTarget trims punctuation and leading filler words from the
// text following an action verb.
func extractActionTarget(rest string) string {
	target := strings.Trim(rest, " \t.!?")
	target = strings.Trim(target, `"'`)

	for {
		word, remainder, found := strings.Cut(target, " ")
		if !found {
			break
		}
		isFiller := false
		for _, filler := range leadingFillerWords {
			if strings.EqualFold(word, filler) {
				isFiller = true
				break
			}
		}
		if !isFiller {
			break
		}
		target = remainder
	}

	return strings.TrimSpace(strings.Trim(target, `"'`))
}

func normalizeTemporal(raw string) string {
	switch strings.ToLower(raw) {
	case "today":
		return "today"
	case "this week":
		return "this_week"
	case "yesterday":
		return "yesterday"
	default:
		return strings.ToLower(raw)
	}
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "in progress" {
		return "in_progress"
	}
	return s
}
