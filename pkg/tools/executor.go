package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/workingmemoryentry"
	"github.com/coretask-core/coretask/pkg/coreerr"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/entitystore"
	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/coretask-core/coretask/pkg/memory"
	"github.com/coretask-core/coretask/pkg/retrieval"
)

// DisambiguationAgent is the fixed to_agent value the router/planner uses
// when creating a pending disambiguation handoff, and that
// resolve_disambiguation consumes from.
const DisambiguationAgent = "disambiguation"

// defaultKnowledgeThreshold is search_knowledge's similarity floor
// (spec §4.3, §9 Open Question resolved to 0.65).
const defaultKnowledgeThreshold = 0.65

// Result is the outcome of one tool execution: structured or plain-text
// content, or a structured error rendered as content rather than a Go
// error, so the caller always gets something to show the LLM.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// SummarizerSignal is the hook Executor notifies after every successful
// mutation so the EpisodicSummarizer can decide, independently and
// fire-and-forget, whether to generate a new summary (spec §4.3, §4.8).
// Declared here rather than imported from pkg/summarizer to avoid a
// dependency cycle — the summarizer depends on pkg/entitystore to read
// entities back, not on pkg/tools.
type SummarizerSignal interface {
	Signal(ctx context.Context, userID, entityType, entityID string, activityCount int, fieldsChanged []string)
}

// Executor dispatches every built-in tool call (spec §4.3). One Executor
// is shared across a session's LLMAgentLoop iterations.
type Executor struct {
	Tasks              entitystore.EntityStore
	Projects           entitystore.EntityStore
	Memory             *memory.Store
	Embedder           embedclient.Client
	Summarizer         SummarizerSignal
	KnowledgeThreshold float32
}

// NewExecutor constructs an Executor with the default search_knowledge
// threshold; set KnowledgeThreshold directly afterward to override.
func NewExecutor(tasks, projects entitystore.EntityStore, mem *memory.Store, embedder embedclient.Client, summarizer SummarizerSignal) *Executor {
	return &Executor{
		Tasks:              tasks,
		Projects:           projects,
		Memory:             mem,
		Embedder:           embedder,
		Summarizer:         summarizer,
		KnowledgeThreshold: defaultKnowledgeThreshold,
	}
}

// Execute dispatches call to the matching tool. Never returns a Go error;
// failures are reported as Result.IsError content, per the catalogue's
// execute(name, args, ctx) -> result | ToolError contract.
func (e *Executor) Execute(ctx context.Context, call llmclient.ToolCall, userID, sessionID string) *Result {
	args, err := parseArgs(call.Arguments)
	if err != nil {
		return errResult(call, coreerr.ValidationErrorf("parsing arguments for %s: %v", call.Name, err))
	}

	switch call.Name {
	case ToolCreateTask:
		return e.createTask(ctx, call, userID, sessionID, args)
	case ToolUpdateTask:
		return e.updateTask(ctx, call, userID, sessionID, args, "")
	case ToolCompleteTask:
		return e.updateTask(ctx, call, userID, sessionID, args, "done")
	case ToolStartTask:
		return e.updateTask(ctx, call, userID, sessionID, args, "in_progress")
	case ToolStopTask:
		return e.updateTask(ctx, call, userID, sessionID, args, "todo")
	case ToolCreateProject:
		return e.createProject(ctx, call, userID, sessionID, args)
	case ToolUpdateProject:
		return e.updateProject(ctx, call, userID, sessionID, args)
	case ToolAddNote:
		return e.addNote(ctx, call, userID, sessionID, args)
	case ToolGetTask:
		return e.getEntity(ctx, call, userID, e.Tasks, args)
	case ToolGetProject:
		return e.getEntity(ctx, call, userID, e.Projects, args)
	case ToolListTasks:
		return e.listTasks(ctx, call, userID, args)
	case ToolListProjects:
		return e.listProjects(ctx, call, userID, args)
	case ToolSearchTasks:
		return e.searchTasks(ctx, call, userID, args)
	case ToolRecentActivity:
		return e.recentActivity(ctx, call, userID, args)
	case ToolSearchKnowledge:
		return e.searchKnowledge(ctx, call, userID, args)
	case ToolListTemplates:
		return e.listTemplates(ctx, call, userID)
	case ToolAnalyzeToolDiscoveries:
		return e.analyzeDiscoveries(ctx, call, userID, args)
	case ToolResolveDisambiguation:
		return e.resolveDisambiguation(ctx, call, sessionID)
	default:
		return errResult(call, coreerr.ValidationErrorf("unknown tool %q", call.Name))
	}
}

// --- entity mutation ---

func (e *Executor) createTask(ctx context.Context, call llmclient.ToolCall, userID, sessionID string, args map[string]interface{}) *Result {
	title, _ := args["title"].(string)
	if title == "" {
		return errResult(call, coreerr.ValidationErrorf("create_task requires title"))
	}

	doc := map[string]interface{}{"title": title}
	for _, k := range []string{"description", "status", "priority", "assignee", "project_id", "context"} {
		if v, ok := args[k]; ok {
			doc[k] = v
		}
	}
	if v, ok := args["due_date"].(string); ok && v != "" {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			doc["due_date"] = t
		}
	}

	id, err := e.Tasks.Insert(ctx, userID, doc)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "creating task"))
	}
	e.afterMutation(ctx, userID, sessionID, "task", id,
		workingmemoryentry.WorkingTypeCurrentTask, id,
		"task_created", fmt.Sprintf("Created task %q", title), nil)
	return okResult(call, fmt.Sprintf(`{"id":%q,"title":%q}`, id, title))
}

func (e *Executor) updateTask(ctx context.Context, call llmclient.ToolCall, userID, sessionID string, args map[string]interface{}, forceStatus string) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult(call, coreerr.ValidationErrorf("%s requires id", call.Name))
	}

	patch := entitystore.Patch{}
	var fieldsChanged []string
	for _, k := range []string{"title", "description", "status", "priority", "assignee", "project_id", "context"} {
		if v, ok := args[k]; ok {
			patch[k] = v
			fieldsChanged = append(fieldsChanged, k)
		}
	}
	if v, ok := args["due_date"].(string); ok && v != "" {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			patch["due_date"] = t
			fieldsChanged = append(fieldsChanged, "due_date")
		}
	}
	if forceStatus != "" {
		patch["status"] = forceStatus
		fieldsChanged = append(fieldsChanged, "status")
	}

	if err := e.Tasks.Update(ctx, userID, id, patch); err != nil {
		return errResult(call, coreerr.NotFoundf("updating task %s: %v", id, err))
	}

	actionType := "task_updated"
	switch forceStatus {
	case "done":
		actionType = "task_completed"
	case "in_progress":
		actionType = "task_started"
	case "todo":
		actionType = "task_stopped"
	}
	e.afterMutation(ctx, userID, sessionID, "task", id,
		workingmemoryentry.WorkingTypeCurrentTask, id,
		actionType, fmt.Sprintf("Updated task %s", id), fieldsChanged)
	return okResult(call, fmt.Sprintf(`{"id":%q,"updated":true}`, id))
}

func (e *Executor) createProject(ctx context.Context, call llmclient.ToolCall, userID, sessionID string, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	if name == "" {
		return errResult(call, coreerr.ValidationErrorf("create_project requires name"))
	}

	doc := map[string]interface{}{"name": name}
	for _, k := range []string{"description", "notes"} {
		if v, ok := args[k]; ok {
			doc[k] = v
		}
	}

	id, err := e.Projects.Insert(ctx, userID, doc)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "creating project"))
	}
	e.afterMutation(ctx, userID, sessionID, "project", id,
		workingmemoryentry.WorkingTypeCurrentProject, id,
		"project_created", fmt.Sprintf("Created project %q", name), nil)
	return okResult(call, fmt.Sprintf(`{"id":%q,"name":%q}`, id, name))
}

func (e *Executor) updateProject(ctx context.Context, call llmclient.ToolCall, userID, sessionID string, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult(call, coreerr.ValidationErrorf("update_project requires id"))
	}

	patch := entitystore.Patch{}
	var fieldsChanged []string
	for _, k := range []string{"name", "description", "notes"} {
		if v, ok := args[k]; ok {
			patch[k] = v
			fieldsChanged = append(fieldsChanged, k)
		}
	}

	if err := e.Projects.Update(ctx, userID, id, patch); err != nil {
		return errResult(call, coreerr.NotFoundf("updating project %s: %v", id, err))
	}
	e.afterMutation(ctx, userID, sessionID, "project", id,
		workingmemoryentry.WorkingTypeCurrentProject, id,
		"project_updated", fmt.Sprintf("Updated project %s", id), fieldsChanged)
	return okResult(call, fmt.Sprintf(`{"id":%q,"updated":true}`, id))
}

func (e *Executor) addNote(ctx context.Context, call llmclient.ToolCall, userID, sessionID string, args map[string]interface{}) *Result {
	entityType, _ := args["entity_type"].(string)
	entityID, _ := args["entity_id"].(string)
	note, _ := args["note"].(string)
	if entityType == "" || entityID == "" || note == "" {
		return errResult(call, coreerr.ValidationErrorf("add_note requires entity_type, entity_id, note"))
	}

	switch entityType {
	case "task":
		docs, err := e.Tasks.Find(ctx, userID, entitystore.Filter{"id": entityID}, 1, entitystore.Sort{})
		if err != nil || len(docs) == 0 {
			return errResult(call, coreerr.NotFoundf("task %s not found", entityID))
		}
		t := docs[0].(*ent.Task)
		if err := e.Tasks.Update(ctx, userID, entityID, entitystore.Patch{"context": appendNote(t.Context, note)}); err != nil {
			return errResult(call, coreerr.Internalf(err, "adding note to task"))
		}
		e.afterMutation(ctx, userID, sessionID, "task", entityID,
			workingmemoryentry.WorkingTypeCurrentTask, entityID, "note_added", note, []string{"context"})
	case "project":
		docs, err := e.Projects.Find(ctx, userID, entitystore.Filter{"id": entityID}, 1, entitystore.Sort{})
		if err != nil || len(docs) == 0 {
			return errResult(call, coreerr.NotFoundf("project %s not found", entityID))
		}
		p := docs[0].(*ent.Project)
		if err := e.Projects.Update(ctx, userID, entityID, entitystore.Patch{"notes": appendNote(p.Notes, note)}); err != nil {
			return errResult(call, coreerr.Internalf(err, "adding note to project"))
		}
		e.afterMutation(ctx, userID, sessionID, "project", entityID,
			workingmemoryentry.WorkingTypeCurrentProject, entityID, "note_added", note, []string{"notes"})
	default:
		return errResult(call, coreerr.ValidationErrorf("add_note: unknown entity_type %q", entityType))
	}
	return okResult(call, `{"added":true}`)
}

func appendNote(existing *string, note string) string {
	if existing == nil || *existing == "" {
		return note
	}
	return *existing + "\n" + note
}

// afterMutation runs the mandatory post-mutation side effects (spec
// §4.3): append an episodic event, update the relevant working-memory
// key, and signal the EpisodicSummarizer with the entity's current
// activity_count.
func (e *Executor) afterMutation(ctx context.Context, userID, sessionID, entityType, entityID string, wtype workingmemoryentry.WorkingType, workingValue, actionType, description string, fieldsChanged []string) {
	_, _ = e.Memory.RecordEpisodic(ctx, userID, actionType, description,
		map[string]interface{}{"entity_type": entityType, "entity_id": entityID}, true)
	_ = e.Memory.SetWorking(ctx, sessionID, wtype, workingValue, nil)

	if e.Summarizer == nil {
		return
	}
	store := e.Tasks
	if entityType == "project" {
		store = e.Projects
	}
	count := e.currentActivityCount(ctx, store, userID, entityID)
	e.Summarizer.Signal(ctx, userID, entityType, entityID, count, fieldsChanged)
}

func (e *Executor) currentActivityCount(ctx context.Context, store entitystore.EntityStore, userID, id string) int {
	docs, err := store.Find(ctx, userID, entitystore.Filter{"id": id}, 1, entitystore.Sort{})
	if err != nil || len(docs) == 0 {
		return 0
	}
	switch v := docs[0].(type) {
	case *ent.Task:
		return v.ActivityCount
	case *ent.Project:
		return v.ActivityCount
	default:
		return 0
	}
}

// --- entity retrieval ---

func (e *Executor) getEntity(ctx context.Context, call llmclient.ToolCall, userID string, store entitystore.EntityStore, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return errResult(call, coreerr.ValidationErrorf("%s requires id", call.Name))
	}
	docs, err := store.Find(ctx, userID, entitystore.Filter{"id": id}, 1, entitystore.Sort{})
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "fetching %s", call.Name))
	}
	if len(docs) == 0 {
		return errResult(call, coreerr.NotFoundf("%s: no entity with id %s", call.Name, id))
	}
	b, _ := json.Marshal(docs[0])
	return okResult(call, string(b))
}

func (e *Executor) listTasks(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	filter := entitystore.Filter{}
	for _, k := range []string{"status", "priority", "project_id", "assignee"} {
		if v, ok := args[k].(string); ok && v != "" {
			filter[k] = v
		}
	}
	docs, err := e.Tasks.Find(ctx, userID, filter, intArg(args, "limit", 50), entitystore.Sort{})
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing tasks"))
	}
	b, _ := json.Marshal(docs)
	return okResult(call, string(b))
}

func (e *Executor) listProjects(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	docs, err := e.Projects.Find(ctx, userID, entitystore.Filter{}, intArg(args, "limit", 50), entitystore.Sort{})
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing projects"))
	}
	b, _ := json.Marshal(docs)
	return okResult(call, string(b))
}

func (e *Executor) searchTasks(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return errResult(call, coreerr.ValidationErrorf("search_tasks requires query"))
	}
	mode, _ := args["mode"].(string)
	limit := intArg(args, "limit", 10)

	var hits []retrieval.Hit
	var err error
	switch mode {
	case "text":
		hits, err = e.Tasks.TextSearch(ctx, userID, query, limit)
	case "vector":
		var vec embedclient.Vector
		vec, err = e.Embedder.Embed(ctx, query)
		if err == nil {
			hits, err = e.Tasks.VectorSearch(ctx, userID, vec, limit)
		}
	default:
		var vec embedclient.Vector
		vec, err = e.Embedder.Embed(ctx, query)
		if err == nil {
			hits, err = e.Tasks.HybridSearch(ctx, userID, vec, query, limit)
		}
	}
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "searching tasks"))
	}

	type scoredDoc struct {
		Doc   interface{} `json:"doc"`
		Score float32     `json:"score"`
	}
	out := make([]scoredDoc, len(hits))
	for i, h := range hits {
		out[i] = scoredDoc{Doc: h.Doc, Score: h.Score}
	}
	b, _ := json.Marshal(out)
	return okResult(call, string(b))
}

func (e *Executor) recentActivity(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	hours := intArg(args, "within_hours", 168)
	limit := intArg(args, "limit", 20)
	events, err := e.Memory.RecentEpisodic(ctx, userID, time.Duration(hours)*time.Hour, limit)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing recent activity"))
	}
	b, _ := json.Marshal(events)
	return okResult(call, string(b))
}

// --- memory query ---

func (e *Executor) searchKnowledge(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return errResult(call, coreerr.ValidationErrorf("search_knowledge requires query"))
	}
	hits, err := e.Memory.SearchKnowledge(ctx, userID, query, e.KnowledgeThreshold, intArg(args, "limit", 5))
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "searching knowledge"))
	}

	type knowledgeHit struct {
		Content string  `json:"content"`
		Score   float32 `json:"score"`
		Source  string  `json:"source"`
	}
	out := make([]knowledgeHit, len(hits))
	for i, h := range hits {
		content := h.Entry.Result
		if h.Entry.Summary != nil && *h.Entry.Summary != "" {
			content = *h.Entry.Summary
		}
		out[i] = knowledgeHit{Content: content, Score: h.Score, Source: h.Entry.Source}
	}
	b, _ := json.Marshal(out)
	return okResult(call, string(b))
}

func (e *Executor) listTemplates(ctx context.Context, call llmclient.ToolCall, userID string) *Result {
	templates, err := e.Memory.ListTemplates(ctx, userID)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing templates"))
	}
	b, _ := json.Marshal(templates)
	return okResult(call, string(b))
}

type toolCluster struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
	Count  int    `json:"count"`
}

func (e *Executor) analyzeDiscoveries(ctx context.Context, call llmclient.ToolCall, userID string, args map[string]interface{}) *Result {
	minUses := intArg(args, "min_uses", 3)

	suggested, err := e.Memory.PopularDiscoveries(ctx, minUses, 0)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing popular discoveries"))
	}
	failed, err := e.Memory.FailedDiscoveries(ctx, userID)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing failed discoveries"))
	}
	templateCandidates, err := e.repeatedEpisodicActions(ctx, userID, minUses)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "listing repeated episodic actions"))
	}

	out := struct {
		SuggestedTools     []*ent.DiscoveryRecord `json:"suggested_tools"`
		AtlasOptimizations []toolCluster          `json:"atlas_optimizations"`
		TemplateCandidates []string               `json:"template_candidates"`
		FeatureGaps        []toolCluster          `json:"feature_gaps"`
	}{
		SuggestedTools:     suggested,
		AtlasOptimizations: clusterByServerTool(suggested, minUses),
		TemplateCandidates: templateCandidates,
		FeatureGaps:        clusterByServerTool(failed, minUses),
	}
	b, _ := json.Marshal(out)
	return okResult(call, string(b))
}

func clusterByServerTool(records []*ent.DiscoveryRecord, minCount int) []toolCluster {
	type key struct{ server, tool string }
	counts := map[key]int{}
	for _, r := range records {
		counts[key{r.Server, r.Tool}]++
	}
	var out []toolCluster
	for k, c := range counts {
		if c >= minCount {
			out = append(out, toolCluster{Server: k.server, Tool: k.tool, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (e *Executor) repeatedEpisodicActions(ctx context.Context, userID string, minCount int) ([]string, error) {
	events, err := e.Memory.ListEpisodic(ctx, userID, memory.EpisodicListOptions{Limit: 500})
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.ActionType+": "+ev.Description]++
	}
	var out []string
	for k, c := range counts {
		if c >= minCount {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- disambiguation ---

func (e *Executor) resolveDisambiguation(ctx context.Context, call llmclient.ToolCall, sessionID string) *Result {
	payload, err := e.Memory.ConsumePending(ctx, sessionID, DisambiguationAgent)
	if err != nil {
		return errResult(call, coreerr.Internalf(err, "resolving disambiguation"))
	}
	if payload == nil {
		return okResult(call, `{"resolved":false}`)
	}
	b, _ := json.Marshal(payload)
	return okResult(call, fmt.Sprintf(`{"resolved":true,"payload":%s}`, b))
}

// --- helpers ---

func parseArgs(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func errResult(call llmclient.ToolCall, err error) *Result {
	return &Result{CallID: call.ID, Name: call.Name, Content: coreerr.UserMessage(err), IsError: true}
}

func okResult(call llmclient.ToolCall, content string) *Result {
	return &Result{CallID: call.ID, Name: call.Name, Content: content}
}
