// Package tools implements the built-in tool catalogue the LLMAgentLoop
// drives (spec §4.3): a fixed set of entity-mutation, entity-retrieval,
// memory-query, and disambiguation tools behind a single
// execute(name, args, ctx) dispatch. Tool errors are returned as content,
// never as a Go error, so the LLM can see and react to them.
package tools

import "github.com/coretask-core/coretask/pkg/llmclient"

// Tool name constants, the closed catalogue ToolRegistry exposes to the
// LLM.
const (
	ToolCreateTask   = "create_task"
	ToolUpdateTask   = "update_task"
	ToolCompleteTask = "complete_task"
	ToolStartTask    = "start_task"
	ToolStopTask     = "stop_task"

	ToolCreateProject = "create_project"
	ToolUpdateProject = "update_project"
	ToolAddNote       = "add_note"

	ToolGetTask      = "get_task"
	ToolGetProject   = "get_project"
	ToolListTasks    = "list_tasks"
	ToolListProjects = "list_projects"
	ToolSearchTasks  = "search_tasks"
	ToolRecentActivity = "recent_activity"

	ToolSearchKnowledge       = "search_knowledge"
	ToolListTemplates         = "list_templates"
	ToolAnalyzeToolDiscoveries = "analyze_tool_discoveries"

	ToolResolveDisambiguation = "resolve_disambiguation"
)

// Registry holds the static tool catalogue (name, description, JSON
// Schema input shape) handed to the LLM on every Complete call.
type Registry struct {
	defs []llmclient.ToolDefinition
}

// NewRegistry builds the fixed catalogue. There is exactly one catalogue
// instance process-wide; per-call filtering (if ever needed) happens at
// the caller, not here.
func NewRegistry() *Registry {
	return &Registry{defs: []llmclient.ToolDefinition{
		{Name: ToolCreateTask, Description: "Create a new task.", ParametersSchema: schemaCreateTask},
		{Name: ToolUpdateTask, Description: "Update fields on an existing task.", ParametersSchema: schemaUpdateTask},
		{Name: ToolCompleteTask, Description: "Mark a task done.", ParametersSchema: schemaTaskRef},
		{Name: ToolStartTask, Description: "Mark a task in_progress.", ParametersSchema: schemaTaskRef},
		{Name: ToolStopTask, Description: "Mark a task back to todo.", ParametersSchema: schemaTaskRef},

		{Name: ToolCreateProject, Description: "Create a new project.", ParametersSchema: schemaCreateProject},
		{Name: ToolUpdateProject, Description: "Update fields on an existing project.", ParametersSchema: schemaUpdateProject},
		{Name: ToolAddNote, Description: "Append a free-form note, context line, or decision to a task or project.", ParametersSchema: schemaAddNote},

		{Name: ToolGetTask, Description: "Fetch a single task by id.", ParametersSchema: schemaEntityRef},
		{Name: ToolGetProject, Description: "Fetch a single project by id.", ParametersSchema: schemaEntityRef},
		{Name: ToolListTasks, Description: "List tasks matching optional status/priority/project/assignee filters.", ParametersSchema: schemaListTasks},
		{Name: ToolListProjects, Description: "List projects.", ParametersSchema: schemaListProjects},
		{Name: ToolSearchTasks, Description: "Search tasks by free text, using hybrid/vector/text retrieval.", ParametersSchema: schemaSearchTasks},
		{Name: ToolRecentActivity, Description: "List recent episodic activity events within a time window.", ParametersSchema: schemaRecentActivity},

		{Name: ToolSearchKnowledge, Description: "Search cached external knowledge for this user.", ParametersSchema: schemaSearchKnowledge},
		{Name: ToolListTemplates, Description: "List saved workflow templates for this user.", ParametersSchema: schemaUserOnly},
		{Name: ToolAnalyzeToolDiscoveries, Description: "Summarize discovery usage into promotion candidates and gaps.", ParametersSchema: schemaAnalyzeDiscoveries},

		{Name: ToolResolveDisambiguation, Description: "Consume a pending disambiguation handoff addressed to this session.", ParametersSchema: schemaResolveDisambiguation},
	}}
}

// Definitions returns the catalogue for inclusion in an LLM Complete
// call.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	return r.defs
}

const schemaCreateTask = `{"type":"object","properties":{"title":{"type":"string"},"description":{"type":"string"},"status":{"type":"string","enum":["todo","in_progress","done"]},"priority":{"type":"string","enum":["low","medium","high"]},"assignee":{"type":"string"},"due_date":{"type":"string","format":"date-time"},"project_id":{"type":"string"}},"required":["title"]}`

const schemaUpdateTask = `{"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"},"status":{"type":"string","enum":["todo","in_progress","done"]},"priority":{"type":"string","enum":["low","medium","high"]},"assignee":{"type":"string"},"due_date":{"type":"string","format":"date-time"},"project_id":{"type":"string"}},"required":["id"]}`

const schemaTaskRef = `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`

const schemaCreateProject = `{"type":"object","properties":{"name":{"type":"string"},"description":{"type":"string"},"notes":{"type":"string"}},"required":["name"]}`

const schemaUpdateProject = `{"type":"object","properties":{"id":{"type":"string"},"name":{"type":"string"},"description":{"type":"string"},"notes":{"type":"string"}},"required":["id"]}`

const schemaAddNote = `{"type":"object","properties":{"entity_type":{"type":"string","enum":["task","project"]},"entity_id":{"type":"string"},"note":{"type":"string"}},"required":["entity_type","entity_id","note"]}`

const schemaEntityRef = `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`

const schemaListTasks = `{"type":"object","properties":{"status":{"type":"string"},"priority":{"type":"string"},"project_id":{"type":"string"},"assignee":{"type":"string"},"limit":{"type":"integer"}}}`

const schemaListProjects = `{"type":"object","properties":{"limit":{"type":"integer"}}}`

const schemaSearchTasks = `{"type":"object","properties":{"query":{"type":"string"},"mode":{"type":"string","enum":["hybrid","vector","text"]},"limit":{"type":"integer"}},"required":["query"]}`

const schemaRecentActivity = `{"type":"object","properties":{"within_hours":{"type":"integer"},"limit":{"type":"integer"}}}`

const schemaSearchKnowledge = `{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`

const schemaUserOnly = `{"type":"object","properties":{}}`

const schemaAnalyzeDiscoveries = `{"type":"object","properties":{"min_uses":{"type":"integer"}}}`

const schemaResolveDisambiguation = `{"type":"object","properties":{}}`
