package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coretask-core/coretask/pkg/llmclient"
)

// Compression thresholds (spec §4.12) for built-in tool-result
// compression.
const (
	listTasksCompressThreshold    = 10
	listProjectsCompressThreshold = 5

	// ExternalResultSummarizeThreshold is the byte length above which a
	// fresh discovery result is summarized before caching.
	ExternalResultSummarizeThreshold = 800
)

// Compress applies the tool-result compression rules to a freshly
// executed result before it is appended to the LLM's conversation
// (LLMAgentLoop step `compress(result)`). Tool names outside the
// compressed set, and error results, pass through unchanged.
func Compress(result *Result) *Result {
	if result == nil || result.IsError {
		return result
	}
	switch result.Name {
	case ToolListTasks:
		return compressTaskList(result)
	case ToolSearchTasks:
		return compressSearchTasks(result)
	case ToolListProjects:
		return compressProjectList(result)
	default:
		return result
	}
}

// taskSummaryEntry is one row of a compressed task listing. The
// enrichment fields (Assignee, DueDate, Blockers) are only populated
// when present on the source row — the preservation rule from §4.12.
type taskSummaryEntry struct {
	ID       interface{} `json:"id,omitempty"`
	Title    interface{} `json:"title,omitempty"`
	Status   interface{} `json:"status,omitempty"`
	Project  interface{} `json:"project,omitempty"`
	Priority interface{} `json:"priority,omitempty"`
	Assignee interface{} `json:"assignee,omitempty"`
	DueDate  interface{} `json:"due_date,omitempty"`
	Blockers interface{} `json:"blockers,omitempty"`
}

func summarizeTaskRow(r map[string]interface{}) taskSummaryEntry {
	e := taskSummaryEntry{
		ID:       r["id"],
		Title:    r["title"],
		Status:   r["status"],
		Project:  r["project_id"],
		Priority: r["priority"],
	}
	for _, k := range []string{"assignee", "due_date", "blockers"} {
		if v, ok := r[k]; ok && v != nil {
			switch k {
			case "assignee":
				e.Assignee = v
			case "due_date":
				e.DueDate = v
			case "blockers":
				e.Blockers = v
			}
		}
	}
	return e
}

func compressTaskList(result *Result) *Result {
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &rows); err != nil {
		return result
	}
	if len(rows) <= listTasksCompressThreshold {
		return result
	}

	summaryByStatus := map[string]int{}
	for _, r := range rows {
		status, _ := r["status"].(string)
		summaryByStatus[status]++
	}

	top := rows
	if len(top) > 5 {
		top = top[:5]
	}
	top5 := make([]taskSummaryEntry, len(top))
	for i, r := range top {
		top5[i] = summarizeTaskRow(r)
	}

	compressed := struct {
		TotalCount      int                `json:"total_count"`
		SummaryByStatus map[string]int     `json:"summary_by_status"`
		Top5            []taskSummaryEntry `json:"top_5"`
		Note            string             `json:"note"`
	}{
		TotalCount:      len(rows),
		SummaryByStatus: summaryByStatus,
		Top5:            top5,
		Note:            fmt.Sprintf("list truncated; showing 5 of %d matching tasks", len(rows)),
	}
	b, _ := json.Marshal(compressed)
	return &Result{CallID: result.CallID, Name: result.Name, Content: string(b)}
}

func compressSearchTasks(result *Result) *Result {
	var rows []struct {
		Doc   map[string]interface{} `json:"doc"`
		Score float64                `json:"score"`
	}
	if err := json.Unmarshal([]byte(result.Content), &rows); err != nil {
		return result
	}

	out := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		entry := map[string]interface{}{
			"id":      r.Doc["id"],
			"title":   r.Doc["title"],
			"score":   r.Score,
			"project": r.Doc["project_id"],
			"status":  r.Doc["status"],
		}
		for _, k := range []string{"assignee", "due_date", "blockers"} {
			if v, ok := r.Doc[k]; ok && v != nil {
				entry[k] = v
			}
		}
		out[i] = entry
	}
	b, _ := json.Marshal(out)
	return &Result{CallID: result.CallID, Name: result.Name, Content: string(b)}
}

func compressProjectList(result *Result) *Result {
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &rows); err != nil {
		return result
	}
	if len(rows) <= listProjectsCompressThreshold {
		return result
	}

	top := rows
	if len(top) > 5 {
		top = top[:5]
	}
	top5 := make([]map[string]interface{}, len(top))
	for i, r := range top {
		top5[i] = map[string]interface{}{"id": r["id"], "name": r["name"]}
	}

	compressed := struct {
		TotalCount int                      `json:"total_count"`
		Top5       []map[string]interface{} `json:"top_5"`
		Note       string                   `json:"note"`
	}{
		TotalCount: len(rows),
		Top5:       top5,
		Note:       fmt.Sprintf("list truncated; showing 5 of %d matching projects", len(rows)),
	}
	b, _ := json.Marshal(compressed)
	return &Result{CallID: result.CallID, Name: result.Name, Content: string(b)}
}

// SummarizeExternalResult asks llm to produce a structured summary (key
// findings, main sources with URLs, a one-sentence direct answer) of a
// fresh external-discovery result whose raw length exceeds
// ExternalResultSummarizeThreshold. Below the threshold, raw is returned
// unchanged. Callers (DiscoveryAgent) persist both raw and summary in
// the knowledge cache.
func SummarizeExternalResult(ctx context.Context, llm llmclient.Client, query, raw string) (string, error) {
	if len(raw) <= ExternalResultSummarizeThreshold {
		return raw, nil
	}

	system := "Summarize the external result into: key findings, main sources " +
		"with URLs, and a one-sentence direct answer to the query."
	messages := []llmclient.Message{
		{Role: llmclient.RoleUser, Content: fmt.Sprintf("Query: %s\n\nResult:\n%s", query, raw)},
	}
	resp, err := llm.Complete(ctx, system, messages, nil, 0, 0, false)
	if err != nil {
		return "", fmt.Errorf("summarizing external result: %w", err)
	}
	return resp.Text, nil
}
