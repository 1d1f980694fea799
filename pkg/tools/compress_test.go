package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/coretask-core/coretask/pkg/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskRow(id, title, status, priority string) map[string]interface{} {
	return map[string]interface{}{
		"id": id, "title": title, "status": status, "priority": priority,
	}
}

func TestCompress_ListTasks_BelowThresholdPassesThrough(t *testing.T) {
	rows := []map[string]interface{}{
		taskRow("1", "a", "todo", "low"),
		taskRow("2", "b", "done", "high"),
	}
	b, _ := json.Marshal(rows)
	result := &Result{Name: ToolListTasks, Content: string(b)}

	got := Compress(result)
	assert.Equal(t, result.Content, got.Content, "at or below the threshold the listing is returned unchanged")
}

func TestCompress_ListTasks_AboveThresholdSummarizes(t *testing.T) {
	var rows []map[string]interface{}
	for i := 0; i < 12; i++ {
		status := "todo"
		if i%3 == 0 {
			status = "done"
		}
		rows = append(rows, taskRow(string(rune('a'+i)), "task", status, "medium"))
	}
	rows[0]["assignee"] = "alex"
	rows[0]["due_date"] = "2026-08-01T00:00:00Z"
	rows[0]["blockers"] = []string{"waiting on design"}

	b, _ := json.Marshal(rows)
	result := &Result{Name: ToolListTasks, Content: string(b)}

	got := Compress(result)
	require.NotEqual(t, result.Content, got.Content)

	var out struct {
		TotalCount      int                `json:"total_count"`
		SummaryByStatus map[string]int     `json:"summary_by_status"`
		Top5            []taskSummaryEntry `json:"top_5"`
		Note            string             `json:"note"`
	}
	require.NoError(t, json.Unmarshal([]byte(got.Content), &out))
	assert.Equal(t, 12, out.TotalCount)
	assert.Len(t, out.Top5, 5)
	assert.NotEmpty(t, out.SummaryByStatus["todo"])
	assert.NotEmpty(t, out.SummaryByStatus["done"])
	assert.NotEmpty(t, out.Note)

	// Enrichment fields on the first row must survive compression.
	assert.Equal(t, "alex", out.Top5[0].Assignee)
	assert.Equal(t, "2026-08-01T00:00:00Z", out.Top5[0].DueDate)
	assert.NotNil(t, out.Top5[0].Blockers)

	// A row without enrichment fields must not fabricate them.
	assert.Nil(t, out.Top5[1].Assignee)
}

func TestCompress_SearchTasks_AlwaysReshapes(t *testing.T) {
	rows := []map[string]interface{}{
		{"doc": map[string]interface{}{"id": "1", "title": "x", "status": "todo", "project_id": "p1", "assignee": "sam"}, "score": 0.91},
	}
	b, _ := json.Marshal(rows)
	result := &Result{Name: ToolSearchTasks, Content: string(b)}

	got := Compress(result)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(got.Content), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0]["id"])
	assert.Equal(t, "x", out[0]["title"])
	assert.Equal(t, "p1", out[0]["project"])
	assert.Equal(t, "sam", out[0]["assignee"])
	assert.InDelta(t, 0.91, out[0]["score"], 0.001)
}

func TestCompress_ListProjects_AboveThresholdSummarizes(t *testing.T) {
	var rows []map[string]interface{}
	for i := 0; i < 6; i++ {
		rows = append(rows, map[string]interface{}{"id": string(rune('a' + i)), "name": "proj"})
	}
	b, _ := json.Marshal(rows)
	result := &Result{Name: ToolListProjects, Content: string(b)}

	got := Compress(result)
	var out struct {
		TotalCount int                      `json:"total_count"`
		Top5       []map[string]interface{} `json:"top_5"`
	}
	require.NoError(t, json.Unmarshal([]byte(got.Content), &out))
	assert.Equal(t, 6, out.TotalCount)
	assert.Len(t, out.Top5, 5)
}

func TestCompress_OtherToolsPassThroughUnchanged(t *testing.T) {
	result := &Result{Name: ToolGetTask, Content: `{"id":"1","title":"x"}`}
	got := Compress(result)
	assert.Same(t, result, got)
}

func TestCompress_ErrorResultsPassThroughUnchanged(t *testing.T) {
	rows := make([]map[string]interface{}, 20)
	for i := range rows {
		rows[i] = taskRow("x", "x", "todo", "low")
	}
	b, _ := json.Marshal(rows)
	result := &Result{Name: ToolListTasks, Content: string(b), IsError: true}
	got := Compress(result)
	assert.Same(t, result, got)
}

// scriptedLLM returns a fixed response regardless of input, enough to
// exercise SummarizeExternalResult's over-threshold branch.
type scriptedLLM struct{ text string }

func (s scriptedLLM) Complete(_ context.Context, _ string, _ []llmclient.Message, _ []llmclient.ToolDefinition, _ float64, _ int, _ bool) (*llmclient.Response, error) {
	return &llmclient.Response{Text: s.text, FinishReason: "stop"}, nil
}

func (s scriptedLLM) Close() error { return nil }

func TestSummarizeExternalResult_BelowThresholdPassesThrough(t *testing.T) {
	raw := "short result"
	got, err := SummarizeExternalResult(context.Background(), scriptedLLM{text: "should not be used"}, "q", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestSummarizeExternalResult_AboveThresholdCallsLLM(t *testing.T) {
	raw := strings.Repeat("x", ExternalResultSummarizeThreshold+1)
	got, err := SummarizeExternalResult(context.Background(), scriptedLLM{text: "key findings: ..."}, "q", raw)
	require.NoError(t, err)
	assert.Equal(t, "key findings: ...", got)
}
