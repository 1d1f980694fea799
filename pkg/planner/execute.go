package planner

import (
	"context"
	"fmt"
	"strings"
)

const researchPreviewLimit = 200

// executeResearch delegates to the DiscoveryAgent (spec §4.5) and
// accumulates the result into context.research_results — appended, not
// overwritten, so a plan with more than one research step keeps all of
// them available to the generate-tasks step's preview.
func (p *Planner) executeResearch(ctx context.Context, step Step, sctx *stepContext, userID string) (string, error) {
	resp, err := p.Research.Handle(ctx, step.Description, "research", userID)
	if err != nil {
		return "", fmt.Errorf("research step failed: %w", err)
	}
	if sctx.ResearchResults != "" {
		sctx.ResearchResults += "\n" + resp.Result
	} else {
		sctx.ResearchResults = resp.Result
	}
	return resp.Result, nil
}

// executeCreateProject creates the project named by the step
// description, then checks that same description for the GTM template
// trigger (spec §4.7's "template detection inside create-project").
func (p *Planner) executeCreateProject(ctx context.Context, step Step, sctx *stepContext, userID string) (string, error) {
	name := strings.TrimSpace(step.Description)
	if name == "" {
		return "", fmt.Errorf("create-project step has no name")
	}

	doc := map[string]interface{}{"name": name}
	if sctx.ResearchResults != "" {
		doc["description"] = sctx.ResearchResults
	}
	id, err := p.Projects.Insert(ctx, userID, doc)
	if err != nil {
		return "", fmt.Errorf("creating project: %w", err)
	}
	sctx.ProjectID = id
	sctx.ProjectName = name

	lower := strings.ToLower(name + " " + step.Description)
	if strings.Contains(lower, "gtm") || strings.Contains(lower, "go-to-market") {
		tmpl, err := p.Memory.GetTemplate(ctx, userID, "create_gtm_project")
		if err != nil {
			return "", fmt.Errorf("fetching gtm template: %w", err)
		}
		sctx.Template = tmpl
	}

	return fmt.Sprintf("created project %q (%s)", name, id), nil
}

// executeGenerateTasks turns context.template.phases into tasks (spec
// §4.7's task-generation contract), one per phase/title pair, then
// atomically increments the template's times_used exactly once for the
// whole step — not once per task created.
func (p *Planner) executeGenerateTasks(ctx context.Context, step Step, sctx *stepContext, userID string) (string, error) {
	if sctx.Template == nil {
		return "", fmt.Errorf("no procedural template is available for task generation")
	}

	preview := truncate(sctx.ResearchResults, researchPreviewLimit)
	created := make([]string, 0)

	for _, phase := range sctx.Template.Phases {
		for _, title := range phase.TaskTitles {
			doc := map[string]interface{}{
				"title":   fmt.Sprintf("[%s] %s", phase.Name, title),
				"context": preview,
			}
			if sctx.ProjectID != "" {
				doc["project_id"] = sctx.ProjectID
			}
			id, err := p.Tasks.Insert(ctx, userID, doc)
			if err != nil {
				return "", fmt.Errorf("creating task %q: %w", title, err)
			}
			created = append(created, id)
		}
	}

	sctx.TasksGenerated = append(sctx.TasksGenerated, created...)

	if err := p.Memory.IncrementTemplateUsage(ctx, sctx.Template.ID); err != nil {
		return "", fmt.Errorf("incrementing template usage: %w", err)
	}

	return fmt.Sprintf("generated %d tasks from template", len(created)), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
