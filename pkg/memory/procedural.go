package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/proceduralrule"
	"github.com/coretask-core/coretask/ent/schema"
	"github.com/google/uuid"
)

// normalizeTrigger applies the (session_id, normalized_trigger) invariant:
// normalized_trigger = lowercase(trim(trigger)).
func normalizeTrigger(trigger string) string {
	return strings.ToLower(strings.TrimSpace(trigger))
}

// UpsertRule writes or updates a procedural rule for (user_id, trigger).
func (s *Store) UpsertRule(ctx context.Context, userID, trigger, actionTag string, params map[string]interface{}, source string, confidence float64) error {
	normalized := normalizeTrigger(trigger)
	existing, err := s.db.ProceduralRule.Query().
		Where(
			proceduralrule.UserID(userID),
			proceduralrule.NormalizedTrigger(normalized),
		).
		Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return fmt.Errorf("querying rule: %w", err)
	}

	if existing != nil {
		return existing.Update().
			SetActionTag(actionTag).
			SetParameters(params).
			SetConfidence(confidence).
			Exec(ctx)
	}

	return s.db.ProceduralRule.Create().
		SetID(uuid.NewString()).
		SetUserID(userID).
		SetNormalizedTrigger(normalized).
		SetRuleType(proceduralrule.RuleTypeRule).
		SetActionTag(actionTag).
		SetParameters(params).
		SetConfidence(confidence).
		Exec(ctx)
}

// GetRuleForTrigger looks up a rule by trigger, atomically incrementing
// times_used and stamping last_used on retrieval.
func (s *Store) GetRuleForTrigger(ctx context.Context, userID, trigger string) (*ent.ProceduralRule, error) {
	normalized := normalizeTrigger(trigger)

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting tx: %w", err)
	}
	defer tx.Rollback()

	rule, err := tx.ProceduralRule.Query().
		Where(
			proceduralrule.UserID(userID),
			proceduralrule.NormalizedTrigger(normalized),
			proceduralrule.RuleTypeEQ(proceduralrule.RuleTypeRule),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}

	if err := tx.ProceduralRule.UpdateOneID(rule.ID).
		AddTimesUsed(1).
		SetLastUsed(time.Now()).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("incrementing times_used: %w", err)
	}

	rule, err = tx.ProceduralRule.Get(ctx, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("refetching rule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return rule, nil
}

// ListRules returns a user's rules (rule_type=rule) at or above
// minConfidence, sorted by times_used descending, for context injection
// (§4.11 item 3).
func (s *Store) ListRules(ctx context.Context, userID string, minConfidence float64) ([]*ent.ProceduralRule, error) {
	rules, err := s.db.ProceduralRule.Query().
		Where(
			proceduralrule.UserID(userID),
			proceduralrule.RuleTypeEQ(proceduralrule.RuleTypeRule),
			proceduralrule.ConfidenceGTE(minConfidence),
		).
		Order(ent.Desc(proceduralrule.FieldTimesUsed)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// ListTemplates returns all workflow templates (rule_type=template) for a
// user.
func (s *Store) ListTemplates(ctx context.Context, userID string) ([]*ent.ProceduralRule, error) {
	templates, err := s.db.ProceduralRule.Query().
		Where(
			proceduralrule.UserID(userID),
			proceduralrule.RuleTypeEQ(proceduralrule.RuleTypeTemplate),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}

// GetTemplate looks up a named workflow template by its normalized trigger,
// e.g. "create_gtm_project".
func (s *Store) GetTemplate(ctx context.Context, userID, trigger string) (*ent.ProceduralRule, error) {
	tmpl, err := s.db.ProceduralRule.Query().
		Where(
			proceduralrule.UserID(userID),
			proceduralrule.NormalizedTrigger(normalizeTrigger(trigger)),
			proceduralrule.RuleTypeEQ(proceduralrule.RuleTypeTemplate),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying template: %w", err)
	}
	return tmpl, nil
}

// IncrementTemplateUsage atomically increments a template's times_used.
// Required whenever a workflow execution references a template (§3
// cross-entity invariant).
func (s *Store) IncrementTemplateUsage(ctx context.Context, templateID string) error {
	n, err := s.db.ProceduralRule.Update().
		Where(
			proceduralrule.ID(templateID),
			proceduralrule.RuleTypeEQ(proceduralrule.RuleTypeTemplate),
		).
		AddTimesUsed(1).
		SetLastUsed(time.Now()).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("incrementing template usage: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %s not found", templateID)
	}
	return nil
}

// ProceduralPhase mirrors the ent schema's phase value object, re-exported
// so callers outside the ent package don't need to import it directly.
type ProceduralPhase = schema.ProceduralPhase
