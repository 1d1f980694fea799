package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProceduralRule holds the schema definition for the ProceduralRule entity.
// Also stores workflow templates (rule_type = template) with an ordered
// list of phases, each containing an ordered list of task titles.
type ProceduralRule struct {
	ent.Schema
}

// Fields of the ProceduralRule.
func (ProceduralRule) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("normalized_trigger").
			Immutable().
			Comment("lowercase(trim(trigger))"),
		field.Enum("rule_type").
			Values("rule", "template").
			Default("rule"),
		field.String("action_tag").
			Optional(),
		field.JSON("parameters", map[string]interface{}{}).
			Optional(),
		field.JSON("phases", []ProceduralPhase{}).
			Optional().
			Comment("template phases, each an ordered list of task titles"),
		field.Float("confidence").
			Default(0.5),
		field.Int("times_used").
			Default(0),
		field.Time("last_used").
			Optional().
			Nillable(),
	}
}

// ProceduralPhase is one phase of a workflow template.
type ProceduralPhase struct {
	Name       string   `json:"name"`
	TaskTitles []string `json:"task_titles"`
}

// Edges of the ProceduralRule.
func (ProceduralRule) Edges() []ent.Edge {
	return nil
}

// Indexes of the ProceduralRule.
func (ProceduralRule) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "normalized_trigger").
			Unique(),
		index.Fields("user_id", "rule_type"),
	}
}

func (ProceduralRule) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
