package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EpisodicSummary holds the schema definition for the EpisodicSummary entity.
type EpisodicSummary struct {
	ent.Schema
}

// Fields of the EpisodicSummary.
func (EpisodicSummary) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.Enum("entity_type").
			Values("task", "project").
			Immutable(),
		field.String("entity_id").
			Immutable(),
		field.Text("summary"),
		field.Int("activity_count"),
		field.Time("generated_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the EpisodicSummary.
func (EpisodicSummary) Edges() []ent.Edge {
	return nil
}

// Indexes of the EpisodicSummary.
func (EpisodicSummary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("entity_type", "entity_id", "generated_at"),
	}
}

func (EpisodicSummary) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
