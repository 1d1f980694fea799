package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for the Task entity.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("title"),
		field.Text("description").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("todo", "in_progress", "done").
			Default("todo"),
		field.Enum("priority").
			Values("low", "medium", "high").
			Default("medium"),
		field.String("assignee").
			Optional().
			Nillable(),
		field.Time("due_date").
			Optional().
			Nillable(),
		field.JSON("blockers", []string{}).
			Optional(),
		field.Text("context").
			Optional().
			Nillable().
			Comment("Free-form context, e.g. a research preview attached by the planner"),
		field.Int("activity_count").
			Default(0),
		field.JSON("embedding", []float32{}).
			Optional().
			Comment("title+description embedding, for vector_search"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.String("project_id").
			Optional().
			Nillable(),
	}
}

// Edges of the Task.
func (Task) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("tasks").
			Field("project_id").
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "status"),
		index.Fields("user_id", "priority"),
		index.Fields("project_id"),
		index.Fields("assignee"),
	}
}

func (Task) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
