package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DiscoveryRecord holds the schema definition for the DiscoveryRecord entity:
// a recorded (server, tool, arguments) solution derived from an LLM's plan
// to satisfy an external request.
type DiscoveryRecord struct {
	ent.Schema
}

// Fields of the DiscoveryRecord.
func (DiscoveryRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_scope").
			Immutable().
			Comment("user id, or 'global' for cross-user reuse"),
		field.Text("user_request").
			Immutable(),
		field.JSON("request_embedding", []float32{}).
			Immutable(),
		field.String("server").
			Immutable(),
		field.String("tool").
			Immutable(),
		field.JSON("arguments", map[string]interface{}{}).
			Immutable(),
		field.Bool("success"),
		field.Int("execution_time_ms"),
		field.Int("times_used").
			Default(0),
		field.Bool("promoted").
			Default(false),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the DiscoveryRecord.
func (DiscoveryRecord) Edges() []ent.Edge {
	return nil
}

// Indexes of the DiscoveryRecord.
func (DiscoveryRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_scope", "success"),
		index.Fields("times_used", "promoted"),
	}
}

func (DiscoveryRecord) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
